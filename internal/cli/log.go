package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/report"
	"github.com/sotakeda/bounce/internal/workspace"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Manage rally logs",
}

var logNewCmd = &cobra.Command{
	Use:   "new --topic <topic>",
	Short: "Create a rally log from the template",
	Long: `Creates a new rally log with the metadata filled in and an empty first
request. Edit the log's "## Request 1" section, then run "bounce answer
--log <path>" to have the assistant reply to it.`,
	Args: cobra.NoArgs,
	RunE: runLogNew,
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rally logs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLogList,
}

func init() {
	logNewCmd.Flags().String("topic", "", "Topic of the consultation (required)")
	logNewCmd.Flags().String("purpose", "", "What the consultation should achieve")
	logNewCmd.Flags().String("dir", "", "Workspace directory recorded in the log")
	logNewCmd.Flags().String("sandbox", string(policy.IsolationReadOnly), "Sandbox level recorded in the log (read-only, workspace-write)")
	logNewCmd.Flags().StringSlice("ref", nil, "Reference file or URL (repeatable)")
	logNewCmd.MarkFlagRequired("topic")

	logCmd.AddCommand(logNewCmd)
	logCmd.AddCommand(logListCmd)
	rootCmd.AddCommand(logCmd)
}

func runLogNew(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)
	printer := report.NewPrinter(cmd.OutOrStdout())

	cfg, _, err := loadOrCreateConfig(cmd, logger)
	if err != nil {
		return err
	}
	if _, err := workspace.Initialize(cfg.LogDir(), cfg.TemplatePath()); err != nil {
		return err
	}

	topic, _ := cmd.Flags().GetString("topic")
	purpose, _ := cmd.Flags().GetString("purpose")
	workingDir, _ := cmd.Flags().GetString("dir")
	sandbox, _ := cmd.Flags().GetString("sandbox")
	refs, _ := cmd.Flags().GetStringSlice("ref")

	isolation, err := parseIsolation(sandbox)
	if err != nil {
		return err
	}
	if isolation == policy.IsolationWorkspaceWrite && workingDir == "" {
		printer.Warnf("workspace-write without --dir: resumed runs will downgrade to read-only")
	}

	store := newStore(cfg, logger)
	path, err := store.Create(topic, purpose, workingDir, isolation, refs)
	if err != nil {
		return err
	}

	printer.Successf("rally log created: %s", path)
	printer.Dimf("fill in '## Request 1', then run: bounce answer --log %s", path)
	return nil
}

func runLogList(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)
	printer := report.NewPrinter(cmd.OutOrStdout())

	cfg, _, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	entries, err := newStore(cfg, logger).List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printer.Dimf("no rally logs in %s", cfg.LogDir())
		return nil
	}

	for _, e := range entries {
		printer.LogEntry(e.Modified, e.Rally, e.Topic, e.Path)
	}
	return nil
}

func parseIsolation(value string) (policy.Isolation, error) {
	switch policy.Isolation(value) {
	case policy.IsolationReadOnly, policy.IsolationWorkspaceWrite:
		return policy.Isolation(value), nil
	default:
		return "", fmt.Errorf("invalid sandbox %q (expected read-only or workspace-write)", value)
	}
}

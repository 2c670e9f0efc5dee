package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/cmdline"
	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/preflight"
	"github.com/sotakeda/bounce/internal/rallylog"
	"github.com/sotakeda/bounce/internal/report"
	"github.com/sotakeda/bounce/internal/runner"
	"github.com/sotakeda/bounce/internal/workspace"
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask the assistant a one-shot question",
	Long: `Runs a single read-only consultation. A working directory is optional;
when given, the assistant may read (but never write) the files under it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsult(cmd, policy.ModeQuestion, args)
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review --dir <path> <prompt>",
	Short: "Have the assistant review a workspace read-only",
	Long: `Runs a read-only consultation over a workspace. The assistant can read
every file under --dir but the sandbox blocks all writes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsult(cmd, policy.ModeReview, args)
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify --dir <path> <prompt>",
	Short: "Let the assistant edit files inside a workspace",
	Long: `Runs a workspace-write consultation. The assistant may create and edit
files under --dir. Web search is not available in this mode.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsult(cmd, policy.ModeModify, args)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, reviewCmd, modifyCmd} {
		cmd.Flags().String("dir", "", "Workspace directory the assistant operates on")
		cmd.Flags().Bool("search", false, "Allow the assistant to use web search")
		cmd.Flags().String("effort", "", "Reasoning effort override (low, medium, high)")
		cmd.Flags().String("log", "", "Rally log to record the exchange in")
		cmd.Flags().Int("timeout", 0, "Run timeout in seconds (0 uses the configured default)")
	}
	reviewCmd.MarkFlagRequired("dir")
	modifyCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(modifyCmd)
}

// runConsult is the shared batch-run path behind ask, review, and modify.
// Everything that can fail cheaply (config, policy, log validation) fails
// before the external process is spawned.
func runConsult(cmd *cobra.Command, mode policy.Mode, args []string) error {
	logger := newLogger(cmd)
	printer := report.NewPrinter(cmd.OutOrStdout())

	cfg, _, err := loadOrCreateConfig(cmd, logger)
	if err != nil {
		return err
	}
	if _, err := workspace.Initialize(cfg.LogDir(), cfg.TemplatePath()); err != nil {
		return err
	}
	if err := preflight.Quick(cfg); err != nil {
		return err
	}

	workingDir, _ := cmd.Flags().GetString("dir")
	search, _ := cmd.Flags().GetBool("search")
	effortValue, _ := cmd.Flags().GetString("effort")
	logPath, _ := cmd.Flags().GetString("log")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	effort, err := policy.ParseReasoningEffort(effortValue)
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	store := newStore(cfg, logger)
	if logPath != "" {
		if err := store.Validate(logPath); err != nil {
			return fmt.Errorf("cannot record to %s: %w", logPath, err)
		}
	}

	argv, err := cmdline.BuildArgs(cfg.Codex.Command, mode, workingDir, prompt, effort, search)
	if err != nil {
		return err
	}

	timeout := cfg.RunTimeout()
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}

	run := runner.New(logger)
	run.Stdout = cmd.OutOrStdout()
	run.Stderr = cmd.ErrOrStderr()
	run.KillGrace = cfg.KillGrace()

	res, err := run.Run(cmd.Context(), argv, timeout)
	if err != nil {
		return err
	}

	if logPath != "" {
		rally, err := recordRally(store, logPath, prompt, res.Output, res.SessionID)
		if err != nil {
			return fmt.Errorf("run finished but the exchange could not be recorded: %w", err)
		}
		logger.Info("rally recorded", "path", logPath, "rally", rally)
	}

	printer.RunSummary(res.Duration, res.ExitCode, res.SessionID, logPath)
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: assistant exited with code %d", ErrPartial, res.ExitCode)
	}
	return nil
}

// recordRally appends a request/response pair as the next rally of an
// existing log. The reply falls back to a placeholder when the run
// produced no output, so the log never gains an empty section.
func recordRally(store *rallylog.Store, logPath, prompt, reply, sessionID string) (int, error) {
	content, err := store.Read(logPath)
	if err != nil {
		return 0, err
	}
	rally := rallylog.CurrentRally(content) + 1
	if err := store.InsertRequest(logPath, prompt, rally); err != nil {
		return 0, err
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		text = "(no output captured)"
	}
	if err := store.AppendResponse(logPath, text, sessionID, rally); err != nil {
		return 0, err
	}
	return rally, nil
}

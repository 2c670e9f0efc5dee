package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/preflight"
	"github.com/sotakeda/bounce/internal/report"
	"github.com/sotakeda/bounce/internal/resume"
	"github.com/sotakeda/bounce/internal/runner"
	"github.com/sotakeda/bounce/internal/workspace"
)

var resumeCmd = &cobra.Command{
	Use:   "resume --log <path> <instruction>",
	Short: "Continue a consultation recorded in a rally log",
	Long: `Starts the next rally of an existing consultation. The assistant is told
to re-read the rally log to recover context, then given the new
instruction; both the instruction and the reply are appended to the log.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResumeCommand,
}

var answerCmd = &cobra.Command{
	Use:   "answer --log <path>",
	Short: "Answer the pending request written in a rally log",
	Long: `Has the assistant answer the latest request exactly as it is written in
the rally log. Use this after drafting a request by hand with "bounce log
new": the reply replaces the log's (pending) response section.`,
	Args: cobra.NoArgs,
	RunE: runAnswerCommand,
}

func init() {
	for _, cmd := range []*cobra.Command{resumeCmd, answerCmd} {
		cmd.Flags().String("log", "", "Rally log holding the conversation (required)")
		cmd.Flags().String("effort", "", "Reasoning effort override (low, medium, high)")
		cmd.Flags().Int("timeout", 0, "Run timeout in seconds (0 uses the configured default)")
		cmd.MarkFlagRequired("log")
	}

	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(answerCmd)
}

func runResumeCommand(cmd *cobra.Command, args []string) error {
	orch, printer, opts, logPath, err := setupResume(cmd)
	if err != nil {
		return err
	}

	res, rally, err := orch.Continue(cmd.Context(), logPath, strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	printer.Successf("rally %d recorded in %s", rally, logPath)
	printer.RunSummary(res.Duration, res.ExitCode, res.SessionID, logPath)
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: assistant exited with code %d", ErrPartial, res.ExitCode)
	}
	return nil
}

func runAnswerCommand(cmd *cobra.Command, _ []string) error {
	orch, printer, opts, logPath, err := setupResume(cmd)
	if err != nil {
		return err
	}

	res, rally, err := orch.Answer(cmd.Context(), logPath, opts)
	if err != nil {
		return err
	}

	printer.Successf("response %d recorded in %s", rally, logPath)
	printer.RunSummary(res.Duration, res.ExitCode, res.SessionID, logPath)
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: assistant exited with code %d", ErrPartial, res.ExitCode)
	}
	return nil
}

// setupResume assembles the orchestrator both log-driven commands share.
func setupResume(cmd *cobra.Command) (*resume.Orchestrator, *report.Printer, resume.RunOptions, string, error) {
	fail := func(err error) (*resume.Orchestrator, *report.Printer, resume.RunOptions, string, error) {
		return nil, nil, resume.RunOptions{}, "", err
	}

	logger := newLogger(cmd)
	printer := report.NewPrinter(cmd.OutOrStdout())

	cfg, _, err := loadOrCreateConfig(cmd, logger)
	if err != nil {
		return fail(err)
	}
	if _, err := workspace.Initialize(cfg.LogDir(), cfg.TemplatePath()); err != nil {
		return fail(err)
	}
	if err := preflight.Quick(cfg); err != nil {
		return fail(err)
	}

	logPath, _ := cmd.Flags().GetString("log")
	effortValue, _ := cmd.Flags().GetString("effort")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	effort, err := policy.ParseReasoningEffort(effortValue)
	if err != nil {
		return fail(err)
	}

	timeout := cfg.RunTimeout()
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}

	run := runner.New(logger)
	run.Stdout = cmd.OutOrStdout()
	run.Stderr = cmd.ErrOrStderr()
	run.KillGrace = cfg.KillGrace()

	orch := &resume.Orchestrator{
		Store:  newStore(cfg, logger),
		Runner: run,
		Base:   cfg.Codex.Command,
		Logger: logger,
	}
	return orch, printer, resume.RunOptions{Timeout: timeout, Effort: effort}, logPath, nil
}

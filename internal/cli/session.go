package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/interactive"
	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/preflight"
	"github.com/sotakeda/bounce/internal/report"
	"github.com/sotakeda/bounce/internal/workspace"
)

var sessionCmd = &cobra.Command{
	Use:   "session <prompt>",
	Short: "Consult the assistant through an interactive TUI session",
	Long: `Spawns the assistant's interactive TUI under a pseudo-terminal, types the
prompt as keystrokes, and waits for the reply to settle before printing it.
Interactive sessions always run read-only. Use this when the batch exec
path misbehaves and only the TUI produces usable output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().String("dir", "", "Workspace directory the assistant may read")
	sessionCmd.Flags().Bool("search", false, "Allow the assistant to use web search")
	sessionCmd.Flags().String("effort", "", "Reasoning effort override (low, medium, high)")
	sessionCmd.Flags().String("log", "", "Rally log to record the exchange in")
	sessionCmd.Flags().Int("idle", 0, "Seconds of output silence that end collection (0 uses the configured default)")
	sessionCmd.Flags().Int("poll", 0, "Output poll interval in milliseconds (0 uses the configured default)")
	sessionCmd.Flags().Int("max-wait", 0, "Hard cap on collection in seconds (0 uses the configured default)")

	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
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
	idleSecs, _ := cmd.Flags().GetInt("idle")
	pollMs, _ := cmd.Flags().GetInt("poll")
	maxWaitSecs, _ := cmd.Flags().GetInt("max-wait")

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

	collectOpts := interactive.CollectOptions{
		IdleTimeout:  cfg.IdleTimeout(),
		PollInterval: cfg.PollInterval(),
		MaxWait:      cfg.MaxWait(),
	}
	if idleSecs > 0 {
		collectOpts.IdleTimeout = time.Duration(idleSecs) * time.Second
	}
	if pollMs > 0 {
		collectOpts.PollInterval = time.Duration(pollMs) * time.Millisecond
	}
	if maxWaitSecs > 0 {
		collectOpts.MaxWait = time.Duration(maxWaitSecs) * time.Second
	}

	start := time.Now()
	sess, err := interactive.Spawn(cmd.Context(), interactive.Options{
		Base:           cfg.Codex.Command,
		WorkingDir:     workingDir,
		Effort:         effort,
		Search:         search,
		Cols:           uint16(cfg.PTY.Cols),
		Rows:           uint16(cfg.PTY.Rows),
		KeystrokeDelay: cfg.KeystrokeDelay(),
		SettleDelay:    cfg.SettleDelay(),
		SpawnGrace:     cfg.SpawnGrace(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer sess.Kill()

	if err := sess.Send(prompt); err != nil {
		return err
	}

	reply, collectErr := sess.Collect(cmd.Context(), collectOpts)
	if collectErr != nil && !errors.Is(collectErr, interactive.ErrTimeout) {
		return collectErr
	}

	if strings.TrimSpace(reply) != "" {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(reply))
	}

	if logPath != "" {
		rally, err := recordRally(store, logPath, prompt, reply, sess.SessionID())
		if err != nil {
			return fmt.Errorf("session finished but the exchange could not be recorded: %w", err)
		}
		logger.Info("rally recorded", "path", logPath, "rally", rally)
	}

	sessionID := sess.SessionID()
	if err := sess.Kill(); err != nil {
		logger.Warn("session shutdown reported an error", "error", err)
	}

	printer.RunSummary(time.Since(start), 0, sessionID, logPath)
	if collectErr != nil {
		return fmt.Errorf("%w: the reply may be incomplete", collectErr)
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/config"
	"github.com/sotakeda/bounce/internal/rallylog"
)

var rootCmd = &cobra.Command{
	Use:   "bounce",
	Short: "Consult the Codex CLI and keep every exchange in rally logs",
	Long: `bounce runs consultations against the Codex CLI, either as one-shot batch
invocations or as interactive sessions driven through a pseudo-terminal, and
records each request/response exchange (a "rally") in an append-only
markdown log. The log file is the only session state there is: resuming a
conversation means pointing the assistant back at its own log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to bounce.json (default: search up directory tree)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level for diagnostics (debug, info, warn, error)")
}

// Execute runs the root command. ctx cancellation reaches every child
// process the commands spawn.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	level, _, err := parseLogLevel(levelName)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}

func newStore(cfg *config.Config, logger *slog.Logger) *rallylog.Store {
	return rallylog.NewStore(cfg.LogDir(), cfg.TemplatePath(), logger)
}

// loadOrCreateConfig finds an existing config or creates a default one in
// the current directory, mirroring first-run behavior: walk up the
// directory tree, create in CWD if nothing is found.
func loadOrCreateConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, configPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	foundPath, err := config.FindConfigFile(cwd)
	if err == nil {
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", err
		}
		logger.Debug("using existing config", "path", foundPath)
		return cfg, foundPath, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return nil, "", err
	}

	defaultPath := filepath.Join(cwd, config.FileName)
	if err := config.DefaultConfig().SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}
	logger.Info("no config found, created default", "path", defaultPath)

	// Reload so relative log paths anchor to the file just written.
	cfg, err := config.LoadFromFile(defaultPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, defaultPath, nil
}

// loadConfig is the read-only variant used by commands that must not leave
// files behind: a missing config quietly falls back to the defaults.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, configPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	foundPath, err := config.FindConfigFile(cwd)
	if errors.Is(err, config.ErrNotFound) {
		logger.Debug("no config found, using defaults")
		return config.DefaultConfig(), "", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadFromFile(foundPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, foundPath, nil
}

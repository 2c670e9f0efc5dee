package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sotakeda/bounce/internal/preflight"
	"github.com/sotakeda/bounce/internal/report"
	"github.com/sotakeda/bounce/internal/workspace"
)

// doctorProbeTimeout bounds the --version probe of the external CLI, which
// may need to download a package on first use.
const doctorProbeTimeout = 60 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the environment can run consultations",
	Long: `Verifies the pieces a consultation needs: a valid config, a reachable
assistant CLI, a shell, the rally log template, and a writable log
directory. Exits nonzero if any check fails.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)
	printer := report.NewPrinter(cmd.OutOrStdout())

	cfg, cfgPath, err := loadOrCreateConfig(cmd, logger)
	if err != nil {
		return err
	}
	if _, err := workspace.Initialize(cfg.LogDir(), cfg.TemplatePath()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), doctorProbeTimeout)
	defer cancel()

	rep := preflight.Run(ctx, cfg, logger)

	printer.Heading("bounce doctor")
	printer.Dimf("config: %s", cfgPath)
	for _, c := range rep.Checks {
		printer.Check(c.OK, c.Name, c.Detail)
	}

	if !rep.Pass {
		return fmt.Errorf("environment checks failed")
	}
	printer.Successf("all checks passed")
	return nil
}

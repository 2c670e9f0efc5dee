// Package preflight probes the environment a consultation depends on: the
// external assistant CLI, a shell for the PTY path, the rally log layout,
// and the configuration itself.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/sotakeda/bounce/internal/checksum"
	"github.com/sotakeda/bounce/internal/config"
	"github.com/sotakeda/bounce/internal/rallylog"
)

// Check is one probe outcome.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report aggregates all probe outcomes. Pass is false when any check failed.
type Report struct {
	Checks   []Check
	Versions map[string]string
	Pass     bool
}

// Run executes the full probe set, including spawning the assistant CLI for
// its version string. Doctor uses this; run commands use Quick.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) Report {
	rep := Report{Versions: map[string]string{}, Pass: true}
	add := func(c Check) {
		rep.Checks = append(rep.Checks, c)
		if !c.OK {
			rep.Pass = false
			if logger != nil {
				logger.Debug("preflight check failed", "check", c.Name, "detail", c.Detail)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		add(Check{Name: "config", OK: false, Detail: firstLine(err.Error())})
	} else {
		add(Check{Name: "config", OK: true, Detail: "valid"})
	}

	if version, err := probeVersion(ctx, cfg.Codex.Command); err != nil {
		add(Check{Name: "codex cli", OK: false, Detail: firstLine(err.Error())})
	} else {
		rep.Versions["codex"] = version
		add(Check{Name: "codex cli", OK: true, Detail: version})
	}

	if path, err := exec.LookPath("sh"); err != nil {
		add(Check{Name: "shell", OK: false, Detail: "sh not found in PATH; interactive sessions unavailable"})
	} else {
		add(Check{Name: "shell", OK: true, Detail: path})
	}

	tpl := cfg.TemplatePath()
	if sum, err := checksum.SHA256File(tpl); err != nil {
		add(Check{Name: "template", OK: false, Detail: fmt.Sprintf("%s: %s", tpl, firstLine(err.Error()))})
	} else {
		add(Check{Name: "template", OK: true, Detail: fmt.Sprintf("%s (%s)", tpl, shortSum(sum))})
	}

	if err := dirWritable(cfg.LogDir()); err != nil {
		add(Check{Name: "log directory", OK: false, Detail: firstLine(err.Error())})
	} else {
		add(Check{Name: "log directory", OK: true, Detail: cfg.LogDir()})
	}

	return rep
}

// Quick runs the non-spawning subset ahead of a run: config sane, log
// directory writable, template present. Returns the first failure.
func Quick(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := dirWritable(cfg.LogDir()); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.TemplatePath()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", rallylog.ErrTemplateMissing, cfg.TemplatePath())
		}
		return fmt.Errorf("failed to check template: %w", err)
	}
	return nil
}

// probeVersion launches the assistant CLI with --version and returns the
// first line it prints.
func probeVersion(ctx context.Context, base []string) (string, error) {
	if len(base) == 0 {
		return "", fmt.Errorf("external command is not configured")
	}

	args := append(append([]string{}, base[1:]...), "--version")
	out, err := exec.CommandContext(ctx, base[0], args...).CombinedOutput()
	if err != nil {
		detail := firstLine(strings.TrimSpace(string(out)))
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("failed to launch %s: %s", base[0], detail)
	}

	version := firstLine(strings.TrimSpace(string(out)))
	if version == "" {
		version = "unknown"
	}
	return version, nil
}

// dirWritable creates the directory if needed and verifies a file can be
// written inside it.
func dirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".doctor-probe-*")
	if err != nil {
		return fmt.Errorf("log directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortSum(sum string) string {
	hex := strings.TrimPrefix(sum, "sha256:")
	if len(hex) > 12 {
		hex = hex[:12]
	}
	return "sha256 " + hex
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sotakeda/bounce/internal/fsutil"
)

// FileName is the configuration filename looked up by FindConfigFile.
const FileName = "bounce.json"

// ErrNotFound reports that no bounce.json exists between the start directory
// and the filesystem root. Callers fall back to DefaultConfig.
var ErrNotFound = errors.New("bounce.json not found")

// Config represents the bounce.json configuration file
type Config struct {
	Version  string   `json:"version"`
	Codex    Codex    `json:"codex"`
	Logs     Logs     `json:"logs"`
	Timeouts Timeouts `json:"timeouts"`
	PTY      PTY      `json:"pty"`

	// baseDir anchors relative paths in Logs. Set when the config is loaded
	// from a file so commands behave the same from any subdirectory.
	baseDir string
}

// Codex configures how the assistant CLI is invoked.
type Codex struct {
	Command []string `json:"command"`
}

// Logs locates the rally log directory and the template file.
type Logs struct {
	Dir      string `json:"dir"`
	Template string `json:"template"`
}

// Timeouts holds every timing knob, in the units their names carry.
type Timeouts struct {
	RunSeconds        int `json:"run_seconds"`
	KillGraceSeconds  int `json:"kill_grace_seconds"`
	IdleSeconds       int `json:"idle_seconds"`
	PollMs            int `json:"poll_ms"`
	MaxWaitSeconds    int `json:"max_wait_seconds"`
	SpawnGraceSeconds int `json:"spawn_grace_seconds"`
}

// PTY configures the pseudo-terminal for interactive sessions.
type PTY struct {
	Cols             int `json:"cols"`
	Rows             int `json:"rows"`
	KeystrokeDelayMs int `json:"keystroke_delay_ms"`
	SettleDelayMs    int `json:"settle_delay_ms"`
}

// DefaultConfig returns the configuration used when no bounce.json exists.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Codex: Codex{
			Command: []string{"npx", "-y", "@openai/codex"},
		},
		Logs: Logs{
			Dir:      "rallylogs",
			Template: "rallylogs/template.md",
		},
		Timeouts: Timeouts{
			RunSeconds:        600,
			KillGraceSeconds:  5,
			IdleSeconds:       30,
			PollMs:            1000,
			MaxWaitSeconds:    600,
			SpawnGraceSeconds: 2,
		},
		PTY: PTY{
			Cols:             120,
			Rows:             40,
			KeystrokeDelayMs: 15,
			SettleDelayMs:    500,
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if len(c.Codex.Command) == 0 {
		return fmt.Errorf("configuration error: 'codex.command' is empty\n\nHint: Specify how to invoke the assistant CLI:\n  \"codex\": {\"command\": [\"npx\", \"-y\", \"@openai/codex\"]}")
	}

	if c.Logs.Dir == "" {
		return fmt.Errorf("configuration error: 'logs.dir' is empty\n\nHint: Point it at the rally log directory:\n  \"logs\": {\"dir\": \"rallylogs\"}")
	}
	if c.Logs.Template == "" {
		return fmt.Errorf("configuration error: 'logs.template' is empty\n\nHint: Point it at the template file:\n  \"logs\": {\"template\": \"rallylogs/template.md\"}")
	}

	def := DefaultConfig()
	positive := []struct {
		field    string
		got, def int
	}{
		{"timeouts.run_seconds", c.Timeouts.RunSeconds, def.Timeouts.RunSeconds},
		{"timeouts.kill_grace_seconds", c.Timeouts.KillGraceSeconds, def.Timeouts.KillGraceSeconds},
		{"timeouts.idle_seconds", c.Timeouts.IdleSeconds, def.Timeouts.IdleSeconds},
		{"timeouts.poll_ms", c.Timeouts.PollMs, def.Timeouts.PollMs},
		{"timeouts.max_wait_seconds", c.Timeouts.MaxWaitSeconds, def.Timeouts.MaxWaitSeconds},
		{"timeouts.spawn_grace_seconds", c.Timeouts.SpawnGraceSeconds, def.Timeouts.SpawnGraceSeconds},
		{"pty.cols", c.PTY.Cols, def.PTY.Cols},
		{"pty.rows", c.PTY.Rows, def.PTY.Rows},
	}
	for _, p := range positive {
		if p.got <= 0 {
			return fmt.Errorf("configuration error: '%s' must be positive (got %d)\n\nHint: Remove the field to use the default (%d)", p.field, p.got, p.def)
		}
	}

	nonNegative := []struct {
		field    string
		got, def int
	}{
		{"pty.keystroke_delay_ms", c.PTY.KeystrokeDelayMs, def.PTY.KeystrokeDelayMs},
		{"pty.settle_delay_ms", c.PTY.SettleDelayMs, def.PTY.SettleDelayMs},
	}
	for _, p := range nonNegative {
		if p.got < 0 {
			return fmt.Errorf("configuration error: '%s' must not be negative (got %d)\n\nHint: Remove the field to use the default (%d)", p.field, p.got, p.def)
		}
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.baseDir = filepath.Dir(abs)

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file atomically
func (c *Config) SaveToFile(path string) error {
	if err := fsutil.AtomicWriteJSON(path, c); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// FindConfigFile walks upward from startDir looking for bounce.json, so
// commands work from anywhere inside a project tree. Returns ErrNotFound
// when the filesystem root is reached without a hit.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: searched from %s upward", ErrNotFound, startDir)
		}
		dir = parent
	}
}

// LogDir returns the rally log directory, resolved against the config file's
// location when the configured path is relative.
func (c *Config) LogDir() string {
	return c.resolve(c.Logs.Dir)
}

// TemplatePath returns the template file path, resolved like LogDir.
func (c *Config) TemplatePath() string {
	return c.resolve(c.Logs.Template)
}

func (c *Config) resolve(p string) string {
	if p == "" || c.baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Timeouts.RunSeconds) * time.Second
}

func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Timeouts.KillGraceSeconds) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.IdleSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timeouts.PollMs) * time.Millisecond
}

func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Timeouts.MaxWaitSeconds) * time.Second
}

func (c *Config) SpawnGrace() time.Duration {
	return time.Duration(c.Timeouts.SpawnGraceSeconds) * time.Second
}

func (c *Config) KeystrokeDelay() time.Duration {
	return time.Duration(c.PTY.KeystrokeDelayMs) * time.Millisecond
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.PTY.SettleDelayMs) * time.Millisecond
}

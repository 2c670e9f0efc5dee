package cli

import (
	"fmt"
	"log/slog"
	"strings"
)

// parseLogLevel maps a user-supplied level name to a slog.Level. The empty
// string means info. The canonical spelling is returned alongside the level
// so callers can echo it back.
func parseLogLevel(input string) (slog.Level, string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "info":
		return slog.LevelInfo, "info", nil
	case "debug":
		return slog.LevelDebug, "debug", nil
	case "warn", "warning":
		return slog.LevelWarn, "warn", nil
	case "error", "err":
		return slog.LevelError, "error", nil
	default:
		return slog.LevelInfo, "", fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", input)
	}
}

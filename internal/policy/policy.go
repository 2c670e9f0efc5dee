// Package policy defines the consultation modes bounce can run in and the
// sandbox isolation each mode maps to.
//
// The mapping is deliberately one-way: values read back from rally logs are
// whitelisted and may only ever downgrade to read-only, never escalate to
// workspace-write.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
)

// Mode selects what kind of consultation a run performs.
type Mode string

const (
	// ModeQuestion asks a general question; a working directory is optional.
	ModeQuestion Mode = "question"
	// ModeReview inspects a workspace without changing it; a working
	// directory is required.
	ModeReview Mode = "review"
	// ModeModify lets the assistant edit files inside the workspace; a
	// working directory is required and web search is not available.
	ModeModify Mode = "modify"
)

// Isolation is the sandbox level passed to the external CLI.
type Isolation string

const (
	IsolationReadOnly       Isolation = "read-only"
	IsolationWorkspaceWrite Isolation = "workspace-write"
)

// ReasoningEffort overrides the assistant's model reasoning depth.
// The empty value means "use the assistant's default".
type ReasoningEffort string

const (
	EffortUnset  ReasoningEffort = ""
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

var (
	ErrInvalidMode             = errors.New("invalid mode")
	ErrMissingWorkingDirectory = errors.New("working directory is required")
	ErrIncompatibleOption      = errors.New("incompatible option")
	ErrInvalidReasoningEffort  = errors.New("invalid reasoning effort")
)

// ParseMode converts a user-supplied string into a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeQuestion, ModeReview, ModeModify:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("%w: %q (expected question, review, or modify)", ErrInvalidMode, value)
	}
}

// IsolationFor returns the sandbox level a mode must run under.
func IsolationFor(mode Mode) (Isolation, error) {
	switch mode {
	case ModeQuestion, ModeReview:
		return IsolationReadOnly, nil
	case ModeModify:
		return IsolationWorkspaceWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

// Validate enforces the mode table before any command is built:
// review and modify need a working directory, and modify cannot be
// combined with web search.
func Validate(mode Mode, workingDir string, search bool) error {
	switch mode {
	case ModeQuestion:
		// Working directory optional, search allowed.
	case ModeReview:
		if workingDir == "" {
			return fmt.Errorf("%w for mode %q", ErrMissingWorkingDirectory, mode)
		}
	case ModeModify:
		if workingDir == "" {
			return fmt.Errorf("%w for mode %q", ErrMissingWorkingDirectory, mode)
		}
		if search {
			return fmt.Errorf("%w: web search cannot be combined with mode %q", ErrIncompatibleOption, mode)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return nil
}

// ParseReasoningEffort validates a reasoning effort override. The empty
// string is accepted and means no override.
func ParseReasoningEffort(value string) (ReasoningEffort, error) {
	switch ReasoningEffort(value) {
	case EffortUnset, EffortLow, EffortMedium, EffortHigh:
		return ReasoningEffort(value), nil
	default:
		return "", fmt.Errorf("%w: %q (expected low, medium, or high)", ErrInvalidReasoningEffort, value)
	}
}

// NormalizeIsolation whitelists a sandbox value read back from a rally log.
// An empty value (missing metadata line) quietly defaults to read-only; any
// other unrecognized value also becomes read-only but logs a warning so the
// downgrade is visible. The result is never more permissive than the input.
func NormalizeIsolation(value string, logger *slog.Logger) Isolation {
	switch Isolation(value) {
	case IsolationReadOnly, IsolationWorkspaceWrite:
		return Isolation(value)
	case "":
		return IsolationReadOnly
	default:
		if logger != nil {
			logger.Warn("unrecognized sandbox level in log, using read-only", "value", value)
		}
		return IsolationReadOnly
	}
}

// ModeFor maps a sandbox level recovered from a log back to the run mode a
// resumed consultation should use. A workspace-write log without a working
// directory cannot satisfy the modify-mode contract, so it downgrades to a
// plain question with a warning.
func ModeFor(isolation Isolation, hasWorkingDir bool, logger *slog.Logger) Mode {
	if isolation == IsolationWorkspaceWrite {
		if hasWorkingDir {
			return ModeModify
		}
		if logger != nil {
			logger.Warn("workspace-write log has no working directory, running in question mode")
		}
		return ModeQuestion
	}
	if hasWorkingDir {
		return ModeReview
	}
	return ModeQuestion
}

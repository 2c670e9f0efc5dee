package cli

import (
	"context"
	"errors"

	"github.com/sotakeda/bounce/internal/interactive"
	"github.com/sotakeda/bounce/internal/runner"
)

// ErrPartial marks a run that produced usable output but did not finish
// cleanly, such as the assistant exiting nonzero after printing an answer.
var ErrPartial = errors.New("run completed with errors")

// ExitCode maps an error returned by Execute to the process exit code:
// 0 success, 1 partial output worth reading, 2 fatal, 3 interrupted.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 3
	case errors.Is(err, ErrPartial),
		errors.Is(err, runner.ErrTimeout),
		errors.Is(err, interactive.ErrTimeout):
		return 1
	default:
		return 2
	}
}

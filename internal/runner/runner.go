// Package runner executes one-shot batch invocations of the external
// assistant CLI. Output streams to the caller's terminal and is captured at
// the same time, so session ids and reply text can be recovered after the
// process exits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSpawn reports that the external binary could not be launched at all.
	ErrSpawn = errors.New("failed to launch external command")
	// ErrTimeout reports that the wall-clock budget expired before the
	// process exited. The accompanying Result still carries partial output.
	ErrTimeout = errors.New("external command timed out")
)

// sessionIDPattern matches the session identifier the assistant announces in
// its output, e.g. "session id: 0199a213-81ee-7800-8aab-9dca69975f5c".
// Matching is case-insensitive and tolerant of surrounding text.
var sessionIDPattern = regexp.MustCompile(`(?i)session id:\s*([0-9a-f-]{8,})`)

// Result captures the outcome of one batch invocation.
type Result struct {
	RunID     string
	ExitCode  int
	SessionID string
	Output    string
	Duration  time.Duration
}

// Runner executes batch invocations. Stdout and Stderr default to the
// process's own streams; tests substitute buffers.
type Runner struct {
	Stdout    io.Writer
	Stderr    io.Writer
	KillGrace time.Duration
	Logger    *slog.Logger
}

// New returns a Runner wired to the current terminal with the default
// 5 second kill grace.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		KillGrace: 5 * time.Second,
		Logger:    logger,
	}
}

// Run spawns argv and waits for it to finish within timeout (0 means no
// limit). The child's exit code is data, not an error: a nonzero exit
// returns a nil error with Result.ExitCode set. Each call spawns exactly
// once; there are no retries.
func (r *Runner) Run(ctx context.Context, argv []string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("%w: empty argv", ErrSpawn)
	}

	runID := fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	logger := r.logger()

	capture := &lockedBuffer{}
	proc := exec.Command(argv[0], argv[1:]...)
	proc.Stdout = io.MultiWriter(r.stdout(), capture)
	proc.Stderr = io.MultiWriter(r.stderr(), capture)
	// Bound pipe draining after exit so an orphaned grandchild holding the
	// output fds cannot stall Wait indefinitely.
	proc.WaitDelay = r.grace()

	start := time.Now()
	if err := proc.Start(); err != nil {
		return Result{RunID: runID}, fmt.Errorf("%w: %s: %v", ErrSpawn, argv[0], err)
	}

	logger.Info("external command started",
		"run_id", runID,
		"pid", proc.Process.Pid,
		"bin", argv[0],
		"timeout", timeout)

	exitChan := make(chan error, 1)
	go func() {
		exitChan <- proc.Wait()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case waitErr := <-exitChan:
		result := r.collect(runID, capture, start)
		if waitErr != nil {
			var exitErr *exec.ExitError
			switch {
			case errors.As(waitErr, &exitErr):
				result.ExitCode = exitErr.ExitCode()
				logger.Warn("external command exited with error",
					"run_id", runID,
					"exit_code", result.ExitCode)
				return result, nil
			case errors.Is(waitErr, exec.ErrWaitDelay):
				// Process exited cleanly; only the pipe drain was cut short.
				if proc.ProcessState != nil {
					result.ExitCode = proc.ProcessState.ExitCode()
				}
				return result, nil
			default:
				return result, fmt.Errorf("failed to wait for external command: %w", waitErr)
			}
		}
		logger.Info("external command finished",
			"run_id", runID,
			"duration", result.Duration,
			"session_id", result.SessionID)
		return result, nil

	case <-expired:
		logger.Warn("external command timed out, terminating",
			"run_id", runID,
			"timeout", timeout)
		r.terminate(proc, exitChan, logger)
		result := r.collect(runID, capture, start)
		return result, fmt.Errorf("%w after %s", ErrTimeout, timeout)

	case <-ctx.Done():
		logger.Warn("run cancelled, terminating external command", "run_id", runID)
		r.terminate(proc, exitChan, logger)
		result := r.collect(runID, capture, start)
		return result, ctx.Err()
	}
}

// terminate asks the process to exit and escalates to SIGKILL after the
// grace window. It returns once the wait goroutine has observed the exit.
func (r *Runner) terminate(proc *exec.Cmd, exitChan <-chan error, logger *slog.Logger) {
	if proc.Process == nil {
		return
	}

	if err := proc.Process.Signal(syscall.SIGTERM); err != nil {
		proc.Process.Kill()
		<-exitChan
		return
	}

	select {
	case <-exitChan:
	case <-time.After(r.grace()):
		logger.Warn("process ignored SIGTERM, killing")
		proc.Process.Kill()
		<-exitChan
	}
}

func (r *Runner) grace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return 5 * time.Second
}

func (r *Runner) collect(runID string, capture *lockedBuffer, start time.Time) Result {
	output := capture.String()
	return Result{
		RunID:     runID,
		SessionID: ExtractSessionID(output),
		Output:    output,
		Duration:  time.Since(start),
	}
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ExtractSessionID scans combined output for a session id announcement and
// returns the first one, or "" when the assistant never printed one. The
// announcement precedes any reply text, so the first match cannot be a
// quoted echo. Absence is not an error; resumability is simply reduced.
func ExtractSessionID(output string) string {
	m := sessionIDPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], "-")
}

// lockedBuffer accumulates combined stdout and stderr. Both pipes write
// concurrently, so access is mutex-guarded.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

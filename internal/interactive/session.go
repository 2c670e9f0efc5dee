// Package interactive drives the external assistant's terminal UI through a
// pseudo-terminal. Prompts are injected as keystrokes, one character at a
// time, and replies are detected by watching the output buffer go idle.
//
// The session lifecycle is created -> spawning -> ready -> sending or
// collecting -> terminated. Terminated is absorbing: a killed session
// cannot be reused.
package interactive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/sotakeda/bounce/internal/cmdline"
	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/runner"
)

var (
	// ErrSpawn reports that the assistant could not be started under a PTY,
	// including the case where it exits within the startup grace window.
	ErrSpawn = errors.New("failed to spawn interactive session")
	// ErrTimeout reports that Collect hit its maximum wait. The reply text
	// gathered so far is still returned; the session stays usable.
	ErrTimeout = errors.New("reply collection hit maximum wait")
)

// State names a point in the session lifecycle.
type State string

const (
	StateCreated    State = "created"
	StateSpawning   State = "spawning"
	StateReady      State = "ready"
	StateSending    State = "sending"
	StateCollecting State = "collecting"
	StateTerminated State = "terminated"
)

// Keystrokes understood by the assistant's TUI input handler.
const (
	keyEscape    = "\x1b" // cancel any half-entered input
	keyLineClear = "\x15" // Ctrl+U, clear the input line
	keyInterrupt = "\x03" // Ctrl+C
	keySubmit    = "\r"
)

// editPause separates the editor-reset keystrokes from each other and from
// the prompt text.
const editPause = 100 * time.Millisecond

// Options configure a session spawn. Zero values take defaults.
type Options struct {
	// Base is the configured assistant launcher argv.
	Base       []string
	WorkingDir string
	Effort     policy.ReasoningEffort
	Search     bool
	// InitialPrompt, when set, is passed on the command line instead of
	// being typed after startup.
	InitialPrompt string

	// Cols and Rows fix the viewport; the TUI renders against this size
	// for the whole session. Defaults 120x40.
	Cols uint16
	Rows uint16

	KeystrokeDelay time.Duration // default 15ms
	SettleDelay    time.Duration // default 500ms
	SpawnGrace     time.Duration // default 2s

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Cols == 0 {
		o.Cols = 120
	}
	if o.Rows == 0 {
		o.Rows = 40
	}
	if o.KeystrokeDelay <= 0 {
		o.KeystrokeDelay = 15 * time.Millisecond
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.SpawnGrace <= 0 {
		o.SpawnGrace = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Session is a live assistant process attached to a PTY. Methods are safe
// for concurrent use, but the state machine admits one Send or Collect at a
// time.
type Session struct {
	opts   Options
	logger *slog.Logger

	cmd  *exec.Cmd
	ptmx *os.File

	mu         sync.Mutex
	state      State
	buf        bytes.Buffer    // reply window, cleared by Send
	transcript strings.Builder // everything ever printed, for session-id scan
	exited     bool

	waitDone chan struct{}
	killOnce sync.Once
}

// Spawn starts the assistant under a PTY and waits out the startup grace
// window. A process that dies inside the window never reaches ready; that is
// reported as a spawn failure together with whatever the process printed.
func Spawn(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	shell, err := cmdline.BuildInteractiveShell(opts.Base, opts.WorkingDir, opts.Effort, opts.Search, opts.InitialPrompt)
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:     opts,
		logger:   opts.Logger,
		state:    StateCreated,
		waitDone: make(chan struct{}),
	}

	cmd := exec.Command("/bin/sh", "-c", shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	s.setState(StateSpawning)
	s.logger.Info("spawning interactive session", "cols", opts.Cols, "rows", opts.Rows)
	s.logger.Debug("interactive shell line", "line", shell)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.cmd = cmd
	s.ptmx = ptmx

	go s.readLoop()
	go s.waitForExit()

	select {
	case <-s.waitDone:
		out := strings.TrimSpace(StripANSI(s.Transcript()))
		s.Kill()
		return nil, fmt.Errorf("%w: process exited during startup: %s", ErrSpawn, out)
	case <-ctx.Done():
		s.Kill()
		return nil, ctx.Err()
	case <-time.After(opts.SpawnGrace):
	}

	s.setState(StateReady)
	s.logger.Info("interactive session ready", "pid", cmd.Process.Pid)
	return s, nil
}

// Send injects a prompt as keystrokes. The reply buffer is cleared first so
// the next Collect sees only output produced after this prompt. Send
// failures are fatal to the session.
func (s *Session) Send(prompt string) error {
	if !s.Alive() {
		return fmt.Errorf("session process has exited")
	}
	if err := s.transition(StateReady, StateSending); err != nil {
		return err
	}

	s.clearBuffer()

	if err := s.press(keyEscape); err != nil {
		return s.sendFailed(err)
	}
	time.Sleep(editPause)
	if err := s.press(keyLineClear); err != nil {
		return s.sendFailed(err)
	}
	time.Sleep(editPause)

	// The TUI's input handler drops pasted bursts, so type rune by rune.
	for _, r := range prompt {
		if err := s.press(string(r)); err != nil {
			return s.sendFailed(err)
		}
		time.Sleep(s.opts.KeystrokeDelay)
	}

	time.Sleep(s.opts.SettleDelay)
	if err := s.press(keySubmit); err != nil {
		return s.sendFailed(err)
	}

	s.setState(StateReady)
	s.logger.Debug("prompt injected", "chars", len(prompt))
	return nil
}

func (s *Session) sendFailed(err error) error {
	s.Kill()
	return fmt.Errorf("failed to send prompt: %w", err)
}

// Collect waits for the assistant's reply using idle detection: once the
// output buffer stops growing for a full idle window the reply is taken as
// complete. Process exit completes collection early and is not an error;
// hitting MaxWait returns ErrTimeout along with the partial text. The
// returned text is ANSI-stripped but otherwise untouched.
func (s *Session) Collect(ctx context.Context, opts CollectOptions) (string, error) {
	if err := s.transition(StateReady, StateCollecting); err != nil {
		return "", err
	}
	defer s.setState(StateReady)

	reason, err := waitIdle(ctx, opts, func() (int, bool) {
		return s.bufferLen(), s.Alive()
	})

	if reason == stopExit {
		// Let the reader drain whatever the process wrote on its way out.
		time.Sleep(50 * time.Millisecond)
	}

	text := StripANSI(s.bufferString())

	switch {
	case err != nil:
		return text, err
	case reason == stopMaxWait:
		return text, fmt.Errorf("%w (%s)", ErrTimeout, opts.withDefaults().MaxWait)
	default:
		return text, nil
	}
}

// Kill tears the session down: an interrupt keystroke first so the TUI can
// restore the terminal, then a hard kill if it lingers. Safe to call any
// number of times.
func (s *Session) Kill() error {
	s.killOnce.Do(func() {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()

		_ = s.press(keyInterrupt)
		select {
		case <-s.waitDone:
		case <-time.After(500 * time.Millisecond):
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			select {
			case <-s.waitDone:
			case <-time.After(2 * time.Second):
				s.logger.Warn("interactive process did not exit after kill")
			}
		}
		s.ptmx.Close()
		s.logger.Info("interactive session terminated")
	})
	return nil
}

// Alive reports whether the underlying process is still running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exited
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID scans everything the session has printed for a session id
// announcement. Empty when the assistant never printed one.
func (s *Session) SessionID() string {
	return runner.ExtractSessionID(s.Transcript())
}

// Transcript returns all raw output seen since spawn, including what Send
// cleared from the reply buffer.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(buf[:n])
			s.transcript.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			// EIO is the normal end: the child exited and the slave side
			// of the PTY closed.
			return
		}
	}
}

func (s *Session) waitForExit() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()

	close(s.waitDone)
	s.logger.Debug("interactive process exited", "error", err)
}

func (s *Session) press(keys string) error {
	_, err := s.ptmx.Write([]byte(keys))
	return err
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("session is %s", s.state)
	}
	s.state = to
	return nil
}

// setState moves to st unless the session is already terminated; terminated
// is absorbing.
func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.state = st
}

func (s *Session) clearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

func (s *Session) bufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *Session) bufferString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

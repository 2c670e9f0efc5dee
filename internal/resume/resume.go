// Package resume drives consultations that continue an existing rally log.
// The log file is the only state a conversation has: resuming means telling
// the assistant to re-read the log, then recording the new exchange back
// into it.
package resume

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/sotakeda/bounce/internal/cmdline"
	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/rallylog"
	"github.com/sotakeda/bounce/internal/runner"
)

// noOutput is recorded when the assistant exits without printing anything,
// so the response section never ends up empty.
const noOutput = "(no output captured)"

// RunOptions carries the per-invocation knobs a resumed run accepts.
type RunOptions struct {
	Timeout time.Duration
	Effort  policy.ReasoningEffort
	Search  bool
}

// Orchestrator resumes consultations from rally logs. Mode and sandbox are
// recovered from the log's metadata, never from flags, so a resumed run can
// never be more permissive than the run that created the log.
type Orchestrator struct {
	Store  *rallylog.Store
	Runner *runner.Runner
	// Base is the configured assistant CLI launcher argv.
	Base   []string
	Logger *slog.Logger
}

// Continue runs a new instruction against an existing log. The assistant is
// pointed at the log for context; on success the instruction and reply are
// recorded as the next rally. Returns the runner result and the rally number
// recorded.
func (o *Orchestrator) Continue(ctx context.Context, logPath, instruction string, opts RunOptions) (runner.Result, int, error) {
	if strings.TrimSpace(instruction) == "" {
		return runner.Result{}, 0, fmt.Errorf("instruction is required")
	}

	content, meta, isolation, err := o.load(logPath)
	if err != nil {
		return runner.Result{}, 0, err
	}

	next := rallylog.CurrentRally(content) + 1
	mode := policy.ModeFor(isolation, meta.WorkingDir != "", o.logger())
	prompt := continuationPrompt(logPath, next, instruction)

	res, err := o.invoke(ctx, mode, meta.WorkingDir, prompt, opts)
	if err != nil {
		return res, next, err
	}

	if err := o.Store.InsertRequest(logPath, instruction, next); err != nil {
		return res, next, fmt.Errorf("run finished but request could not be recorded: %w", err)
	}
	if err := o.Store.AppendResponse(logPath, replyText(res), res.SessionID, next); err != nil {
		return res, next, fmt.Errorf("run finished but response could not be recorded: %w", err)
	}

	o.logger().Info("rally recorded", "path", logPath, "rally", next, "mode", mode)
	return res, next, nil
}

// Answer responds to the request already pending in the log, without adding
// a new one. This covers the workflow where the log was written by hand (or
// by the template) and the assistant's reply is still outstanding. Re-running
// it replaces the same response section.
func (o *Orchestrator) Answer(ctx context.Context, logPath string, opts RunOptions) (runner.Result, int, error) {
	content, meta, isolation, err := o.load(logPath)
	if err != nil {
		return runner.Result{}, 0, err
	}

	rally := rallylog.CurrentRally(content)
	mode := policy.ModeFor(isolation, meta.WorkingDir != "", o.logger())
	prompt := answerPrompt(logPath, rally)

	res, err := o.invoke(ctx, mode, meta.WorkingDir, prompt, opts)
	if err != nil {
		return res, rally, err
	}

	if err := o.Store.AppendResponse(logPath, replyText(res), res.SessionID, rally); err != nil {
		return res, rally, fmt.Errorf("run finished but response could not be recorded: %w", err)
	}

	o.logger().Info("pending request answered", "path", logPath, "rally", rally, "mode", mode)
	return res, rally, nil
}

// load validates the log and recovers its metadata. Validation precedes
// every spawn; a log archived away since the caller picked it surfaces as
// ErrNotFound here, not as a confusing assistant failure.
func (o *Orchestrator) load(logPath string) (string, rallylog.Meta, policy.Isolation, error) {
	if err := o.Store.Validate(logPath); err != nil {
		return "", rallylog.Meta{}, "", err
	}
	content, err := o.Store.Read(logPath)
	if err != nil {
		return "", rallylog.Meta{}, "", err
	}
	meta := rallylog.ParseMeta(content)
	isolation := policy.NormalizeIsolation(meta.Isolation, o.logger())
	return content, meta, isolation, nil
}

func (o *Orchestrator) invoke(ctx context.Context, mode policy.Mode, workingDir, prompt string, opts RunOptions) (runner.Result, error) {
	args, err := cmdline.BuildArgs(o.Base, mode, workingDir, prompt, opts.Effort, opts.Search)
	if err != nil {
		return runner.Result{}, err
	}
	return o.Runner.Run(ctx, args, opts.Timeout)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// continuationPrompt synthesizes the batch prompt for a continued rally. The
// log path is normalized to forward slashes so the assistant sees the same
// shape on every platform.
func continuationPrompt(logPath string, rally int, instruction string) string {
	return fmt.Sprintf(
		"Read the conversation log at %s to recover the full context of this consultation. Then respond to request %d: %s",
		slashPath(logPath), rally, instruction)
}

// answerPrompt synthesizes the batch prompt for answering the request that
// is already written in the log.
func answerPrompt(logPath string, rally int) string {
	return fmt.Sprintf(
		"Read the conversation log at %s to recover the full context of this consultation. Then answer request %d exactly as it is written in the log.",
		slashPath(logPath), rally)
}

func slashPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.ToSlash(abs)
}

func replyText(res runner.Result) string {
	reply := strings.TrimSpace(res.Output)
	if reply == "" {
		return noOutput
	}
	return reply
}

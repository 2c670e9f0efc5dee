package resume

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotakeda/bounce/internal/policy"
	"github.com/sotakeda/bounce/internal/rallylog"
	"github.com/sotakeda/bounce/internal/runner"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// fakeAssistant writes a shell script that records its argv one-per-line and
// prints a canned reply. Base argv ["sh", script] makes the orchestrator
// treat it as the assistant CLI.
func fakeAssistant(t *testing.T, argsFile, reply string) []string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "assistant.sh")
	body := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$@\" > '%s'\necho 'session id: 0195cafe-0000-1111-2222-333344445555'\necho '%s'\n", argsFile, reply)
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return []string{"sh", script}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, base []string) (*Orchestrator, *rallylog.Store) {
	t.Helper()
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "template.md")
	_, err := rallylog.EnsureTemplate(templatePath)
	require.NoError(t, err)

	store := rallylog.NewStore(dir, templatePath, discardLogger())
	return &Orchestrator{
		Store:  store,
		Runner: &runner.Runner{Stdout: io.Discard, Stderr: io.Discard, KillGrace: time.Second, Logger: discardLogger()},
		Base:   base,
		Logger: discardLogger(),
	}, store
}

func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestContinue_RecordsNextRally(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "the follow-up reply"))

	logPath, err := store.Create("retry semantics", "", "", policy.IsolationReadOnly, nil)
	require.NoError(t, err)

	res, rally, err := o.Continue(context.Background(), logPath, "what about jitter?", RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 2, rally, "template log already holds rally 1")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "0195cafe-0000-1111-2222-333344445555", res.SessionID)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "## Request 2\n\nwhat about jitter?")
	assert.Contains(t, content, "the follow-up reply")
	assert.Contains(t, content, "- Session-ID: 0195cafe-0000-1111-2222-333344445555")
	assert.Less(t, strings.Index(content, "## Response 2"), strings.Index(content, "## Conclusion"))
}

func TestContinue_ArgvShape(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "ok"))

	logPath, err := store.Create("no workspace", "", "", policy.IsolationReadOnly, nil)
	require.NoError(t, err)

	_, _, err = o.Continue(context.Background(), logPath, "go on", RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)

	args := recordedArgs(t, argsFile)
	assert.Equal(t, []string{"exec", "--full-auto", "--skip-git-repo-check", "--sandbox", "read-only"}, args[:5])
	assert.NotContains(t, args, "--cd", "sentinel working directory must not produce a --cd flag")

	prompt := args[len(args)-1]
	assert.Contains(t, prompt, "respond to request 2: go on")
	assert.Contains(t, prompt, filepath.ToSlash(logPath))
	assert.NotContains(t, prompt, "\\", "log path must be forward-slash normalized")
}

func TestContinue_WorkspaceWriteLog(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "edited"))

	workDir := t.TempDir()
	logPath, err := store.Create("apply fix", "", workDir, policy.IsolationWorkspaceWrite, nil)
	require.NoError(t, err)

	_, _, err = o.Continue(context.Background(), logPath, "apply the fix", RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)

	args := recordedArgs(t, argsFile)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--sandbox workspace-write")
	assert.Contains(t, joined, "--cd "+workDir)
}

func TestContinue_UnknownSandboxDowngrades(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "careful reply"))

	workDir := t.TempDir()
	logPath := filepath.Join(store.Dir, "tampered.md")
	content := fmt.Sprintf("# Rally Log\n\n- Topic: tampered\n- Session-ID: (pending)\n- Working-Directory: %s\n- Sandbox: yolo\n\n## Request 1\n\nq\n", workDir)
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0644))

	_, rally, err := o.Continue(context.Background(), logPath, "more", RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 2, rally)

	args := recordedArgs(t, argsFile)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--sandbox read-only", "unrecognized sandbox must downgrade, never escalate")
}

func TestContinue_EmptyInstruction(t *testing.T) {
	o, _ := newOrchestrator(t, []string{"sh"})

	_, _, err := o.Continue(context.Background(), "whatever.md", "   ", RunOptions{})
	assert.Error(t, err)
}

func TestContinue_MissingLog(t *testing.T) {
	o, store := newOrchestrator(t, []string{"sh"})

	_, _, err := o.Continue(context.Background(), filepath.Join(store.Dir, "gone.md"), "hi", RunOptions{})
	assert.ErrorIs(t, err, rallylog.ErrNotFound)
}

func TestContinue_TimeoutLeavesLogUntouched(t *testing.T) {
	requireSh(t)

	script := filepath.Join(t.TempDir(), "hang.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 30\n"), 0755))

	o, store := newOrchestrator(t, []string{"sh", script})
	logPath, err := store.Create("timeout case", "", "", policy.IsolationReadOnly, nil)
	require.NoError(t, err)

	before, err := os.ReadFile(logPath)
	require.NoError(t, err)

	_, _, err = o.Continue(context.Background(), logPath, "never lands", RunOptions{Timeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, runner.ErrTimeout)

	after, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "a failed run must not mutate the log")
}

func TestAnswer_RepliesToPendingRequest(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "here is the answer"))

	logPath, err := store.Create("pending question", "", "", policy.IsolationReadOnly, nil)
	require.NoError(t, err)

	res, rally, err := o.Answer(context.Background(), logPath, RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, rally, "answers the rally already in the log, not a new one")
	assert.NotEmpty(t, res.SessionID)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "here is the answer")
	assert.NotContains(t, content, "## Request 2")
	assert.Equal(t, 1, strings.Count(content, "## Response 1"))

	prompt := recordedArgs(t, argsFile)
	assert.Contains(t, prompt[len(prompt)-1], "answer request 1")
}

func TestAnswer_Idempotent(t *testing.T) {
	requireSh(t)

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	o, store := newOrchestrator(t, fakeAssistant(t, argsFile, "same answer"))

	logPath, err := store.Create("run twice", "", "", policy.IsolationReadOnly, nil)
	require.NoError(t, err)

	_, _, err = o.Answer(context.Background(), logPath, RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
	_, _, err = o.Answer(context.Background(), logPath, RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "## Response 1"))
}

func TestPromptSynthesis(t *testing.T) {
	p := continuationPrompt("rallylogs/a.md", 3, "tighten the loop")
	assert.Contains(t, p, "request 3")
	assert.Contains(t, p, "tighten the loop")
	assert.Contains(t, p, "/rallylogs/a.md")

	a := answerPrompt("rallylogs/a.md", 1)
	assert.Contains(t, a, "request 1")
	assert.Contains(t, a, "/rallylogs/a.md")
}

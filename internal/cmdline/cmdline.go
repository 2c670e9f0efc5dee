// Package cmdline builds the argument vectors handed to the external
// assistant CLI. Construction is pure: identical inputs always produce an
// identical argv, and flag order never varies between runs.
package cmdline

import (
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/sotakeda/bounce/internal/policy"
)

// Flags understood by the Codex CLI. The full-autonomy pair is always
// present so a run can never stall waiting for an interactive confirmation.
const (
	flagFullAuto    = "--full-auto"
	flagSkipGitRepo = "--skip-git-repo-check"
	flagSandbox     = "--sandbox"
	flagWorkingDir  = "--cd"
	flagSearch      = "--search"
	flagOverride    = "-c"

	execSubcommand = "exec"
	reasoningKey   = "model_reasoning_effort"
)

// BuildArgs assembles the argv for a one-shot batch invocation. base is the
// configured launcher (for example ["npx", "-y", "@openai/codex"]); the
// prompt is always the final positional argument. The mode table is enforced
// here so no invocation can be constructed that violates it.
func BuildArgs(base []string, mode policy.Mode, workingDir, prompt string, effort policy.ReasoningEffort, search bool) ([]string, error) {
	if len(base) == 0 {
		return nil, fmt.Errorf("external command is not configured")
	}
	if err := policy.Validate(mode, workingDir, search); err != nil {
		return nil, err
	}
	isolation, err := policy.IsolationFor(mode)
	if err != nil {
		return nil, err
	}
	if _, err := policy.ParseReasoningEffort(string(effort)); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(base)+12)
	args = append(args, base...)
	args = append(args, execSubcommand, flagFullAuto, flagSkipGitRepo)
	args = append(args, flagSandbox, string(isolation))
	if workingDir != "" {
		args = append(args, flagWorkingDir, workingDir)
	}
	if search {
		args = append(args, flagSearch)
	}
	if effort != policy.EffortUnset {
		args = append(args, flagOverride, fmt.Sprintf("%s=%s", reasoningKey, effort))
	}
	args = append(args, prompt)
	return args, nil
}

// InteractiveArgs assembles the argv for an interactive TUI session. There
// is no exec subcommand and the sandbox is always read-only; prompts are
// normally injected as keystrokes after spawn, but an initial prompt may be
// passed on the command line.
func InteractiveArgs(base []string, workingDir string, effort policy.ReasoningEffort, search bool, initialPrompt string) ([]string, error) {
	if len(base) == 0 {
		return nil, fmt.Errorf("external command is not configured")
	}
	if _, err := policy.ParseReasoningEffort(string(effort)); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(base)+10)
	args = append(args, base...)
	args = append(args, flagFullAuto, flagSkipGitRepo)
	args = append(args, flagSandbox, string(policy.IsolationReadOnly))
	if workingDir != "" {
		args = append(args, flagWorkingDir, workingDir)
	}
	if search {
		args = append(args, flagSearch)
	}
	if effort != policy.EffortUnset {
		args = append(args, flagOverride, fmt.Sprintf("%s=%s", reasoningKey, effort))
	}
	if initialPrompt != "" {
		args = append(args, initialPrompt)
	}
	return args, nil
}

// BuildInteractiveShell renders the interactive argv as a single shell line
// for the PTY launcher, which takes a command string rather than an argument
// vector. Every token is quoted as needed so prompts and paths containing
// spaces or quotes cannot terminate an argument early.
func BuildInteractiveShell(base []string, workingDir string, effort policy.ReasoningEffort, search bool, initialPrompt string) (string, error) {
	args, err := InteractiveArgs(base, workingDir, effort, search, initialPrompt)
	if err != nil {
		return "", err
	}
	return shellquote.Join(args...), nil
}

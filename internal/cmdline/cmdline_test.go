package cmdline

import (
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotakeda/bounce/internal/policy"
)

var testBase = []string{"npx", "-y", "@openai/codex"}

func TestBuildArgs_QuestionMode(t *testing.T) {
	args, err := BuildArgs(testBase, policy.ModeQuestion, "", "why is the sky blue", policy.EffortUnset, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "-y", "@openai/codex",
		"exec", "--full-auto", "--skip-git-repo-check",
		"--sandbox", "read-only",
		"why is the sky blue",
	}, args)
}

func TestBuildArgs_ReviewModeIncludesWorkingDir(t *testing.T) {
	args, err := BuildArgs(testBase, policy.ModeReview, "/repo", "review this", policy.EffortUnset, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "-y", "@openai/codex",
		"exec", "--full-auto", "--skip-git-repo-check",
		"--sandbox", "read-only",
		"--cd", "/repo",
		"review this",
	}, args)
}

func TestBuildArgs_ModifyModeUsesWorkspaceWrite(t *testing.T) {
	args, err := BuildArgs(testBase, policy.ModeModify, "/repo", "fix the bug", policy.EffortHigh, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "-y", "@openai/codex",
		"exec", "--full-auto", "--skip-git-repo-check",
		"--sandbox", "workspace-write",
		"--cd", "/repo",
		"-c", "model_reasoning_effort=high",
		"fix the bug",
	}, args)
}

func TestBuildArgs_SearchFlagPlacement(t *testing.T) {
	args, err := BuildArgs(testBase, policy.ModeQuestion, "", "look this up", policy.EffortLow, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "-y", "@openai/codex",
		"exec", "--full-auto", "--skip-git-repo-check",
		"--sandbox", "read-only",
		"--search",
		"-c", "model_reasoning_effort=low",
		"look this up",
	}, args)
}

func TestBuildArgs_PromptIsAlwaysLast(t *testing.T) {
	args, err := BuildArgs(testBase, policy.ModeReview, "/repo", "the prompt", policy.EffortMedium, true)
	require.NoError(t, err)
	assert.Equal(t, "the prompt", args[len(args)-1])
}

func TestBuildArgs_Deterministic(t *testing.T) {
	first, err := BuildArgs(testBase, policy.ModeReview, "/repo", "same input", policy.EffortMedium, true)
	require.NoError(t, err)
	second, err := BuildArgs(testBase, policy.ModeReview, "/repo", "same input", policy.EffortMedium, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildArgs_PolicyViolations(t *testing.T) {
	_, err := BuildArgs(testBase, policy.ModeReview, "", "prompt", policy.EffortUnset, false)
	assert.ErrorIs(t, err, policy.ErrMissingWorkingDirectory)

	_, err = BuildArgs(testBase, policy.ModeModify, "/repo", "prompt", policy.EffortUnset, true)
	assert.ErrorIs(t, err, policy.ErrIncompatibleOption)

	_, err = BuildArgs(testBase, policy.Mode("bogus"), "", "prompt", policy.EffortUnset, false)
	assert.ErrorIs(t, err, policy.ErrInvalidMode)
}

func TestBuildArgs_InvalidEffort(t *testing.T) {
	_, err := BuildArgs(testBase, policy.ModeQuestion, "", "prompt", policy.ReasoningEffort("extreme"), false)
	assert.ErrorIs(t, err, policy.ErrInvalidReasoningEffort)
}

func TestBuildArgs_EmptyBase(t *testing.T) {
	_, err := BuildArgs(nil, policy.ModeQuestion, "", "prompt", policy.EffortUnset, false)
	assert.Error(t, err)
}

func TestInteractiveArgs_NoExecSubcommandAlwaysReadOnly(t *testing.T) {
	args, err := InteractiveArgs(testBase, "", policy.EffortUnset, false, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "-y", "@openai/codex",
		"--full-auto", "--skip-git-repo-check",
		"--sandbox", "read-only",
	}, args)
	assert.NotContains(t, args, "exec")
	assert.NotContains(t, args, "workspace-write")
}

func TestInteractiveArgs_InitialPromptLast(t *testing.T) {
	args, err := InteractiveArgs(testBase, "/repo", policy.EffortHigh, true, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "hello there", args[len(args)-1])
	assert.Contains(t, args, "--cd")
	assert.Contains(t, args, "--search")
}

func TestBuildInteractiveShell_QuotesPrompt(t *testing.T) {
	line, err := BuildInteractiveShell(testBase, "", policy.EffortUnset, false, `what does "injection" mean?`)
	require.NoError(t, err)

	// The prompt must survive as a single shell word.
	assert.Contains(t, line, `"injection"`)
	assert.True(t, strings.HasPrefix(line, "npx -y @openai/codex"))

	words, err := shellquote.Split(line)
	require.NoError(t, err)
	assert.Equal(t, `what does "injection" mean?`, words[len(words)-1])
}

func TestBuildInteractiveShell_SingleQuotesInPrompt(t *testing.T) {
	line, err := BuildInteractiveShell(testBase, "/tmp/my repo", policy.EffortUnset, false, "it's o'clock")
	require.NoError(t, err)

	words, err := shellquote.Split(line)
	require.NoError(t, err)
	assert.Equal(t, "it's o'clock", words[len(words)-1])
	assert.Contains(t, words, "/tmp/my repo")
}

package interactive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoScript stands in for the assistant TUI: it announces a session id,
// then echoes every submitted line back with a "reply:" prefix. Launcher
// flags appended by the command builder are ignored.
const echoScript = `#!/bin/sh
echo "fake assistant ready"
echo "session id: 11112222-3333-4444-5555-666677778888"
while IFS= read -r line; do
  if [ -n "$line" ]; then
    echo "reply: $line"
  fi
done
`

const dyingScript = `#!/bin/sh
echo "fatal: missing api key"
exit 7
`

const slowExitScript = `#!/bin/sh
echo "warming up"
sleep 1
echo "late words"
`

const chattyScript = `#!/bin/sh
while true; do echo tick; sleep 0.05; done
`

func requirePTY(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("PTY sessions require a Unix platform")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-assistant.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func testOptions(base []string) Options {
	return Options{
		Base:           base,
		Cols:           80,
		Rows:           24,
		KeystrokeDelay: time.Millisecond,
		SettleDelay:    20 * time.Millisecond,
		SpawnGrace:     300 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func quickCollect() CollectOptions {
	return CollectOptions{
		IdleTimeout:  300 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		MaxWait:      15 * time.Second,
	}
}

func TestSpawn_SendCollectRoundTrip(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, echoScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)
	defer s.Kill()

	assert.Equal(t, StateReady, s.State())
	assert.True(t, s.Alive())

	require.NoError(t, s.Send("hello"))
	text, err := s.Collect(context.Background(), quickCollect())
	require.NoError(t, err)
	assert.Contains(t, text, "reply: hello")
}

func TestSpawn_RepeatedRalliesClearTheBuffer(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, echoScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)
	defer s.Kill()

	require.NoError(t, s.Send("first"))
	text, err := s.Collect(context.Background(), quickCollect())
	require.NoError(t, err)
	assert.Contains(t, text, "reply: first")

	require.NoError(t, s.Send("second"))
	text, err = s.Collect(context.Background(), quickCollect())
	require.NoError(t, err)
	assert.Contains(t, text, "reply: second")
	assert.NotContains(t, text, "reply: first")
}

func TestSpawn_SessionIDFromStartupBanner(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, echoScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)
	defer s.Kill()

	// The banner predates any Send, so it only survives in the transcript.
	require.NoError(t, s.Send("ping"))
	_, err = s.Collect(context.Background(), quickCollect())
	require.NoError(t, err)

	assert.Equal(t, "11112222-3333-4444-5555-666677778888", s.SessionID())
}

func TestSpawn_EarlyExitIsSpawnError(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, dyingScript)
	_, err := Spawn(context.Background(), testOptions([]string{script}))
	require.ErrorIs(t, err, ErrSpawn)
	assert.Contains(t, err.Error(), "missing api key")
}

func TestCollect_ProcessExitCompletesEarly(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, slowExitScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)
	defer s.Kill()

	start := time.Now()
	text, err := s.Collect(context.Background(), CollectOptions{
		IdleTimeout:  30 * time.Second,
		PollInterval: 50 * time.Millisecond,
		MaxWait:      time.Minute,
	})
	require.NoError(t, err)
	assert.Contains(t, text, "late words")
	assert.Less(t, time.Since(start), 10*time.Second, "exit should end collection long before the idle window")
}

func TestCollect_MaxWaitReturnsPartialText(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, chattyScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)
	defer s.Kill()

	text, err := s.Collect(context.Background(), CollectOptions{
		IdleTimeout:  5 * time.Second,
		PollInterval: 50 * time.Millisecond,
		MaxWait:      700 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, text, "tick")

	// A collect timeout is not fatal to the session.
	assert.True(t, s.Alive())
}

func TestKill_IsIdempotent(t *testing.T) {
	requirePTY(t)

	script := writeScript(t, echoScript)
	s, err := Spawn(context.Background(), testOptions([]string{script}))
	require.NoError(t, err)

	require.NoError(t, s.Kill())
	require.NoError(t, s.Kill())
	assert.Equal(t, StateTerminated, s.State())
	assert.False(t, s.Alive())

	err = s.Send("too late")
	assert.Error(t, err)
}

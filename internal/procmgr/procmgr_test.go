package procmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyclaw/core/internal/common/config"
)

func newTestManager() *Manager {
	return New(config.ProcessConfig{}, nil)
}

func TestSpawnAndPollEcho(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), "echo hello", "", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m.PollAll()
		out, err := m.CombinedOutput(id)
		return err == nil && out == "hello\n"
	}, 2*time.Second, 10*time.Millisecond)

	info, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, StatusExited, info.Status.Kind)
	require.Equal(t, 0, *info.Status.ExitCode)
}

func TestKillIsIdempotent(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), "sleep 5", "", 0)
	require.NoError(t, err)

	require.NoError(t, m.Kill(id))
	require.NoError(t, m.Kill(id))

	require.Eventually(t, func() bool {
		info, _ := m.Get(id)
		return info.Status.Kind == StatusKilled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollOutputAdvancesWatermark(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), "echo one; sleep 0.2; echo two", "", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out, _ := m.PollOutput(id)
		return out == "one\n"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		out, _ := m.PollOutput(id)
		return out == "two\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogOutputBoundaryBehaviors(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), "printf 'a\\nb\\nc\\nd\\ne\\n'", "", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m.PollAll()
		info, _ := m.Get(id)
		return info.Status.Kind != StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	limit2 := 2
	lines, err := m.LogOutput(id, nil, &limit2)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "e"}, lines)

	offset1 := 1
	lines, err = m.LogOutput(id, &offset1, &limit2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, lines)
}

func TestTranslateKeys(t *testing.T) {
	require.Equal(t, []byte{0x0a}, translateKeys("Enter"))
	require.Equal(t, []byte{0x03}, translateKeys("Ctrl-C"))
	require.Equal(t, []byte(esc+"[A"+esc+"[B"+esc+"[D"+esc+"[C"), translateKeys("Up Down Left Right"))
}

func TestSendKeysWritesTranslatedBytes(t *testing.T) {
	m := newTestManager()
	id, err := m.Spawn(context.Background(), "cat", "", 0)
	require.NoError(t, err)

	require.NoError(t, m.SendKeys(id, "hi Enter"))
	require.NoError(t, m.Kill(id))
}

package taskmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/eventbus"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.TaskConfig{
		ControlChanCapacity:   32,
		BroadcastChanCapacity: 256,
		CleanupIntervalMS:     1000,
		RetentionMinutes:      60,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, cfg, nil)
	t.Cleanup(func() {
		cancel()
		_ = m.Wait()
	})
	return m
}

func TestSpawnStartsPending(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")
	require.Equal(t, StatusPending, h.Info().Status)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")

	err := m.Transition(h.ID(), StatusPaused)
	require.Error(t, err)
}

func TestTransitionToTerminalIsFinalAndSetsFinishedMs(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")

	require.NoError(t, m.Transition(h.ID(), StatusRunning))
	require.NoError(t, m.Transition(h.ID(), StatusCompleted))

	info := h.Info()
	require.Equal(t, StatusCompleted, info.Status)
	require.NotNil(t, info.FinishedMs)

	err := m.Transition(h.ID(), StatusRunning)
	require.Error(t, err)
}

func TestDispatchCancelSendsControlAndTransitions(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")
	require.NoError(t, m.Transition(h.ID(), StatusRunning))

	require.NoError(t, m.Dispatch(h.ID(), Control{Kind: ControlCancel}))

	require.Equal(t, StatusCancelled, h.Info().Status)
	select {
	case cmd := <-h.ControlChannel():
		require.Equal(t, ControlCancel, cmd.Kind)
	default:
		t.Fatal("expected cancel control command to be queued")
	}
}

func TestForegroundInvariantBackgroundsPriorTask(t *testing.T) {
	m := newTestManager(t)
	sub := m.Subscribe()

	a := m.Spawn("session-1")
	b := m.Spawn("session-1")

	require.NoError(t, m.Foreground(a.ID()))
	drainUntil(t, sub, EventForegrounded, a.ID())

	require.NoError(t, m.Foreground(b.ID()))
	drainUntil(t, sub, EventBackgrounded, a.ID())
	drainUntil(t, sub, EventForegrounded, b.ID())

	require.Equal(t, StatusBackground, a.Info().Status)
	require.Equal(t, StatusRunning, b.Info().Status)

	id, ok := m.ForegroundTaskID("session-1")
	require.True(t, ok)
	require.Equal(t, b.ID(), id)
}

func TestOutputPublishesToTaskSubscriberAndManagerBus(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")
	taskSub := h.Subscribe()
	managerSub := m.Subscribe()

	require.NoError(t, m.Output(h.ID(), "hello"))

	require.Equal(t, "hello", <-taskSub.Events)
	ev := <-managerSub.Events
	require.Equal(t, EventOutput, ev.Kind)
	require.Equal(t, "hello", ev.Output)
}

func TestCleanupOldRemovesAgedTerminalTasks(t *testing.T) {
	m := newTestManager(t)
	h := m.Spawn("session-1")
	require.NoError(t, m.Transition(h.ID(), StatusRunning))
	require.NoError(t, m.Transition(h.ID(), StatusCompleted))

	removed := m.CleanupOld(-time.Second) // negative window: everything terminal qualifies
	require.Contains(t, removed, h.ID())

	_, err := m.Get(h.ID())
	require.Error(t, err)
}

// drainUntil reads events off sub until it sees one matching kind and
// taskID, to tolerate intervening StatusChanged events from Foreground's
// own Running transition.
func drainUntil(t *testing.T, sub *eventbus.Subscription[Event], kind EventKind, taskID string) {
	t.Helper()
	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub.Events:
			if ev.Kind == kind && ev.TaskID == taskID {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s on %s", kind, taskID)
		}
	}
	t.Fatalf("did not observe %s on %s within bound", kind, taskID)
}

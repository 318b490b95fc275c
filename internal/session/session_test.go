package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyclaw/core/internal/common/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	cfg := config.SessionConfig{
		MaxMessages: 3,
		ArchivePath: filepath.Join(dir, "archive.jsonl"),
		IndexPath:   filepath.Join(dir, "archive.db"),
	}
	return New(cfg, nil)
}

func TestGetOrCreateMainIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	first := r.GetOrCreateMain("agent-1")
	second := r.GetOrCreateMain("agent-1")

	require.Equal(t, first.Key, second.Key)
	require.Equal(t, "agent:agent-1:main", first.Key)
	require.Equal(t, KindMain, first.Kind)
	require.Equal(t, StatusActive, first.Status)
}

func TestSpawnSubagentProducesUniqueKeysAndLabelLookup(t *testing.T) {
	r := newTestRegistry(t)

	label := "reviewer"
	task := "review the diff"
	s1, err := r.SpawnSubagent("agent-1", task, &label, nil)
	require.NoError(t, err)
	s2, err := r.SpawnSubagent("agent-1", task, nil, nil)
	require.NoError(t, err)

	require.NotEqual(t, s1.Key, s2.Key)
	require.Contains(t, s1.Key, "agent:agent-1:subagent:")

	found, ok := r.GetByLabel(label)
	require.True(t, ok)
	require.Equal(t, s1.Key, found.Key)
}

func TestLabelLatestWriteWins(t *testing.T) {
	r := newTestRegistry(t)

	label := "reviewer"
	task := "task"
	first, err := r.SpawnSubagent("agent-1", task, &label, nil)
	require.NoError(t, err)
	second, err := r.SpawnSubagent("agent-1", task, &label, nil)
	require.NoError(t, err)

	found, ok := r.GetByLabel(label)
	require.True(t, ok)
	require.Equal(t, second.Key, found.Key)
	require.NotEqual(t, first.Key, found.Key)
}

func TestMessageRingEvictsOldestBeyondBound(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")

	require.NoError(t, r.AddMessage(s.Key, "user", "one"))
	require.NoError(t, r.AddMessage(s.Key, "assistant", "two"))
	require.NoError(t, r.AddMessage(s.Key, "user", "three"))
	require.NoError(t, r.AddMessage(s.Key, "assistant", "four"))

	history, err := r.History(s.Key, 0, true)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "two", history[0].Content)
	require.Equal(t, "four", history[2].Content)
}

func TestHistoryFiltersToolRoleAndTruncatesToLimit(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")

	require.NoError(t, r.AddMessage(s.Key, "user", "a"))
	require.NoError(t, r.AddMessage(s.Key, "tool", "b"))
	require.NoError(t, r.AddMessage(s.Key, "assistant", "c"))

	withTools, err := r.History(s.Key, 0, true)
	require.NoError(t, err)
	require.Len(t, withTools, 3)

	withoutTools, err := r.History(s.Key, 0, false)
	require.NoError(t, err)
	require.Len(t, withoutTools, 2)
	require.Equal(t, "a", withoutTools[0].Content)
	require.Equal(t, "c", withoutTools[1].Content)

	limited, err := r.History(s.Key, 1, false)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "c", limited[0].Content)
}

func TestAddMessageRejectsNonActiveSession(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")

	require.NoError(t, r.Complete(s.Key))
	err := r.AddMessage(s.Key, "user", "too late")
	require.Error(t, err)
}

func TestArchiveSessionRemovesFromMemoryAndPersists(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")
	require.NoError(t, r.AddMessage(s.Key, "user", "hi"))

	require.NoError(t, r.ArchiveSession(s.Key))

	_, ok := r.Get(s.Key)
	require.False(t, ok)

	archived, ok, err := r.GetArchivedSession(s.Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusStopped, archived.Status)
	require.NotNil(t, archived.FinishedMs)
	require.Len(t, archived.Messages, 1)
}

func TestArchiveSessionPreservesCompletedStatus(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")
	require.NoError(t, r.Complete(s.Key))
	require.NoError(t, r.ArchiveSession(s.Key))

	archived, ok, err := r.GetArchivedSession(s.Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, archived.Status)
}

func TestListArchivedSessionsOrdersNewestFirst(t *testing.T) {
	r := newTestRegistry(t)

	older := r.GetOrCreateMain("agent-older")
	require.NoError(t, r.ArchiveSession(older.Key))

	// ArchiveSession stamps finished_ms in milliseconds; sleep so the
	// second record is strictly newer.
	time.Sleep(5 * time.Millisecond)

	newer := r.GetOrCreateMain("agent-newer")
	newer.FinishedMs = nil
	require.NoError(t, r.ArchiveSession(newer.Key))

	list, err := r.ListArchivedSessions(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.Key, list[0].Key)
	require.Equal(t, older.Key, list[1].Key)

	limited, err := r.ListArchivedSessions(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestPruneArchivedSessionsDropsOldRecords(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")
	require.NoError(t, r.ArchiveSession(s.Key))

	// A prune window of 0 days keeps nothing finished before "now";
	// since ArchiveSession stamps finished_ms at call time, a negative
	// cutoff guarantees eviction without fudging the clock.
	require.NoError(t, r.PruneArchivedSessions(-1))

	_, ok, err := r.GetArchivedSession(s.Key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetUnknownSessionReturnsFalse(t *testing.T) {
	r := newTestRegistry(t)
	_, ok := r.Get("agent:missing:main")
	require.False(t, ok)
}

func TestArchiveIndexRebuildAndRangeQuery(t *testing.T) {
	r := newTestRegistry(t)
	s := r.GetOrCreateMain("agent-1")
	require.NoError(t, r.ArchiveSession(s.Key))

	idx, err := OpenArchiveIndex(r.indexPath)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, r.RebuildArchiveIndex(idx))

	future := *(r.mustArchived(t, s.Key).FinishedMs) + 1000
	keys, err := idx.KeysOlderThan(future)
	require.NoError(t, err)
	require.Contains(t, keys, s.Key)
}

// mustArchived is a small test-only helper to fetch a record already
// known to be archived.
func (r *Registry) mustArchived(t *testing.T, key string) *Session {
	t.Helper()
	rec, ok, err := r.GetArchivedSession(key)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}

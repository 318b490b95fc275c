package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/session"
	"github.com/rustyclaw/core/internal/thread"
)

func newTestServerDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	sessions := session.New(config.SessionConfig{
		MaxMessages: 10,
		ArchivePath: filepath.Join(dir, "archive.jsonl"),
		IndexPath:   filepath.Join(dir, "archive.db"),
	}, nil)
	threads := thread.New(config.ThreadConfig{StatePath: filepath.Join(dir, "state.json")}, nil)
	return Deps{Sessions: sessions, Threads: threads, Tasks: nil, Logger: nil}
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	deps := newTestServerDeps(t)
	srv := New(":0", deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestGetSessionNotFoundReturns404(t *testing.T) {
	deps := newTestServerDeps(t)
	srv := New(":0", deps)

	req := httptest.NewRequest(http.MethodGet, "/sessions/agent:missing:main", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionReturnsExistingMainSession(t *testing.T) {
	deps := newTestServerDeps(t)
	deps.Sessions.GetOrCreateMain("agent-1")
	srv := New(":0", deps)

	req := httptest.NewRequest(http.MethodGet, "/sessions/agent:agent-1:main", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "agent:agent-1:main")
}

func TestListThreadsReturnsEmptyArray(t *testing.T) {
	deps := newTestServerDeps(t)
	srv := New(":0", deps)

	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

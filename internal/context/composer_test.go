package ctxcompose

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestComposeSkipsMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, fileSoul, "soul content")
	writeFile(t, dir, fileTools, "   ")

	c := New()
	out := c.Compose(Request{
		WorkspaceDir: dir,
		SessionType:  SessionMain,
		Toggles:      Toggles{Soul: true, Tools: true, Agents: true},
	})

	require.Contains(t, out, "soul content")
	require.NotContains(t, out, TagStart+"\n\n")
}

func TestGroupAndIsolatedOmitUserAndMemoryRegardlessOfToggles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, fileUser, "user content")
	writeFile(t, dir, fileMemory, "memory content")
	writeFile(t, dir, fileSoul, "soul content")

	c := New()
	for _, st := range []SessionType{SessionGroup, SessionIsolated} {
		out := c.Compose(Request{
			WorkspaceDir: dir,
			SessionType:  st,
			Toggles:      Toggles{User: true, Memory: true, Soul: true},
		})
		require.NotContains(t, out, "user content")
		require.NotContains(t, out, "memory content")
		require.Contains(t, out, "soul content")
	}
}

func TestMainSessionIncludesUserAndMemoryWhenToggled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, fileUser, "user content")
	writeFile(t, dir, fileMemory, "memory content")

	c := New()
	out := c.Compose(Request{
		WorkspaceDir: dir,
		SessionType:  SessionMain,
		Toggles:      Toggles{User: true, Memory: true},
	})
	require.Contains(t, out, "user content")
	require.Contains(t, out, "memory content")
}

func TestInjectDailyReadsLookbackWindow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "memory"), 0o700))
	today := time.Now().Format("2006-01-02")
	writeFile(t, dir, "memory/"+today+".md", "todays note")

	c := New()
	out := c.Compose(Request{
		WorkspaceDir:      dir,
		SessionType:       SessionMain,
		Toggles:           Toggles{InjectDaily: true},
		DailyLookbackDays: 7,
	})
	require.Contains(t, out, "todays note")
}

func TestIsolatedAddendumIncludesParentTaskAndLabel(t *testing.T) {
	dir := t.TempDir()
	c := New()
	out := c.Compose(Request{
		WorkspaceDir:     dir,
		SessionType:      SessionIsolated,
		ParentSessionKey: "agent:x:main",
		Task:             "refactor the parser",
		Label:            "refactor",
	})
	require.Contains(t, out, "agent:x:main")
	require.Contains(t, out, "refactor the parser")
	require.Contains(t, out, "exit cleanly")
}

func TestAuditFilesReportsExistence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, fileSoul, "soul content")

	c := New()
	entries := c.AuditFiles(Request{
		WorkspaceDir: dir,
		SessionType:  SessionMain,
		Toggles:      Toggles{Soul: true, Tools: true},
	})

	byName := map[string]bool{}
	for _, e := range entries {
		byName[filepath.Base(e.Path)] = e.Exists
	}
	require.True(t, byName[fileSoul])
	require.False(t, byName[fileTools])
}

func TestAuditFilesIncludesDailyNotesWhenInjectDailyIsSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "memory"), 0o700))
	today := time.Now().Format("2006-01-02")
	writeFile(t, dir, "memory/"+today+".md", "todays note")

	c := New()
	entries := c.AuditFiles(Request{
		WorkspaceDir:      dir,
		SessionType:       SessionMain,
		Toggles:           Toggles{InjectDaily: true},
		DailyLookbackDays: 2,
	})

	byName := map[string]bool{}
	for _, e := range entries {
		byName[filepath.Base(e.Path)] = e.Exists
	}
	require.True(t, byName[today+".md"])
	require.Len(t, entries, 3) // today + 2 lookback days, none toggled well-known files

	noDaily := c.AuditFiles(Request{WorkspaceDir: dir, SessionType: SessionMain})
	require.Empty(t, noDaily)
}

package ctxcompose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TagStart and TagEnd mark a composed section as system-injected content
// so downstream UIs can strip it from what they show the user.
const (
	TagStart = "<rustyclaw-context>"
	TagEnd   = "</rustyclaw-context>"
)

// Composer assembles workspace context per Request.
type Composer struct{}

// New constructs a Composer. It carries no state of its own; every
// operation is a pure function of its Request and the filesystem at call
// time.
func New() *Composer {
	return &Composer{}
}

type candidate struct {
	name    string
	enabled bool
}

func (c *Composer) candidates(req Request) []candidate {
	list := []candidate{
		{fileSoul, req.Toggles.Soul},
		{fileAgents, req.Toggles.Agents},
		{fileTools, req.Toggles.Tools},
		{fileIdentity, req.Toggles.Identity},
		{fileUser, req.Toggles.User},
		{fileMemory, req.Toggles.Memory},
		{fileHeartbeat, req.Toggles.Heartbeat},
	}
	if req.SessionType != SessionMain {
		for i := range list {
			if mainOnlyFiles[list[i].name] {
				list[i].enabled = false
			}
		}
	}
	return list
}

// Compose reads the eligible well-known files and the isolated-addendum
// block (if applicable) and returns one concatenated, tag-wrapped prompt
// section. Files that do not exist or are empty are silently skipped.
func (c *Composer) Compose(req Request) string {
	var sections []string

	for _, cand := range c.candidates(req) {
		if !cand.enabled {
			continue
		}
		content := readTrimmed(filepath.Join(req.WorkspaceDir, cand.name))
		if content == "" {
			continue
		}
		sections = append(sections, content)
	}

	if req.SessionType == SessionMain && req.Toggles.InjectDaily {
		sections = append(sections, c.dailyNotes(req)...)
	}

	if req.SessionType == SessionIsolated {
		sections = append(sections, c.isolatedAddendum(req))
	}

	if len(sections) == 0 {
		return ""
	}
	return TagStart + "\n" + strings.Join(sections, "\n\n") + "\n" + TagEnd
}

func (c *Composer) dailyNotes(req Request) []string {
	var out []string
	for _, path := range dailyNotePaths(req) {
		content := readTrimmed(path)
		if content == "" {
			continue
		}
		out = append(out, content)
	}
	return out
}

// dailyNotePaths returns the absolute paths of every daily-note file
// in req's lookback window, newest first: today back through
// DailyLookbackDays prior days.
func dailyNotePaths(req Request) []string {
	lookback := req.DailyLookbackDays
	if lookback < 0 {
		lookback = 0
	}
	today := time.Now()
	paths := make([]string, 0, lookback+1)
	for i := 0; i <= lookback; i++ {
		day := today.AddDate(0, 0, -i)
		name := fmt.Sprintf("memory/%s.md", day.Format("2006-01-02"))
		paths = append(paths, filepath.Join(req.WorkspaceDir, name))
	}
	return paths
}

func (c *Composer) isolatedAddendum(req Request) string {
	var b strings.Builder
	b.WriteString("SUB-AGENT GUIDELINES:\n")
	if req.ParentSessionKey != "" {
		b.WriteString("- Parent session: " + req.ParentSessionKey + "\n")
	}
	if req.Task != "" {
		b.WriteString("- Assigned task: " + req.Task + "\n")
	}
	if req.Label != "" {
		b.WriteString("- Label: " + req.Label + "\n")
	}
	b.WriteString("- If a required resource is blocked or unavailable, exit cleanly rather than loop.")
	return b.String()
}

// AuditFiles returns (path, exists) for every file that would be
// included given req's config and session type: the well-known files
// plus, for a Main request with InjectDaily set, every daily-note file
// in the lookback window. The isolated addendum is synthesized text,
// not a filesystem file, so it has no audit entry.
func (c *Composer) AuditFiles(req Request) []AuditEntry {
	var out []AuditEntry
	for _, cand := range c.candidates(req) {
		if !cand.enabled {
			continue
		}
		path := filepath.Join(req.WorkspaceDir, cand.name)
		_, err := os.Stat(path)
		out = append(out, AuditEntry{Path: path, Exists: err == nil})
	}
	if req.SessionType == SessionMain && req.Toggles.InjectDaily {
		for _, path := range dailyNotePaths(req) {
			_, err := os.Stat(path)
			out = append(out, AuditEntry{Path: path, Exists: err == nil})
		}
	}
	return out
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

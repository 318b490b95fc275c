// Package ctxcompose implements ContextComposer (component F): given a
// workspace directory, a session type, and per-file toggles, it reads a
// set of well-known workspace files and assembles a single prompt
// section, wrapped in tags that mark it as system-injected content so
// downstream consumers can strip it from what they show the user.
package ctxcompose

// SessionType scopes which well-known files are eligible for inclusion.
type SessionType string

const (
	SessionMain     SessionType = "main"
	SessionGroup    SessionType = "group"
	SessionIsolated SessionType = "isolated"
)

// Toggles selects which well-known files the caller wants included. The
// User and Memory toggles take effect only for Main sessions.
type Toggles struct {
	Soul        bool
	Agents      bool
	Tools       bool
	Identity    bool
	User        bool
	Memory      bool
	Heartbeat   bool
	InjectDaily bool
}

// Request is the composer's input shape, matching spec.md's "workspace
// context request".
type Request struct {
	WorkspaceDir     string
	SessionType      SessionType
	Toggles          Toggles
	DailyLookbackDays int

	// ParentSessionKey, Task, and Label feed the Isolated sub-agent
	// addendum; all optional.
	ParentSessionKey string
	Task             string
	Label            string
}

// AuditEntry names one file that would be included given the current
// config and session type, and whether it exists on disk.
type AuditEntry struct {
	Path   string
	Exists bool
}

const (
	fileSoul      = "SOUL.md"
	fileAgents    = "AGENTS.md"
	fileTools     = "TOOLS.md"
	fileIdentity  = "IDENTITY.md"
	fileUser      = "USER.md"
	fileMemory    = "MEMORY.md"
	fileHeartbeat = "HEARTBEAT.md"
)

// mainOnlyFiles are omitted from Group/Isolated prompts regardless of
// their individual toggles.
var mainOnlyFiles = map[string]bool{
	fileUser:   true,
	fileMemory: true,
}

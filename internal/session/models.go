// Package session implements SessionRegistry (component C): typed
// conversations with parent linkage, bounded message history, and
// archival to an append-only log.
package session

// Kind classifies a session's origin.
type Kind string

const (
	KindMain     Kind = "main"
	KindSubagent Kind = "subagent"
	KindCron     Kind = "cron"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusStopped   Status = "stopped"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout, StatusStopped:
		return true
	default:
		return false
	}
}

// Message is one entry in a session's bounded history.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedMs int64  `json:"created_ms"`
}

// Session is one typed conversation transport bound to an agent id.
type Session struct {
	Key        string    `json:"key"`
	AgentID    string    `json:"agent_id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Label      *string   `json:"label,omitempty"`
	Task       *string   `json:"task,omitempty"`
	CreatedMs  int64     `json:"created_ms"`
	FinishedMs *int64    `json:"finished_ms,omitempty"`
	Messages   []Message `json:"messages"`
	RunID      *string   `json:"run_id,omitempty"`
	ParentKey  *string   `json:"parent_key,omitempty"`
}

// Package thread implements ThreadManager (component D): user-visible
// units of agent focus ("tabs" in UI terms), distinct from
// SessionRegistry's conversation transports. At most one thread is
// foreground at a time; background threads may still contribute to the
// system prompt via shared context.
package thread

// Kind classifies what a thread represents.
type Kind string

const (
	KindChat       Kind = "chat"
	KindSubAgent   Kind = "sub_agent"
	KindBackground Kind = "background"
	KindTask       Kind = "task"
)

// ephemeral reports whether threads of this kind are eligible for
// automatic cleanup once terminal and idle past retention.
func (k Kind) ephemeral() bool {
	return k == KindTask || k == KindBackground
}

// Status is a thread's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Message is one entry in a thread's displayed conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedMs int64  `json:"created_ms"`
}

// Thread is one user-visible focus tab.
type Thread struct {
	ID             string    `json:"id"`
	SessionKey     string    `json:"session_key"`
	Kind           Kind      `json:"kind"`
	AgentID        string    `json:"agent_id,omitempty"`
	Task           string    `json:"task,omitempty"`
	Purpose        string    `json:"purpose,omitempty"`
	Action         string    `json:"action,omitempty"`
	Label          string    `json:"label"`
	Description    string    `json:"description,omitempty"`
	Status         Status    `json:"status"`
	ParentID       *string   `json:"parent_id,omitempty"`
	IsForeground   bool      `json:"is_foreground"`
	ShareContext   bool      `json:"share_context"`
	Messages       []Message `json:"messages"`
	CompactSummary *string   `json:"compact_summary,omitempty"`
	Result         *string   `json:"result,omitempty"`
	Error          *string   `json:"error,omitempty"`
	LastActivityMs int64     `json:"last_activity_ms"`
}

// documentV1 is the on-disk shape of the whole thread set.
type documentV1 struct {
	Threads      []Thread `json:"threads"`
	ForegroundID *string  `json:"foreground_id,omitempty"`
}

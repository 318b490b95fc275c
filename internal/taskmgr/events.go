package taskmgr

// EventKind names the variant of a manager-wide broadcast Event.
type EventKind string

const (
	EventStatusChanged EventKind = "status_changed"
	EventOutput        EventKind = "output"
	EventForegrounded  EventKind = "foregrounded"
	EventBackgrounded  EventKind = "backgrounded"
)

// Event is published on the manager-wide Bus for every state change and
// output message.
type Event struct {
	Kind   EventKind
	TaskID string
	Old    Status
	New    Status
	Output string
}

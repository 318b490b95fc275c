package thread

// EventKind names the variant of an Event.
type EventKind string

const (
	EventForegrounded EventKind = "foregrounded"
	EventBackgrounded EventKind = "backgrounded"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"
	EventCleanedUp    EventKind = "cleaned_up"
)

// Event is broadcast on the manager's Bus after every user-observable
// state change: foreground swaps, completion, failure, and cleanup.
type Event struct {
	Kind       EventKind `json:"kind"`
	ThreadID   string    `json:"thread_id"`
	PreviousID *string   `json:"previous_id,omitempty"`
}

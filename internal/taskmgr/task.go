package taskmgr

import (
	"sync"

	"github.com/rustyclaw/core/internal/eventbus"
)

const (
	controlChanCapacityDefault   = 32
	broadcastChanCapacityDefault = 256
)

// task is the manager's internal record. Handle is the cheaply-cloneable
// public view callers keep after Spawn.
type task struct {
	mu sync.Mutex

	id         string
	sessionKey string
	status     Status
	createdMs  int64
	finishedMs *int64
	progress   float64

	control chan Control
	output  *eventbus.Bus[string]
}

func newTask(id, sessionKey string, createdMs int64, controlCap, outputCap int) *task {
	if controlCap <= 0 {
		controlCap = controlChanCapacityDefault
	}
	if outputCap <= 0 {
		outputCap = broadcastChanCapacityDefault
	}
	return &task{
		id:         id,
		sessionKey: sessionKey,
		status:     StatusPending,
		createdMs:  createdMs,
		control:    make(chan Control, controlCap),
		output:     eventbus.New[string](outputCap),
	}
}

func (t *task) snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:         t.id,
		SessionKey: t.sessionKey,
		Status:     t.status,
		CreatedMs:  t.createdMs,
		FinishedMs: t.finishedMs,
		Progress:   t.progress,
	}
}

// Handle is a cheaply-cloneable reference to a live task, returned from
// Spawn and Get. Cloning a Handle (copying the struct) is safe; both
// copies observe the same underlying task.
type Handle struct {
	t *task
}

// ID returns the task's identifier.
func (h Handle) ID() string { return h.t.id }

// Info returns a point-in-time snapshot of the task's state.
func (h Handle) Info() Info { return h.t.snapshot() }

// Subscribe yields a fresh receiver for this task's output broadcast.
func (h Handle) Subscribe() *eventbus.Subscription[string] {
	return h.t.output.Subscribe()
}

// Control sends a control command on the task's bounded control channel.
// It blocks if the channel is full; callers needing a non-blocking send
// should select with a default case themselves.
func (h Handle) Control(c Control) {
	h.t.control <- c
}

// ControlChannel exposes the receive side for the task's own consumer
// loop (the component that actually executes the task body).
func (h Handle) ControlChannel() <-chan Control {
	return h.t.control
}

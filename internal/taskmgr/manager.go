package taskmgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
	"github.com/rustyclaw/core/internal/eventbus"
)

// Manager implements TaskManager. State lives behind a single read-write
// lock: reads (list, get) proceed concurrently, writes (spawn,
// transition, foreground swap) are exclusive. A background goroutine,
// supervised by an errgroup so any error it returns surfaces through
// Wait rather than vanishing silently, periodically sweeps
// terminal+aged tasks; context cancellation ends it with a nil error.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*task

	foreground map[string]string // sessionKey -> taskID

	controlCap   int
	outputCap    int
	cleanupEvery time.Duration
	retention    time.Duration

	bus    *eventbus.Bus[Event]
	logger *logger.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

func nowMs() int64 { return time.Now().UnixMilli() }

// New constructs a Manager from cfg and starts its background cleanup
// sweep under ctx. Callers stop the sweep by cancelling ctx (or calling
// Stop) and should call Wait to observe any sweep-goroutine error.
func New(ctx context.Context, cfg config.TaskConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	every := time.Duration(cfg.CleanupIntervalMS) * time.Millisecond
	if every <= 0 {
		every = time.Minute
	}
	retention := time.Duration(cfg.RetentionMinutes) * time.Minute
	if retention <= 0 {
		retention = time.Hour
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)

	m := &Manager{
		tasks:        make(map[string]*task),
		foreground:   make(map[string]string),
		controlCap:   cfg.ControlChanCapacity,
		outputCap:    cfg.BroadcastChanCapacity,
		cleanupEvery: every,
		retention:    retention,
		bus:          eventbus.New[Event](256),
		logger:       log.WithFields(zap.String("component", "taskmgr")),
		cancel:       cancel,
		group:        group,
	}

	group.Go(func() error {
		return m.cleanupLoop(runCtx)
	})

	return m
}

func (m *Manager) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupOld(m.retention)
		}
	}
}

// Stop cancels the background cleanup sweep. Wait should be called
// afterward to drain the supervising errgroup.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until the cleanup goroutine exits, returning its error (nil
// on ordinary cancellation).
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Subscribe yields a fresh receiver for manager-wide StatusChanged/Output
// events.
func (m *Manager) Subscribe() *eventbus.Subscription[Event] {
	return m.bus.Subscribe()
}

// Spawn creates a new Pending task bound to sessionKey.
func (m *Manager) Spawn(sessionKey string) Handle {
	t := newTask(uuid.NewString(), sessionKey, nowMs(), m.controlCap, m.outputCap)

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	return Handle{t: t}
}

// Get returns a Handle to an existing task.
func (m *Manager) Get(id string) (Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Handle{}, apperr.New(apperr.KindNotFound, "taskmgr", "unknown task: "+id)
	}
	return Handle{t: t}, nil
}

// List returns a snapshot of every tracked task.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Transition moves task id to newStatus, validating against the state
// machine, emitting StatusChanged, and clearing foreground if the task
// becomes terminal.
func (m *Manager) Transition(id string, newStatus Status) error {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "taskmgr", "unknown task: "+id)
	}

	t.mu.Lock()
	old := t.status
	if old.terminal() {
		t.mu.Unlock()
		return apperr.New(apperr.KindConflict, "taskmgr", "task already terminal: "+id)
	}
	if !validTransitions[old][newStatus] {
		t.mu.Unlock()
		return apperr.New(apperr.KindInvalidInput, "taskmgr", "illegal transition "+string(old)+"->"+string(newStatus))
	}
	t.status = newStatus
	if newStatus.terminal() {
		ts := nowMs()
		t.finishedMs = &ts
	}
	sessionKey := t.sessionKey
	t.mu.Unlock()

	if newStatus.terminal() {
		m.mu.Lock()
		if m.foreground[sessionKey] == id {
			delete(m.foreground, sessionKey)
		}
		m.mu.Unlock()
	}

	m.bus.Publish(Event{Kind: EventStatusChanged, TaskID: id, Old: old, New: newStatus})
	return nil
}

// Dispatch applies a control command: Cancel both sends on the task's
// control channel and transitions its state, since a running task may
// not poll the channel before exiting on its own. Progress updates the
// task's progress snapshot without a state transition.
func (m *Manager) Dispatch(id string, cmd Control) error {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "taskmgr", "unknown task: "+id)
	}

	select {
	case t.control <- cmd:
	default:
		m.logger.Warn("control channel full, dropping command", zap.String("task_id", id))
	}

	switch cmd.Kind {
	case ControlCancel:
		return m.Transition(id, StatusCancelled)
	case ControlPause:
		return m.Transition(id, StatusPaused)
	case ControlResume:
		return m.Transition(id, StatusRunning)
	case ControlBackground:
		return m.Transition(id, StatusBackground)
	case ControlForeground:
		return m.Foreground(id)
	case ControlProgress:
		t.mu.Lock()
		t.progress = cmd.Progress
		t.mu.Unlock()
	}
	return nil
}

// Foreground makes id the foreground task for its session, first
// backgrounding the prior foreground task (if any) and emitting
// Backgrounded for it, then emitting Foregrounded for id.
func (m *Manager) Foreground(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "taskmgr", "unknown task: "+id)
	}
	sessionKey := t.sessionKey

	prior, hadPrior := m.foreground[sessionKey]
	m.foreground[sessionKey] = id
	m.mu.Unlock()

	if hadPrior && prior != id {
		if err := m.Transition(prior, StatusBackground); err == nil {
			m.bus.Publish(Event{Kind: EventBackgrounded, TaskID: prior})
		}
	}

	if t.snapshot().Status == StatusPending {
		if err := m.Transition(id, StatusRunning); err != nil {
			return err
		}
	}

	m.bus.Publish(Event{Kind: EventForegrounded, TaskID: id})
	return nil
}

// ForegroundTaskID returns the task id currently foreground for
// sessionKey, if any.
func (m *Manager) ForegroundTaskID(sessionKey string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.foreground[sessionKey]
	return id, ok
}

// Output publishes an output chunk on both the task's own broadcast and
// the manager-wide Output event.
func (m *Manager) Output(id, chunk string) error {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "taskmgr", "unknown task: "+id)
	}
	t.output.Publish(chunk)
	m.bus.Publish(Event{Kind: EventOutput, TaskID: id, Output: chunk})
	return nil
}

// CleanupOld removes terminal tasks whose finished_ms is older than
// maxAge, dropping their control and output channels.
func (m *Manager) CleanupOld(maxAge time.Duration) []string {
	cutoff := nowMs() - maxAge.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, t := range m.tasks {
		t.mu.Lock()
		eligible := t.status.terminal() && t.finishedMs != nil && *t.finishedMs < cutoff
		sessionKey := t.sessionKey
		t.mu.Unlock()
		if !eligible {
			continue
		}
		delete(m.tasks, id)
		if m.foreground[sessionKey] == id {
			delete(m.foreground, sessionKey)
		}
		removed = append(removed, id)
	}
	return removed
}

package thread

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
	"github.com/rustyclaw/core/internal/eventbus"
)

const maxGlobalContextMessageLen = 100

// Manager implements ThreadManager. It keeps thread state behind a single
// read-write lock: reads (list, get, build_global_context) proceed
// concurrently, writes (create, transitions, foreground swaps) are
// exclusive, the same mutex-guarded-map shape SessionRegistry uses for
// its own in-memory state.
type Manager struct {
	mu           sync.RWMutex
	threads      map[string]*Thread
	foregroundID *string

	statePath string
	retention time.Duration

	bus    *eventbus.Bus[Event]
	logger *logger.Logger
}

// New constructs a Manager from cfg. It does not load persisted state;
// callers invoke LoadFromFile explicitly at startup.
func New(cfg config.ThreadConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		threads:   make(map[string]*Thread),
		statePath: cfg.StatePath,
		retention: time.Hour,
		bus:       eventbus.New[Event](256),
		logger:    log.WithFields(zap.String("component", "thread")),
	}
}

// Subscribe yields a fresh receiver for thread lifecycle events.
func (m *Manager) Subscribe() *eventbus.Subscription[Event] {
	return m.bus.Subscribe()
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Create registers a new thread. A Chat thread is made foreground
// immediately, backgrounding whatever thread previously held it. Every
// other kind is created background-only, with the Task auto-foreground
// rule left to TransitionRunning.
func (m *Manager) Create(t Thread) (*Thread, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.LastActivityMs = nowMs()
	if t.Kind == KindChat {
		t.IsForeground = true
	}

	m.mu.Lock()

	if _, exists := m.threads[t.ID]; exists {
		m.mu.Unlock()
		return nil, apperr.New(apperr.KindConflict, "thread", "thread already exists: "+t.ID)
	}

	var previous *string
	if t.Kind == KindChat {
		if m.foregroundID != nil {
			if prev, ok := m.threads[*m.foregroundID]; ok {
				prev.IsForeground = false
				p := prev.ID
				previous = &p
			}
		}
		fgID := t.ID
		m.foregroundID = &fgID
	}

	cp := t
	m.threads[t.ID] = &cp
	out := cp
	m.mu.Unlock()

	if t.Kind == KindChat {
		m.logger.Debug("created chat thread as foreground", zap.String("thread_id", t.ID))
		m.bus.Publish(Event{Kind: EventForegrounded, ThreadID: t.ID, PreviousID: previous})
	}
	return &out, nil
}

// Get returns a copy of the thread with the given id.
func (m *Manager) Get(id string) (*Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// List returns copies of every tracked thread.
func (m *Manager) List() []Thread {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Thread, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityMs < out[j].LastActivityMs })
	return out
}

// SwitchForeground atomically clears the previous foreground thread's
// flag before setting the new one's, then emits Foregrounded{id,
// previous}.
func (m *Manager) SwitchForeground(id string) error {
	m.mu.Lock()
	t, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "thread", "unknown thread: "+id)
	}

	var previous *string
	if m.foregroundID != nil {
		if prev, ok := m.threads[*m.foregroundID]; ok {
			prev.IsForeground = false
			p := prev.ID
			previous = &p
		}
	}
	t.IsForeground = true
	t.LastActivityMs = nowMs()
	fgID := id
	m.foregroundID = &fgID
	m.mu.Unlock()

	m.logger.Debug("switched foreground thread",
		zap.String("thread_id", id))
	m.bus.Publish(Event{Kind: EventForegrounded, ThreadID: id, PreviousID: previous})
	return nil
}

// TransitionRunning moves a thread to Running. When the thread is a Task
// thread and no thread is currently foreground for its session, it is
// foregrounded automatically.
func (m *Manager) TransitionRunning(id string) error {
	m.mu.Lock()
	t, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "thread", "unknown thread: "+id)
	}
	if t.Status.terminal() {
		m.mu.Unlock()
		return apperr.New(apperr.KindConflict, "thread", "thread already terminal: "+id)
	}
	t.Status = StatusRunning
	t.LastActivityMs = nowMs()

	needsAutoForeground := t.Kind == KindTask && !m.anyForegroundForSessionLocked(t.SessionKey)
	m.mu.Unlock()

	if needsAutoForeground {
		return m.SwitchForeground(id)
	}
	return nil
}

func (m *Manager) anyForegroundForSessionLocked(sessionKey string) bool {
	if m.foregroundID == nil {
		return false
	}
	fg, ok := m.threads[*m.foregroundID]
	return ok && fg.SessionKey == sessionKey
}

// Complete marks a thread Completed with the given summary/result.
func (m *Manager) Complete(id, summary, result string) error {
	return m.finish(id, StatusCompleted, func(t *Thread) {
		if summary != "" {
			t.CompactSummary = &summary
		}
		if result != "" {
			t.Result = &result
		}
	}, EventCompleted)
}

// Fail marks a thread Failed with the given error.
func (m *Manager) Fail(id, errMsg string) error {
	return m.finish(id, StatusFailed, func(t *Thread) {
		t.Error = &errMsg
	}, EventFailed)
}

func (m *Manager) finish(id string, status Status, mutate func(*Thread), kind EventKind) error {
	m.mu.Lock()
	t, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "thread", "unknown thread: "+id)
	}
	if t.Status.terminal() {
		m.mu.Unlock()
		return apperr.New(apperr.KindConflict, "thread", "thread already terminal: "+id)
	}
	t.Status = status
	t.LastActivityMs = nowMs()
	mutate(t)
	m.mu.Unlock()

	m.bus.Publish(Event{Kind: kind, ThreadID: id})
	return nil
}

// CleanupEphemeral evicts ephemeral-kind threads that are terminal and
// idle past retention.
func (m *Manager) CleanupEphemeral() []string {
	cutoff := nowMs() - m.retention.Milliseconds()

	m.mu.Lock()
	var removed []string
	for id, t := range m.threads {
		if !t.Kind.ephemeral() || !t.Status.terminal() {
			continue
		}
		if t.LastActivityMs >= cutoff {
			continue
		}
		delete(m.threads, id)
		if m.foregroundID != nil && *m.foregroundID == id {
			m.foregroundID = nil
		}
		removed = append(removed, id)
	}
	m.mu.Unlock()

	for _, id := range removed {
		m.bus.Publish(Event{Kind: EventCleanedUp, ThreadID: id})
	}
	return removed
}

// BuildGlobalContext assembles a multi-section string from every
// non-foreground thread with ShareContext set: the compact summary if
// present, otherwise the last two messages truncated to 100 chars each.
func (m *Manager) BuildGlobalContext() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for _, t := range m.threads {
		if t.IsForeground || !t.ShareContext {
			continue
		}
		b.WriteString("## ")
		if t.Label != "" {
			b.WriteString(t.Label)
		} else {
			b.WriteString(t.ID)
		}
		b.WriteString("\n")

		if t.CompactSummary != nil {
			b.WriteString(*t.CompactSummary)
			b.WriteString("\n\n")
			continue
		}

		tail := t.Messages
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		for _, msg := range tail {
			b.WriteString(truncate(msg.Content, maxGlobalContextMessageLen))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FindBestMatch scans non-foreground threads and returns the first whose
// label appears case-insensitively in content, else one whose
// description has >=2 words (each longer than 3 chars) present in
// content.
func (m *Manager) FindBestMatch(content string) (*Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(content)

	for _, t := range m.threads {
		if t.IsForeground || t.Label == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(t.Label)) {
			cp := *t
			return &cp, true
		}
	}

	for _, t := range m.threads {
		if t.IsForeground || t.Description == "" {
			continue
		}
		if descriptionMatches(lowered, t.Description) {
			cp := *t
			return &cp, true
		}
	}

	return nil, false
}

func descriptionMatches(loweredContent, description string) bool {
	words := strings.Fields(description)
	hits := 0
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		if strings.Contains(loweredContent, strings.ToLower(w)) {
			hits++
		}
	}
	return hits >= 2
}

package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
)

type entry struct {
	key        string
	agentID    string
	kind       Kind
	status     Status
	label      *string
	task       *string
	createdMs  int64
	finishedMs *int64
	runID      *string
	parentKey  *string
	msgs       *messageRing
}

func (e *entry) toSession() Session {
	return Session{
		Key:        e.key,
		AgentID:    e.agentID,
		Kind:       e.kind,
		Status:     e.status,
		Label:      e.label,
		Task:       e.task,
		CreatedMs:  e.createdMs,
		FinishedMs: e.finishedMs,
		Messages:   e.msgs.ordered(),
		RunID:      e.runID,
		ParentKey:  e.parentKey,
	}
}

// Registry implements SessionRegistry. It keeps its state behind a
// single read-write lock: reads (Get, History, list) proceed
// concurrently, writes (create, transitions) are exclusive.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	labels  map[string]string

	maxMessages int
	archivePath string
	indexPath   string
	index       *ArchiveIndex

	logger *logger.Logger
	archiveMu sync.Mutex // serializes archive-file read-modify-write per workspace
}

// New constructs a Registry from cfg. If cfg.IndexPath is set, it opens
// (or creates) the sqlite archive side-index so PruneArchivedSessions
// can serve its cutoff query without a full JSONL scan; a failure to
// open the index is logged and otherwise non-fatal, since the JSONL
// file remains the authoritative source either way.
func New(cfg config.SessionConfig, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	max := cfg.MaxMessages
	if max <= 0 {
		max = 100
	}
	r := &Registry{
		entries:     make(map[string]*entry),
		labels:      make(map[string]string),
		maxMessages: max,
		archivePath: cfg.ArchivePath,
		indexPath:   cfg.IndexPath,
		logger:      log.WithFields(zap.String("component", "session")),
	}
	if cfg.IndexPath != "" {
		idx, err := OpenArchiveIndex(cfg.IndexPath)
		if err != nil {
			r.logger.Warn("failed to open archive index, prune will scan the full archive", zap.Error(err))
		} else {
			r.index = idx
			if err := r.RebuildArchiveIndex(idx); err != nil {
				r.logger.Warn("failed to seed archive index from existing archive", zap.Error(err))
			}
		}
	}
	return r
}

// Close releases resources the registry opened, currently just the
// archive side-index.
func (r *Registry) Close() error {
	if r.index == nil {
		return nil
	}
	return r.index.Close()
}

func nowMs() int64 { return time.Now().UnixMilli() }

// GetOrCreateMain returns the existing Main session for agentID, or
// creates a fresh Active one. Idempotent.
func (r *Registry) GetOrCreateMain(agentID string) *Session {
	key := mainKey(agentID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		s := e.toSession()
		return &s
	}

	e := &entry{
		key:       key,
		agentID:   agentID,
		kind:      KindMain,
		status:    StatusActive,
		createdMs: nowMs(),
		msgs:      newMessageRing(r.maxMessages),
	}
	r.entries[key] = e
	s := e.toSession()
	return &s
}

// SpawnSubagent always creates a fresh Active subagent session.
func (r *Registry) SpawnSubagent(agentID, task string, label, parentKey *string) (*Session, error) {
	key, err := subagentKey(agentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session", "generate subagent key", err)
	}
	taskCopy := task

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		key:       key,
		agentID:   agentID,
		kind:      KindSubagent,
		status:    StatusActive,
		task:      &taskCopy,
		label:     label,
		parentKey: parentKey,
		createdMs: nowMs(),
		msgs:      newMessageRing(r.maxMessages),
	}
	r.entries[key] = e
	if label != nil {
		r.labels[*label] = key // latest write wins
	}

	s := e.toSession()
	return &s, nil
}

// Get returns the in-memory session only; callers should fall back to
// the archive when absent.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	s := e.toSession()
	return &s, true
}

// GetByLabel resolves through the label index then the session table.
func (r *Registry) GetByLabel(label string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.labels[label]
	if !ok {
		return nil, false
	}
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	s := e.toSession()
	return &s, true
}

// AddMessage appends to key's history, evicting the oldest message
// once the bound is reached. Rejects non-Active sessions.
func (r *Registry) AddMessage(key, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return apperr.New(apperr.KindNotFound, "session", "unknown session: "+key)
	}
	if e.status != StatusActive {
		return apperr.New(apperr.KindConflict, "session", "session is not active: "+key)
	}
	e.msgs.push(Message{Role: role, Content: content, CreatedMs: nowMs()})
	return nil
}

// History returns the last limit messages in chronological order,
// optionally filtering out tool-role entries.
func (r *Registry) History(key string, limit int, includeTools bool) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session", "unknown session: "+key)
	}

	all := e.msgs.ordered()
	var filtered []Message
	if includeTools {
		filtered = all
	} else {
		filtered = make([]Message, 0, len(all))
		for _, m := range all {
			if m.Role != "tool" {
				filtered = append(filtered, m)
			}
		}
	}

	if limit <= 0 || limit >= len(filtered) {
		return filtered, nil
	}
	return filtered[len(filtered)-limit:], nil
}

// Complete transitions key to Completed and sets finished_ms.
func (r *Registry) Complete(key string) error {
	return r.transition(key, StatusCompleted)
}

// MarkError transitions key to Error and sets finished_ms.
func (r *Registry) MarkError(key string) error {
	return r.transition(key, StatusError)
}

func (r *Registry) transition(key string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return apperr.New(apperr.KindNotFound, "session", "unknown session: "+key)
	}
	e.status = status
	if e.finishedMs == nil {
		ts := nowMs()
		e.finishedMs = &ts
	}
	return nil
}

package procmgr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
)

// Manager owns the process table: guarded by a blocking mutex since
// every operation is a short map access plus already-buffered I/O.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*execSession
	cfg      config.ProcessConfig
	logger   *logger.Logger
}

// New constructs a Manager.
func New(cfg config.ProcessConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		sessions: make(map[string]*execSession),
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "procmgr")),
	}
}

// Spawn starts a shell command and returns its id immediately; the
// process runs and streams output in the background.
func (m *Manager) Spawn(ctx context.Context, command, workingDir string, timeout time.Duration) (string, error) {
	id, err := newID()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "procmgr", "generate id", err)
	}

	s, err := startSession(ctx, id, command, workingDir, timeout, m.logger)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("spawned process", zap.String("exec_id", id), zap.String("command", command))
	return id, nil
}

// PollAll enforces hard timeouts for every Running session. Output
// collection and exit detection happen continuously on background
// goroutines, so this call never blocks.
func (m *Manager) PollAll() {
	m.mu.Lock()
	sessions := make([]*execSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.checkTimeout()
	}
}

func (m *Manager) get(id string) (*execSession, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "procmgr", "unknown exec session: "+id)
	}
	return s, nil
}

// Get returns a read-only snapshot of one session.
func (m *Manager) Get(id string) (Info, error) {
	s, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// List returns a snapshot of every tracked session.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	return out
}

// CombinedOutput returns the full interleaved stdout/stderr log.
func (m *Manager) CombinedOutput(id string) (string, error) {
	s, err := m.get(id)
	if err != nil {
		return "", err
	}
	return s.combinedOutput(), nil
}

// PollOutput returns bytes appended since the last call.
func (m *Manager) PollOutput(id string) (string, error) {
	s, err := m.get(id)
	if err != nil {
		return "", err
	}
	return s.pollOutput(), nil
}

// LogOutput slices the combined log by line, honoring an optional
// offset and limit.
func (m *Manager) LogOutput(id string, offset, limit *int) ([]string, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.logOutput(offset, limit), nil
}

// WriteStdin writes raw bytes to the session's stdin.
func (m *Manager) WriteStdin(id string, data []byte) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.writeStdin(data)
}

// SendKeys tokenizes keys and translates each token through the
// key-translation table before writing to stdin.
func (m *Manager) SendKeys(id, keys string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.writeStdin(translateKeys(keys))
}

// Kill signals the child and transitions it to Killed. Safe to call
// more than once.
func (m *Manager) Kill(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.kill()
	return nil
}

// StopAll kills every currently-tracked session, used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*execSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
}

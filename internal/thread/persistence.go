package thread

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// SaveToFile serializes the whole thread set plus foreground id to a
// single JSON document at m.statePath, written atomically via
// temp-file-plus-rename, matching the vault container and session
// archive's write pattern.
func (m *Manager) SaveToFile() error {
	m.mu.RLock()
	doc := documentV1{ForegroundID: m.foregroundID}
	for _, t := range m.threads {
		doc.Threads = append(doc.Threads, *t)
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "thread", "marshal thread state", err)
	}

	dir := filepath.Dir(m.statePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return apperr.Wrap(apperr.KindInternal, "thread", "create thread state dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".threads-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "thread", "create temp thread state", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "thread", "write thread state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "thread", "close thread state", err)
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "thread", "replace thread state", err)
	}
	return nil
}

// LoadFromFile rehydrates the thread set from m.statePath without
// re-emitting creation events. A missing file leaves the manager empty.
func (m *Manager) LoadFromFile() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, "thread", "read thread state", err)
	}

	var doc documentV1
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.Wrap(apperr.KindCorruptEnvelope, "thread", "parse thread state", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.threads = make(map[string]*Thread, len(doc.Threads))
	for i := range doc.Threads {
		t := doc.Threads[i]
		m.threads[t.ID] = &t
	}
	m.foregroundID = doc.ForegroundID
	return nil
}

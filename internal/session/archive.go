package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// ArchiveSession removes key from memory, finalizing its status if
// still Active, and appends the terminal record to the archive file,
// dropping any earlier record for the same key. The archive file
// itself is not locked in-process across manager instances; callers
// must serialize archive operations for a given workspace, per the
// spec's stated shared-resource policy. Within this process,
// archiveMu enforces that.
func (r *Registry) ArchiveSession(key string) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "session", "unknown session: "+key)
	}
	if e.status == StatusActive {
		e.status = StatusStopped
	}
	if e.finishedMs == nil {
		ts := nowMs()
		e.finishedMs = &ts
	}
	final := e.toSession()

	delete(r.entries, key)
	if e.label != nil {
		if bound, ok := r.labels[*e.label]; ok && bound == key {
			delete(r.labels, *e.label)
		}
	}
	r.mu.Unlock()

	return r.appendArchiveRecord(final)
}

func (r *Registry) appendArchiveRecord(final Session) error {
	r.archiveMu.Lock()
	defer r.archiveMu.Unlock()

	records, err := r.readArchiveLocked()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.Key != final.Key {
			kept = append(kept, rec)
		}
	}
	kept = append(kept, final)

	if err := r.writeArchiveLocked(kept); err != nil {
		return err
	}
	r.refreshIndexLocked(kept)
	return nil
}

// refreshIndexLocked rebuilds the sqlite side-index from records, the
// archive content just written. Failures only degrade prune/list back
// to a full-scan fallback, so they are logged, not returned.
func (r *Registry) refreshIndexLocked(records []Session) {
	if r.index == nil {
		return
	}
	if err := r.index.Rebuild(records); err != nil {
		r.logger.Warn("failed to refresh archive index", zap.Error(err))
	}
}

func (r *Registry) readArchiveLocked() ([]Session, error) {
	f, err := os.Open(r.archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "session", "open archive", err)
	}
	defer f.Close()

	var records []Session
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s Session
		if err := json.Unmarshal(line, &s); err != nil {
			continue
		}
		records = append(records, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session", "scan archive", err)
	}
	return records, nil
}

func (r *Registry) writeArchiveLocked(records []Session) error {
	dir := filepath.Dir(r.archivePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "create archive dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".archive-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "create temp archive", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return apperr.Wrap(apperr.KindInternal, "session", "marshal archive record", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "session", "flush archive", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "session", "close archive", err)
	}
	if err := os.Rename(tmpPath, r.archivePath); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "session", "replace archive", err)
	}
	return nil
}

// PruneArchivedSessions drops records whose FinishedMs (or CreatedMs
// fallback) is older than now - days*86400s. When the sqlite
// side-index is available, the cutoff is resolved with a single
// KeysOlderThan range query instead of recomputing each record's
// effective timestamp in Go; without an index it falls back to
// scanning the loaded records directly. Either way the JSONL file
// itself still has to be read and rewritten in full, since it is the
// authoritative store and has no random-access delete.
func (r *Registry) PruneArchivedSessions(days int) error {
	r.archiveMu.Lock()
	defer r.archiveMu.Unlock()

	records, err := r.readArchiveLocked()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()

	var kept []Session
	if r.index != nil {
		stale, err := r.index.KeysOlderThan(cutoff)
		if err != nil {
			r.logger.Warn("archive index query failed, falling back to full scan", zap.Error(err))
			kept = filterByCutoff(records, cutoff)
		} else {
			staleSet := make(map[string]struct{}, len(stale))
			for _, k := range stale {
				staleSet[k] = struct{}{}
			}
			kept = records[:0]
			for _, rec := range records {
				if _, isStale := staleSet[rec.Key]; !isStale {
					kept = append(kept, rec)
				}
			}
		}
	} else {
		kept = filterByCutoff(records, cutoff)
	}

	if err := r.writeArchiveLocked(kept); err != nil {
		return err
	}
	r.refreshIndexLocked(kept)
	return nil
}

func filterByCutoff(records []Session, cutoffMs int64) []Session {
	kept := records[:0]
	for _, rec := range records {
		ts := rec.CreatedMs
		if rec.FinishedMs != nil {
			ts = *rec.FinishedMs
		}
		if ts >= cutoffMs {
			kept = append(kept, rec)
		}
	}
	return kept
}

// ListArchivedSessions returns archived records newest-first,
// truncated to limit.
func (r *Registry) ListArchivedSessions(limit int) ([]Session, error) {
	r.archiveMu.Lock()
	records, err := r.readArchiveLocked()
	r.archiveMu.Unlock()
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		ti, tj := records[i].CreatedMs, records[j].CreatedMs
		if records[i].FinishedMs != nil {
			ti = *records[i].FinishedMs
		}
		if records[j].FinishedMs != nil {
			tj = *records[j].FinishedMs
		}
		return ti > tj
	})

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// GetArchivedSession looks up a single archived record by key.
func (r *Registry) GetArchivedSession(key string) (*Session, bool, error) {
	r.archiveMu.Lock()
	records, err := r.readArchiveLocked()
	r.archiveMu.Unlock()
	if err != nil {
		return nil, false, err
	}
	for i := range records {
		if records[i].Key == key {
			return &records[i], true, nil
		}
	}
	return nil, false, nil
}

package session

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// ArchiveIndex is a queryable sqlite side-index over the archive
// JSONL file, letting PruneArchivedSessions resolve its cutoff with a
// range query; ListArchivedSessions reads the JSONL file directly and
// does not consult the index. The JSONL file
// stays authoritative per the external-interfaces section; this
// index is rebuilt from it, not a replacement for it. Grounded on the
// teacher's internal/agent/settings/store/sqlite.go
// New*Repository(db)+initSchema() constructor pattern.
type ArchiveIndex struct {
	db     *sqlx.DB
	ownsDB bool
}

const archiveIndexSchema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
	key TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	created_ms INTEGER NOT NULL,
	finished_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_archived_sessions_finished ON archived_sessions(finished_ms);
`

// OpenArchiveIndex opens (creating if absent) the sqlite index file
// at path.
func OpenArchiveIndex(path string) (*ArchiveIndex, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session", "open archive index", err)
	}
	if _, err := db.Exec(archiveIndexSchema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindInternal, "session", "init archive index schema", err)
	}
	return &ArchiveIndex{db: db, ownsDB: true}, nil
}

// Close releases the underlying sqlite connection.
func (idx *ArchiveIndex) Close() error {
	if idx.db == nil || !idx.ownsDB {
		return nil
	}
	return idx.db.Close()
}

// Rebuild truncates and repopulates the index from the given archive
// records, the authoritative source of truth.
func (idx *ArchiveIndex) Rebuild(records []Session) error {
	tx, err := idx.db.Beginx()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "begin index rebuild", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM archived_sessions"); err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "clear archive index", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO archived_sessions (key, agent_id, kind, status, created_ms, finished_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "prepare archive insert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var finished interface{}
		if rec.FinishedMs != nil {
			finished = *rec.FinishedMs
		}
		if _, err := stmt.Exec(rec.Key, rec.AgentID, string(rec.Kind), string(rec.Status), rec.CreatedMs, finished); err != nil {
			return apperr.Wrap(apperr.KindInternal, "session", "insert archive record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "session", "commit archive rebuild", err)
	}
	return nil
}

// KeysOlderThan returns archive keys whose effective timestamp
// (finished_ms, falling back to created_ms) is below cutoffMs.
func (idx *ArchiveIndex) KeysOlderThan(cutoffMs int64) ([]string, error) {
	var keys []string
	query := `
		SELECT key FROM archived_sessions
		WHERE COALESCE(finished_ms, created_ms) < ?
	`
	if err := idx.db.Select(&keys, query, cutoffMs); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session", "query archive index", err)
	}
	return keys, nil
}

// RebuildArchiveIndex reads the registry's current archive and
// rebuilds idx from it. Intended to run after every archive mutation
// that callers care to keep queryable; omission only affects index
// freshness, not the JSONL source of truth.
func (r *Registry) RebuildArchiveIndex(idx *ArchiveIndex) error {
	records, err := r.ListArchivedSessions(0)
	if err != nil {
		return err
	}
	return idx.Rebuild(records)
}

package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists facts, chips, the audit log, sessions, and the kv
// cache in one SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	fts bool

	entMu   sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.entMu.Lock()
	defer s.entMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// FTSEnabled reports whether full-text search is available. When false,
// searches fall back to substring matching.
func (s *SQLiteStore) FTSEnabled() bool { return s.fts }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		id        TEXT PRIMARY KEY,
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		value     TEXT,
		time      TEXT NOT NULL,
		source_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_facts_time ON facts(time);
	CREATE INDEX IF NOT EXISTS idx_facts_name ON facts(name);

	CREATE TABLE IF NOT EXISTS chips (
		chip_id    TEXT PRIMARY KEY,
		slot       TEXT NOT NULL,
		type       TEXT NOT NULL,
		band       TEXT NOT NULL,
		label      TEXT,
		proposed   TEXT,
		value      TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		risk       TEXT NOT NULL DEFAULT 'low',
		evidence   TEXT,
		actions    TEXT,
		state      TEXT NOT NULL DEFAULT 'open',
		reason     TEXT,
		guard_name TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chips_band ON chips(band);
	CREATE INDEX IF NOT EXISTS idx_chips_state ON chips(state);
	CREATE INDEX IF NOT EXISTS idx_chips_updated ON chips(updated_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id           TEXT PRIMARY KEY,
		ts           TEXT NOT NULL,
		chip_id      TEXT NOT NULL,
		action       TEXT NOT NULL,
		before_state TEXT NOT NULL,
		after_state  TEXT NOT NULL,
		value        TEXT,
		reason       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_chip ON audit_log(chip_id, ts);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		started_at   TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		keystrokes   INTEGER NOT NULL DEFAULT 0,
		timers       TEXT,
		chip_counts  TEXT
	);

	CREATE TABLE IF NOT EXISTS kv_cache (
		k          TEXT PRIMARY KEY,
		v          TEXT,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 index over (kind, name, value), kept in lockstep with facts via
	// triggers: delete removes stale entries, update is remove-then-reinsert.
	ftsSchema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
		kind, name, value,
		content=facts,
		content_rowid=rowid
	);
	CREATE TRIGGER IF NOT EXISTS facts_ai AFTER INSERT ON facts BEGIN
		INSERT INTO facts_fts(rowid, kind, name, value) VALUES (new.rowid, new.kind, new.name, new.value);
	END;
	CREATE TRIGGER IF NOT EXISTS facts_ad AFTER DELETE ON facts BEGIN
		INSERT INTO facts_fts(facts_fts, rowid, kind, name, value) VALUES('delete', old.rowid, old.kind, old.name, old.value);
	END;
	CREATE TRIGGER IF NOT EXISTS facts_au AFTER UPDATE ON facts BEGIN
		INSERT INTO facts_fts(facts_fts, rowid, kind, name, value) VALUES('delete', old.rowid, old.kind, old.name, old.value);
		INSERT INTO facts_fts(rowid, kind, name, value) VALUES (new.rowid, new.kind, new.name, new.value);
	END;
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "fts5") {
			s.fts = false
			return nil
		}
		return err
	}
	s.fts = true
	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

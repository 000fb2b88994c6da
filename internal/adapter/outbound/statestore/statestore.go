// Package statestore is an optional, durable session index backed by
// SQLite. It exists purely so a restarted "serve" process can still answer
// GET /sessions/index for sessions that predate the crash: session state
// itself remains process-local and authoritative (per spec §9), this is a
// read-side convenience that can always be rebuilt from the ledger
// directory if lost.
package statestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the session index.
type Entry struct {
	ID                string     `json:"id"`
	PolicyName        string     `json:"policyName"`
	CreatedAt         time.Time  `json:"createdAt"`
	TerminatedAt      *time.Time `json:"terminatedAt,omitempty"`
	TerminationReason string     `json:"terminationReason,omitempty"`
}

// Store wraps a SQLite-backed session index.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) and opens the SQLite database at path, ensuring
// the session_index table exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("statestore: creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statestore: opening %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("statestore: enabling WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS session_index (
	id                 TEXT PRIMARY KEY,
	policy_name        TEXT NOT NULL,
	metadata_json      TEXT NOT NULL DEFAULT '{}',
	created_at         TEXT NOT NULL,
	terminated_at      TEXT,
	termination_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_session_index_created_at ON session_index(created_at);
`)
	if err != nil {
		return fmt.Errorf("statestore: creating schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// IndexSessionStart records a newly created session. Failures are logged by
// the caller, not propagated: losing an index write never aborts session
// creation, since the index is rebuildable from the ledger directory.
func (s *Store) IndexSessionStart(id, policyName string, createdAt time.Time, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		meta = []byte("{}")
	}
	_, err = s.db.Exec(`
INSERT INTO session_index (id, policy_name, metadata_json, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET policy_name = excluded.policy_name, metadata_json = excluded.metadata_json`,
		id, policyName, string(meta), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("statestore: indexing session start for %s: %w", id, err)
	}
	return nil
}

// IndexSessionTerminate marks id as terminated in the index.
func (s *Store) IndexSessionTerminate(id string, terminatedAt time.Time, reason string) error {
	_, err := s.db.Exec(`
UPDATE session_index SET terminated_at = ?, termination_reason = ? WHERE id = ?`,
		terminatedAt.Format(time.RFC3339Nano), reason, id)
	if err != nil {
		return fmt.Errorf("statestore: indexing session terminate for %s: %w", id, err)
	}
	return nil
}

// List returns every indexed session, most recently created first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
SELECT id, policy_name, created_at, terminated_at, termination_reason
FROM session_index ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("statestore: listing sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		var terminatedAt, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.PolicyName, &createdAt, &terminatedAt, &reason); err != nil {
			return nil, fmt.Errorf("statestore: scanning session row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if terminatedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, terminatedAt.String)
			e.TerminatedAt = &t
		}
		e.TerminationReason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

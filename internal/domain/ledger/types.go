// Package ledger implements the append-only, hash-chained JSONL event log:
// one file per session, every entry linked to the previous by SHA-256.
package ledger

import (
	"encoding/json"
	"strings"
)

// EventType is one of the closed set of ledger event types named in spec §6.
type EventType string

const (
	EventSessionStart       EventType = "session:start"
	EventSessionStateChange EventType = "session:state_change"
	EventSessionTerminate   EventType = "session:terminate"
	EventActionEvaluate     EventType = "action:evaluate"
	EventActionResult       EventType = "action:result"
	EventActionRollback     EventType = "action:rollback"
	EventGateRequested      EventType = "gate:requested"
	EventGateApproved       EventType = "gate:approved"
	EventGateRejected       EventType = "gate:rejected"
	EventBudgetWarning      EventType = "budget:warning"
	EventBudgetExceeded     EventType = "budget:exceeded"
	EventEscalationTrigger  EventType = "escalation:triggered"
	EventPolicyEvolve       EventType = "policy:evolve"
)

// GenesisHash is the prev value of the first entry in any ledger file:
// "sha256:" followed by 64 zeros.
var GenesisHash = "sha256:" + strings.Repeat("0", 64)

// Entry is one line of a ledger file, per spec §3's LedgerEntry.
//
// Canonical JSON decision (spec §9 open question, resolved in SPEC_FULL.md
// §6, item 3): Data is captured as json.RawMessage at append time and never
// re-marshaled, so hashing and verification both operate on the exact
// bytes that were written — insertion order is whatever the caller's
// struct field order produced, and is preserved by construction.
type Entry struct {
	Seq       int64           `json:"seq"`
	Timestamp string          `json:"ts"`
	Hash      string          `json:"hash"`
	Prev      string          `json:"prev"`
	SessionID string          `json:"sessionId"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
}

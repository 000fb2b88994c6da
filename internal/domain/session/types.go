// Package session orchestrates the per-session lifecycle: it wraps the
// stateless policy evaluator with budgets, rate limiting, escalation,
// gate resolution, and append-only ledger recording. A Session is
// logically an actor: every Manager method that touches one acquires
// that Session's own lock first, so evaluation and result recording are
// serialized per session without callers needing to coordinate locking.
package session

import (
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ledger"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// State is a Session's lifecycle stage.
type State string

const (
	StateActive     State = "active"
	StatePaused     State = "paused"
	StateTerminated State = "terminated"
)

// Budget is the running tally the session-aware evaluator checks against
// Policy.Limits and Policy.Session, plus the two counters
// (ActionsEvaluated, ActionsDenied) the session-aware wrapper itself owns.
type Budget struct {
	StartedAt        time.Time
	ActionsEvaluated int64
	ActionsDenied    int64
	FilesChanged     int64
	TotalOutputBytes int64
	Retries          int64
	CostUSD          float64
}

// ToPolicyBudget narrows a session Budget to the fields the stateless
// evaluator's Limits check needs.
func (b Budget) ToPolicyBudget() *policy.Budget {
	return &policy.Budget{
		StartedAt:        b.StartedAt,
		FilesChanged:     b.FilesChanged,
		TotalOutputBytes: b.TotalOutputBytes,
		Retries:          b.Retries,
		CostUSD:          b.CostUSD,
	}
}

// Artifact is one piece of evidence an adapter's execute() produced:
// checksum, diff, log, or exit_code, per the tool adapter contract.
type Artifact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ActionResult is what RecordResult attaches to a SessionAction.
type ActionResult struct {
	Success    bool       `json:"success"`
	Output     string     `json:"output,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	DurationMs int64      `json:"durationMs"`
	Error      string     `json:"error,omitempty"`
}

// SessionAction is one evaluated tool invocation within a session.
type SessionAction struct {
	ID         string               `json:"id"`
	Index      int                  `json:"index"`
	Request    policy.ActionRequest `json:"-"`
	RawArgs    map[string]any       `json:"-"`
	Validation policy.EvalResult    `json:"-"`
	Result     *ActionResult        `json:"result,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Session is a streaming conversation between one agent and the gateway.
// Its policy is a private field: only EvolvePolicy may replace it.
// REDESIGN FLAG: this replaces a publicly mutable field with an
// owned-handle contract, so evolution can never reach into a Session's
// internals except through the one exported method meant for it.
type Session struct {
	ID                string
	policy            *policy.Policy
	State             State
	Budget            Budget
	Actions           []SessionAction
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	TerminatedAt      *time.Time
	TerminationReason string

	// mu serializes every Manager method that touches this session, so
	// evaluation and result recording for one session are strictly ordered
	// per spec §5 regardless of how many goroutines call in concurrently.
	// Cross-session calls never contend on it.
	mu                   sync.Mutex
	ledger               *ledger.Ledger
	triggeredEscalations map[string]bool
}

// Policy returns the session's current policy. Callers must not mutate
// the returned value in place; install a changed one via EvolvePolicy.
func (s *Session) Policy() *policy.Policy {
	return s.policy
}

// EvolvePolicy installs newPolicy as the session's active policy. This is
// the only sanctioned mutator of Session.policy — it exists so the
// Evolution Subsystem never reaches into a Session's internals directly.
func (s *Session) EvolvePolicy(newPolicy *policy.Policy) {
	s.policy = newPolicy
	s.UpdatedAt = time.Now().UTC()
}

// Report summarizes a session: Manager.Terminate returns the final one,
// Manager.Report and Manager.List a snapshot of a live one.
type Report struct {
	SessionID         string    `json:"sessionId"`
	State             State     `json:"state"`
	ActionsEvaluated  int64     `json:"actionsEvaluated"`
	ActionsDenied     int64     `json:"actionsDenied"`
	ActionsAllowed    int64     `json:"actionsAllowed"`
	CreatedAt         time.Time `json:"createdAt"`
	TerminatedAt      time.Time `json:"terminatedAt"`
	TerminationReason string    `json:"terminationReason,omitempty"`
}

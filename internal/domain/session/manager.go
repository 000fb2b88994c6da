package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ledger"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

var (
	// ErrUnknownSession is returned for an id the Manager has no record of.
	ErrUnknownSession = errors.New("session: unknown session")
	// ErrUnknownAction is returned for an actionId not present on a session.
	ErrUnknownAction = errors.New("session: unknown action")
	// ErrResultAlreadySet is returned by RecordResult when called twice for
	// the same action — spec §3: "result is set at most once".
	ErrResultAlreadySet = errors.New("session: result already recorded for action")
)

// OnDenialDecision is what an OnDenialHook returns: whether to retry the
// evaluation against the (possibly just-mutated) policy, or accept deny.
type OnDenialDecision string

const (
	OnDenialRetry OnDenialDecision = "retry"
	OnDenialDeny  OnDenialDecision = "deny"
)

// OnDenialHook lets a caller (typically the Evolution Subsystem's
// delivery path) react to a fresh denial before the Manager finalizes
// its deny count. See Manager.Evaluate step 4.
type OnDenialHook func(ctx context.Context, sess *Session, action SessionAction) OnDenialDecision

// EvaluateOutcome is what Manager.Evaluate returns to its caller.
type EvaluateOutcome struct {
	ActionID        string
	Decision        policy.Verdict
	Reasons         []policy.DenialReason
	Gate            *policy.Gate
	BudgetRemaining Budget
	Warnings        []string
}

// Manager orchestrates the per-session lifecycle: creation, evaluation,
// result recording, gate resolution, and termination.
// Indexer receives best-effort notifications of session lifecycle events so
// a durable, out-of-process store can answer "what sessions exist" across a
// restart. Session state itself remains process-local and authoritative;
// an Indexer is a read-side convenience only, per spec §9 — Manager never
// blocks on it and never treats its errors as fatal.
type Indexer interface {
	IndexSessionStart(id, policyName string, createdAt time.Time, metadata map[string]string) error
	IndexSessionTerminate(id string, terminatedAt time.Time, reason string) error
}

type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	ledgerDir string
	gates     *gatemgr.Manager
	onDenial  OnDenialHook
	indexer   Indexer
}

// NewManager constructs a Manager. ledgerDir is where per-session JSONL
// ledger files are opened (<ledgerDir>/<sessionId>.jsonl). gates is the
// Gate Manager instance this Manager asks for gate decisions.
func NewManager(ledgerDir string, gates *gatemgr.Manager) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		ledgerDir: ledgerDir,
		gates:     gates,
	}
}

// SetOnDenialHook registers the onDenial hook used by Evaluate's step 4.
func (m *Manager) SetOnDenialHook(hook OnDenialHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDenial = hook
}

// SetIndexer registers a durable session indexer. Pass nil to disable it.
func (m *Manager) SetIndexer(idx Indexer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexer = idx
}

// CreateSession allocates an id, opens the session's ledger file, appends
// session:start, and registers the session.
func (m *Manager) CreateSession(pol *policy.Policy, metadata map[string]string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(m.ledgerDir, id+".jsonl")
	l, err := ledger.Open(path, id)
	if err != nil {
		return nil, fmt.Errorf("opening ledger for session %s: %w", id, err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		policy:    pol,
		State:     StateActive,
		Budget:    Budget{StartedAt: now},
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
		ledger:    l,
	}

	if _, err := l.Append(ledger.EventSessionStart, map[string]any{
		"policy":   pol.Name,
		"metadata": metadata,
	}); err != nil {
		l.Close()
		return nil, fmt.Errorf("appending session:start: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	idx := m.indexer
	m.mu.Unlock()

	if idx != nil {
		_ = idx.IndexSessionStart(id, pol.Name, now, metadata) // best-effort: the ledger remains authoritative
	}

	return s, nil
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return s, nil
}

// Evaluate runs the session-aware evaluator for one request and records
// the outcome, per spec §4.2. rawArgs is the tool call's original
// argument bag (as received, before it was narrowed into req.Input); it is
// retained on the recorded SessionAction purely so a later Compensation
// Planner pass has something to hand an adapter's Rollback.
func (m *Manager) Evaluate(ctx context.Context, sessionID string, req policy.ActionRequest, rawArgs map[string]any) (EvaluateOutcome, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return EvaluateOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result, warnings, escalated := evaluateSessionAction(s, req, now)

	s.Budget.ActionsEvaluated++
	if result.Verdict == policy.VerdictDeny {
		s.Budget.ActionsDenied++
	}

	actionID, err := GenerateActionID()
	if err != nil {
		return EvaluateOutcome{}, err
	}
	action := SessionAction{
		ID:         actionID,
		Index:      len(s.Actions),
		Request:    req,
		RawArgs:    rawArgs,
		Validation: result,
		Timestamp:  now,
	}
	s.Actions = append(s.Actions, action)

	if _, err := s.ledger.Append(ledger.EventActionEvaluate, evaluateLedgerData(action)); err != nil {
		return EvaluateOutcome{}, fmt.Errorf("appending action:evaluate: %w", err)
	}
	if err := m.appendSessionSignals(s, result, warnings, escalated); err != nil {
		return EvaluateOutcome{}, err
	}

	result, err = m.resolveGateVerdict(ctx, s, sessionID, actionID, req.Tool, result, now)
	if err != nil {
		return EvaluateOutcome{}, err
	}

	if result.Verdict == policy.VerdictDeny && m.onDenial != nil {
		s.Budget.ActionsDenied--
		decision := m.onDenial(ctx, s, action)
		if decision == OnDenialRetry {
			retryNow := time.Now().UTC()
			retryResult, retryWarnings, retryEscalated := evaluateSessionAction(s, req, retryNow)
			if err := m.appendSessionSignals(s, retryResult, retryWarnings, retryEscalated); err != nil {
				return EvaluateOutcome{}, err
			}
			retryResult, err = m.resolveGateVerdict(ctx, s, sessionID, actionID, req.Tool, retryResult, retryNow)
			if err != nil {
				return EvaluateOutcome{}, err
			}
			s.Actions[len(s.Actions)-1].Validation = retryResult
			if _, err := s.ledger.Append(ledger.EventActionEvaluate, evaluateLedgerData(s.Actions[len(s.Actions)-1])); err != nil {
				return EvaluateOutcome{}, fmt.Errorf("appending retried action:evaluate: %w", err)
			}
			if retryResult.Verdict == policy.VerdictDeny {
				s.Budget.ActionsDenied++
			}
			result = retryResult
			warnings = retryWarnings
		} else {
			s.Budget.ActionsDenied++
		}
	}

	if s.policy.Session != nil && s.policy.Session.MaxDenials > 0 && s.Budget.ActionsDenied >= int64(s.policy.Session.MaxDenials) {
		_, _ = m.terminateLocked(s, "max_denials reached")
	}

	return EvaluateOutcome{
		ActionID:        actionID,
		Decision:        result.Verdict,
		Reasons:         result.Reasons,
		Gate:            result.Gate,
		BudgetRemaining: s.Budget,
		Warnings:        warnings,
	}, nil
}

// resolveGateVerdict asks the Gate Manager for a decision when result is
// a gate, folding its outcome (approved/rejected/pending) back into the
// verdict. Used both for the first-pass evaluation and, per the
// onDenial-retry open question, for a retry that itself produces a gate.
func (m *Manager) resolveGateVerdict(ctx context.Context, s *Session, sessionID, actionID, tool string, result policy.EvalResult, now time.Time) (policy.EvalResult, error) {
	if result.Verdict != policy.VerdictGate {
		return result, nil
	}
	if _, err := s.ledger.Append(ledger.EventSessionStateChange, map[string]any{"from": string(s.State), "to": string(StatePaused)}); err != nil {
		return result, fmt.Errorf("appending session:state_change: %w", err)
	}
	s.State = StatePaused
	if _, err := s.ledger.Append(ledger.EventGateRequested, map[string]any{
		"actionId": actionID,
		"tool":     tool,
		"approval": result.Gate.Approval,
		"risk":     result.Gate.RiskLevel,
	}); err != nil {
		return result, fmt.Errorf("appending gate:requested: %w", err)
	}

	gResp := m.gates.RequestApproval(ctx, gatemgr.Request{
		SessionID: sessionID,
		ActionID:  actionID,
		Tool:      tool,
		Gate:      *result.Gate,
		CreatedAt: now,
	})
	switch gResp.Decision {
	case gatemgr.DecisionApproved:
		result.Verdict = policy.VerdictAllow
		if err := m.maybeResume(s); err != nil {
			return result, err
		}
	case gatemgr.DecisionRejected:
		result.Verdict = policy.VerdictDeny
		s.Budget.ActionsDenied++
		if err := m.maybeResume(s); err != nil {
			return result, err
		}
	case gatemgr.DecisionPending:
		// stays paused; caller sees "gate"
	}
	return result, nil
}

// appendSessionSignals records the non-blocking audit signals a single
// evaluation pass can produce alongside its action:evaluate entry:
// budget:warning when the evaluator attached warnings, budget:exceeded
// when a ReasonBudget denial fired, and escalation:triggered when the
// returned gate came from an escalation rule rather than the policy.
func (m *Manager) appendSessionSignals(s *Session, result policy.EvalResult, warnings []string, escalated bool) error {
	if len(warnings) > 0 {
		if _, err := s.ledger.Append(ledger.EventBudgetWarning, map[string]any{"warnings": warnings}); err != nil {
			return fmt.Errorf("appending budget:warning: %w", err)
		}
	}
	if escalated && result.Gate != nil {
		if _, err := s.ledger.Append(ledger.EventEscalationTrigger, map[string]any{"condition": string(result.Gate.Condition)}); err != nil {
			return fmt.Errorf("appending escalation:triggered: %w", err)
		}
	}
	if result.Verdict == policy.VerdictDeny {
		for _, r := range result.Reasons {
			if r.Kind == policy.ReasonBudget {
				if _, err := s.ledger.Append(ledger.EventBudgetExceeded, map[string]any{"value": r.Value}); err != nil {
					return fmt.Errorf("appending budget:exceeded: %w", err)
				}
				break
			}
		}
	}
	return nil
}

func evaluateLedgerData(a SessionAction) map[string]any {
	reasons := make([]string, len(a.Validation.Reasons))
	for i, r := range a.Validation.Reasons {
		reasons[i] = r.String()
	}
	return map[string]any{
		"actionId": a.ID,
		"index":    a.Index,
		"tool":     a.Request.Tool,
		"verdict":  a.Validation.Verdict,
		"reasons":  reasons,
	}
}

// maybeResume transitions paused->active once no pending gates remain,
// recording the transition as a session:state_change entry.
func (m *Manager) maybeResume(s *Session) error {
	if s.State == StatePaused && !m.gates.Pending(s.ID) {
		if _, err := s.ledger.Append(ledger.EventSessionStateChange, map[string]any{"from": string(StatePaused), "to": string(StateActive)}); err != nil {
			return fmt.Errorf("appending session:state_change: %w", err)
		}
		s.State = StateActive
	}
	return nil
}

// RecordResult attaches a tool execution's outcome to its SessionAction
// and updates the running budget.
func (m *Manager) RecordResult(sessionID, actionID string, result ActionResult) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, a := range s.Actions {
		if a.ID == actionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	if s.Actions[idx].Result != nil {
		return fmt.Errorf("%w: %s", ErrResultAlreadySet, actionID)
	}

	s.Actions[idx].Result = &result
	for _, artifact := range result.Artifacts {
		if artifact.Type == "diff" || artifact.Type == "checksum" {
			s.Budget.FilesChanged++
		}
	}
	outputBytes, _ := json.Marshal(result.Output)
	s.Budget.TotalOutputBytes += int64(len(outputBytes))

	if _, err := s.ledger.Append(ledger.EventActionResult, map[string]any{
		"actionId":   actionID,
		"success":    result.Success,
		"durationMs": result.DurationMs,
		"error":      result.Error,
	}); err != nil {
		return fmt.Errorf("appending action:result: %w", err)
	}
	return nil
}

// ResolveGate delegates to the Gate Manager and records the outcome.
func (m *Manager) ResolveGate(sessionID, actionID string, decision gatemgr.Decision, respondedBy, reason string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := m.gates.Resolve(sessionID, actionID, decision, respondedBy, reason)
	if err != nil {
		return err
	}

	eventType := ledger.EventGateApproved
	if decision == gatemgr.DecisionRejected {
		eventType = ledger.EventGateRejected
	}
	if _, err := s.ledger.Append(eventType, map[string]any{
		"actionId":    actionID,
		"respondedBy": resp.RespondedBy,
		"reason":      resp.Reason,
	}); err != nil {
		return fmt.Errorf("appending gate resolution: %w", err)
	}

	return m.maybeResume(s)
}

// Terminate snapshots tallies, closes the session's ledger, removes it
// from the live set, and returns its SessionReport.
func (m *Manager) Terminate(sessionID, reason string) (Report, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return Report{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.terminateLocked(s, reason)
}

// terminateLocked is Terminate's body, factored out so Evaluate can
// auto-terminate on a max_denials breach without re-entering s.mu (it is
// only ever called with s.mu already held by the caller).
func (m *Manager) terminateLocked(s *Session, reason string) (Report, error) {
	now := time.Now().UTC()
	s.State = StateTerminated
	s.TerminatedAt = &now
	s.TerminationReason = reason

	m.gates.ClearSession(s.ID)

	report := buildReport(s)

	if _, err := s.ledger.Append(ledger.EventSessionTerminate, map[string]any{
		"reason":           reason,
		"actionsEvaluated": report.ActionsEvaluated,
		"actionsDenied":    report.ActionsDenied,
		"actionsAllowed":   report.ActionsAllowed,
	}); err != nil {
		s.ledger.Close()
		return Report{}, fmt.Errorf("appending session:terminate: %w", err)
	}

	if err := s.ledger.Close(); err != nil {
		return Report{}, fmt.Errorf("closing ledger: %w", err)
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	idx := m.indexer
	m.mu.Unlock()

	if idx != nil {
		_ = idx.IndexSessionTerminate(s.ID, now, reason) // best-effort: the ledger remains authoritative
	}

	return report, nil
}

// Policy returns sessionID's current policy, for callers (the Evolution
// Subsystem's delivery path) that need it read-only before deciding how to
// apply a suggestion.
func (m *Manager) Policy(sessionID string) (*policy.Policy, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy, nil
}

// EvolvePolicy installs newPolicy as sessionID's active policy and records
// a policy:evolve ledger entry, per spec §4.5's "policy change applied
// in-memory for the remainder of the session" behavior.
func (m *Manager) EvolvePolicy(sessionID string, newPolicy *policy.Policy, suggestionID string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EvolvePolicy(newPolicy)
	if _, err := s.ledger.Append(ledger.EventPolicyEvolve, map[string]any{
		"suggestionId": suggestionID,
	}); err != nil {
		return fmt.Errorf("appending policy:evolve: %w", err)
	}
	return nil
}

// Report returns sessionID's current report without terminating it, for
// the HTTP façade's GET /sessions/:id and GET /sessions/:id/report.
func (m *Manager) Report(sessionID string) (Report, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return Report{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildReport(s), nil
}

// List returns a report for every session currently active (terminated
// sessions are pruned from the live set by terminateLocked).
func (m *Manager) List() []Report {
	m.mu.Lock()
	ids := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ids = append(ids, s)
	}
	m.mu.Unlock()

	reports := make([]Report, 0, len(ids))
	for _, s := range ids {
		s.mu.Lock()
		reports = append(reports, buildReport(s))
		s.mu.Unlock()
	}
	return reports
}

// LedgerPath returns the filesystem path of sessionID's ledger file,
// regardless of whether the session is still active — a terminated
// session's ledger file stays on disk for report/verify tooling.
func (m *Manager) LedgerPath(sessionID string) string {
	return filepath.Join(m.ledgerDir, sessionID+".jsonl")
}

func buildReport(s *Session) Report {
	var allowed int64
	for _, a := range s.Actions {
		if a.Validation.Verdict == policy.VerdictAllow {
			allowed++
		}
	}
	var terminatedAt time.Time
	if s.TerminatedAt != nil {
		terminatedAt = *s.TerminatedAt
	}
	return Report{
		SessionID:         s.ID,
		State:             s.State,
		ActionsEvaluated:  s.Budget.ActionsEvaluated,
		ActionsDenied:     s.Budget.ActionsDenied,
		ActionsAllowed:    allowed,
		CreatedAt:         s.CreatedAt,
		TerminatedAt:      terminatedAt,
		TerminationReason: s.TerminationReason,
	}
}

package policy

import "time"

// ActionRequest is one tool invocation submitted for evaluation.
type ActionRequest struct {
	Tool  string
	Input ActionInput
}

// Budget carries the running counters the evaluator checks against
// Policy.Limits. The session-aware caller (internal/domain/session) owns
// the authoritative Budget and passes a snapshot in; nil skips step 4
// entirely (the stateless evaluator is usable with no budget at all).
type Budget struct {
	StartedAt        time.Time
	FilesChanged     int64
	TotalOutputBytes int64
	Retries          int64
	CostUSD          float64
}

// EvalResult is the evaluator's output: {verdict, tool, reasons, gate?}.
type EvalResult struct {
	Verdict Verdict
	Tool    string
	Reasons []DenialReason
	Gate    *Gate
}

// Denied is a convenience check used by callers that only care whether the
// request was allowed.
func (r EvalResult) Denied() bool {
	return r.Verdict == VerdictDeny
}

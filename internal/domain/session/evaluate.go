package session

import (
	"fmt"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// rateLimitWindow is the rolling window the rate_limit check counts over.
const rateLimitWindow = 60 * time.Second

// warnWithinActions is how close to max_actions a "warning" is attached,
// per spec §4.1: "within 5 of the limit → warning attached".
const warnWithinActions = 5

// evaluateSessionAction prepends the session-aware checks (state,
// max_actions, max_denials, rate limit, escalation) to the stateless
// evaluator, in the fixed order spec §4.1 lists. The bool result reports
// whether the returned gate (if any) came from an escalation rule firing,
// so the caller can distinguish it from an ordinary policy gate and record
// escalation:triggered accordingly.
func evaluateSessionAction(s *Session, req policy.ActionRequest, now time.Time) (policy.EvalResult, []string, bool) {
	pol := s.policy
	var warnings []string

	if s.State != StateActive {
		return policy.EvalResult{
			Verdict: policy.VerdictDeny,
			Tool:    req.Tool,
			Reasons: []policy.DenialReason{{Kind: policy.ReasonSessionState, Value: string(s.State)}},
		}, warnings, false
	}

	if pol.Session != nil && pol.Session.MaxActions > 0 {
		if s.Budget.ActionsEvaluated >= int64(pol.Session.MaxActions) {
			return policy.EvalResult{
				Verdict: policy.VerdictDeny,
				Tool:    req.Tool,
				Reasons: []policy.DenialReason{{Kind: policy.ReasonSessionState, Value: "max_actions reached"}},
			}, warnings, false
		}
		if remaining := int64(pol.Session.MaxActions) - s.Budget.ActionsEvaluated; remaining <= warnWithinActions {
			warnings = append(warnings, fmt.Sprintf("approaching max_actions: %d of %d remaining", remaining, pol.Session.MaxActions))
		}
	}

	if pol.Session != nil && pol.Session.MaxDenials > 0 && s.Budget.ActionsDenied >= int64(pol.Session.MaxDenials) {
		return policy.EvalResult{
			Verdict: policy.VerdictDeny,
			Tool:    req.Tool,
			Reasons: []policy.DenialReason{{Kind: policy.ReasonDenialLimit}},
		}, warnings, false
	}

	if pol.Session != nil && pol.Session.RateLimit.MaxPerMinute > 0 {
		count := countRecentActions(s, now)
		if count >= pol.Session.RateLimit.MaxPerMinute {
			return policy.EvalResult{
				Verdict: policy.VerdictDeny,
				Tool:    req.Tool,
				Reasons: []policy.DenialReason{{Kind: policy.ReasonRateLimit, Value: fmt.Sprintf("%d actions in the last minute", count)}},
			}, warnings, false
		}
	}

	if pol.Session != nil {
		if gate := checkEscalation(s, pol.Session.Escalation, now); gate != nil {
			return policy.EvalResult{Verdict: policy.VerdictGate, Tool: req.Tool, Gate: gate}, warnings, true
		}
	}

	result := policy.Evaluate(req, pol, s.Budget.ToPolicyBudget())
	return result, warnings, false
}

func countRecentActions(s *Session, now time.Time) int {
	cutoff := now.Add(-rateLimitWindow)
	count := 0
	for _, a := range s.Actions {
		if a.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// checkEscalation forces a synthetic human gate the first time a rule's
// threshold is crossed. triggeredEscalations guards against re-firing the
// same rule on every subsequent action once it has already produced one
// resolved (or pending) gate — the spec's "no prior action ... is a
// resolved human gate" condition, tracked directly rather than re-scanned
// from history each time.
func checkEscalation(s *Session, rules []policy.EscalationRule, now time.Time) *policy.Gate {
	if s.triggeredEscalations == nil {
		s.triggeredEscalations = make(map[string]bool)
	}
	for _, rule := range rules {
		if rule.AfterActions > 0 && s.Budget.ActionsEvaluated >= int64(rule.AfterActions) {
			cond := fmt.Sprintf("after_actions:%d", rule.AfterActions)
			if !s.triggeredEscalations[cond] {
				s.triggeredEscalations[cond] = true
				return &policy.Gate{Approval: policy.ApprovalHuman, RiskLevel: policy.RiskMedium, Condition: policy.Condition(cond)}
			}
		}
		if rule.AfterMinutes > 0 && now.Sub(s.CreatedAt) >= time.Duration(rule.AfterMinutes)*time.Minute {
			cond := fmt.Sprintf("after_minutes:%d", rule.AfterMinutes)
			if !s.triggeredEscalations[cond] {
				s.triggeredEscalations[cond] = true
				return &policy.Gate{Approval: policy.ApprovalHuman, RiskLevel: policy.RiskMedium, Condition: policy.Condition(cond)}
			}
		}
	}
	return nil
}

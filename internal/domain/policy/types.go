// Package policy contains the domain types and evaluator for the
// governance gateway's capability-based access policy.
package policy

// Verdict is the outcome of evaluating one action against a Policy.
type Verdict string

const (
	// VerdictAllow permits the action to proceed.
	VerdictAllow Verdict = "allow"
	// VerdictDeny blocks the action.
	VerdictDeny Verdict = "deny"
	// VerdictGate requires an approval decision before the action proceeds.
	VerdictGate Verdict = "gate"
)

// Approval names who (or what) must resolve a Gate.
type Approval string

const (
	ApprovalAuto    Approval = "auto"
	ApprovalHuman   Approval = "human"
	ApprovalWebhook Approval = "webhook"
)

// RiskLevel orders gate severity for the built-in threshold handler.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskOrder gives RiskLevel a total order: low < medium < high < critical.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtOrBelow reports whether r is no more severe than threshold.
func (r RiskLevel) AtOrBelow(threshold RiskLevel) bool {
	rv, ok := riskOrder[r]
	if !ok {
		return false
	}
	tv, ok := riskOrder[threshold]
	if !ok {
		return false
	}
	return rv <= tv
}

// Scope is an allow-list attached to one Capability. A nil or empty field
// means that dimension is unconstrained.
type Scope struct {
	Paths    []string `yaml:"paths,omitempty" validate:"omitempty,dive,required"`
	Binaries []string `yaml:"binaries,omitempty" validate:"omitempty,dive,required"`
	Domains  []string `yaml:"domains,omitempty" validate:"omitempty,dive,required"`
	Methods  []string `yaml:"methods,omitempty" validate:"omitempty,dive,required"`
	Repos    []string `yaml:"repos,omitempty" validate:"omitempty,dive,required"`
}

// Capability grants a tool permission to run, subject to Scope.
type Capability struct {
	Tool  string `yaml:"tool" validate:"required"`
	Scope Scope  `yaml:"scope,omitempty"`
}

// Limits are numeric ceilings enforced against a session's running Budget.
type Limits struct {
	MaxRuntimeMS    int64   `yaml:"max_runtime_ms,omitempty" validate:"omitempty,min=1"`
	MaxOutputBytes  int64   `yaml:"max_output_bytes,omitempty" validate:"omitempty,min=1"`
	MaxFilesChanged int64   `yaml:"max_files_changed,omitempty" validate:"omitempty,min=1"`
	MaxRetries      int64   `yaml:"max_retries,omitempty" validate:"omitempty,min=1"`
	MaxCostUSD      float64 `yaml:"max_cost_usd,omitempty" validate:"omitempty,min=0"`
}

// Condition names a precondition attached to a Gate.
type Condition string

const (
	// ConditionOutsideScope fires a gate only when the request would
	// otherwise have failed the scope checks of its matched capability.
	ConditionOutsideScope Condition = "outside_scope"
)

// Gate is an approval checkpoint that can intercept an otherwise-allowed
// action before it proceeds.
type Gate struct {
	Action    string    `yaml:"action" validate:"required"`
	Approval  Approval  `yaml:"approval" validate:"required,oneof=auto human webhook"`
	RiskLevel RiskLevel `yaml:"risk_level,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Condition Condition `yaml:"condition,omitempty" validate:"omitempty,oneof=outside_scope"`
}

// EscalationRule forces a human check-in after a threshold is crossed.
type EscalationRule struct {
	AfterActions int    `yaml:"after_actions,omitempty" validate:"omitempty,min=1"`
	AfterMinutes int    `yaml:"after_minutes,omitempty" validate:"omitempty,min=1"`
	Require      string `yaml:"require" validate:"required,eq=human_checkin"`
}

// RateLimit bounds the number of actions evaluated per rolling minute.
type RateLimit struct {
	MaxPerMinute int `yaml:"max_per_minute,omitempty" validate:"omitempty,min=1"`
}

// SessionPolicy carries the session-aware extensions layered on top of the
// stateless evaluator: action/denial ceilings, a rate limit, and escalation
// rules.
type SessionPolicy struct {
	MaxActions int              `yaml:"max_actions,omitempty" validate:"omitempty,min=1"`
	MaxDenials int              `yaml:"max_denials,omitempty" validate:"omitempty,min=1"`
	RateLimit  RateLimit        `yaml:"rate_limit,omitempty"`
	Escalation []EscalationRule `yaml:"escalation,omitempty" validate:"omitempty,dive"`
}

// Evidence declares what the ledger is expected to record for this policy.
// It is descriptive metadata; the ledger itself always records every event
// type regardless of this field's contents.
type Evidence struct {
	Require []string `yaml:"require,omitempty"`
	Format  string   `yaml:"format,omitempty" validate:"omitempty,eq=jsonl"`
}

// RemediationRule is an optional CEL-gated suggestion evaluated after a
// deny, independent of the Evolution Subsystem's pattern-matched
// suggestions. The MCP Proxy matches them through internal/adapter/outbound/cel.
type RemediationRule struct {
	Name   string `yaml:"name"`
	When   string `yaml:"when"`   // CEL expression over the denial
	Action string `yaml:"action"` // free-form remediation hint
}

// Remediation is an open extension point named but not fully specified by
// the external interface contract; absence is valid and produces no
// remediation actions.
type Remediation struct {
	Rules         []RemediationRule `yaml:"rules,omitempty"`
	FallbackChain []string          `yaml:"fallback_chain,omitempty"`
}

// Policy is the immutable-by-convention authorization document. The only
// sanctioned mutator is the Evolution Subsystem, operating through
// session.Session.EvolvePolicy.
type Policy struct {
	Version      string         `yaml:"version" validate:"required"`
	Name         string         `yaml:"name" validate:"required"`
	Description  string         `yaml:"description,omitempty"`
	Capabilities []Capability   `yaml:"capabilities" validate:"required,min=1,dive"`
	Limits       *Limits        `yaml:"limits,omitempty"`
	Gates        []Gate         `yaml:"gates,omitempty" validate:"omitempty,dive"`
	Forbidden    []string       `yaml:"forbidden,omitempty" validate:"omitempty,dive,required"`
	Session      *SessionPolicy `yaml:"session,omitempty"`
	Evidence     *Evidence      `yaml:"evidence,omitempty"`
	Remediation  *Remediation   `yaml:"remediation,omitempty"`
}

// Clone deep-copies the Policy so the Evolution Subsystem can mutate a
// working copy without risking a partially-applied edit on failure.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Capabilities = make([]Capability, len(p.Capabilities))
	for i, c := range p.Capabilities {
		cp.Capabilities[i] = c
		cp.Capabilities[i].Scope = cloneScope(c.Scope)
	}
	if p.Limits != nil {
		l := *p.Limits
		cp.Limits = &l
	}
	cp.Gates = append([]Gate(nil), p.Gates...)
	cp.Forbidden = append([]string(nil), p.Forbidden...)
	if p.Session != nil {
		s := *p.Session
		s.Escalation = append([]EscalationRule(nil), p.Session.Escalation...)
		cp.Session = &s
	}
	if p.Evidence != nil {
		e := *p.Evidence
		e.Require = append([]string(nil), p.Evidence.Require...)
		cp.Evidence = &e
	}
	if p.Remediation != nil {
		r := *p.Remediation
		r.Rules = append([]RemediationRule(nil), p.Remediation.Rules...)
		r.FallbackChain = append([]string(nil), p.Remediation.FallbackChain...)
		cp.Remediation = &r
	}
	return &cp
}

func cloneScope(s Scope) Scope {
	return Scope{
		Paths:    append([]string(nil), s.Paths...),
		Binaries: append([]string(nil), s.Binaries...),
		Domains:  append([]string(nil), s.Domains...),
		Methods:  append([]string(nil), s.Methods...),
		Repos:    append([]string(nil), s.Repos...),
	}
}

// FindCapability returns the first capability matching tool, mirroring the
// first-match evaluation order required by the evaluator.
func (p *Policy) FindCapability(tool string) *Capability {
	for i := range p.Capabilities {
		if p.Capabilities[i].Tool == tool {
			return &p.Capabilities[i]
		}
	}
	return nil
}

// FindGate returns the first gate whose Action matches tool.
func (p *Policy) FindGate(tool string) *Gate {
	for i := range p.Gates {
		if p.Gates[i].Action == tool {
			return &p.Gates[i]
		}
	}
	return nil
}

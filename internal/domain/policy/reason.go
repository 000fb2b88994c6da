package policy

import "fmt"

// ReasonKind classifies a denial. REDESIGN FLAG: the original design
// coupled the Evolution Subsystem to the evaluator purely through free-form
// reason strings. Here the evaluator produces a tagged DenialReason and the
// suggester (internal/domain/evolution) switches on Kind directly; String()
// renders the exact prefixes the spec's §4.5/§7 tables mandate, preserved
// only for display and for any external consumer that still matches text.
type ReasonKind string

const (
	ReasonNoCapability   ReasonKind = "no_capability"
	ReasonScopeViolation ReasonKind = "scope_violation"
	ReasonForbiddenMatch ReasonKind = "forbidden_match"
	ReasonBudget         ReasonKind = "budget"
	ReasonSessionState   ReasonKind = "session_state"
	ReasonDenialLimit    ReasonKind = "denial_limit"
	ReasonRateLimit      ReasonKind = "rate_limit"
	ReasonEscalation     ReasonKind = "escalation"
	ReasonInvalidURL     ReasonKind = "invalid_url"
)

// ScopeField names which Scope list a ScopeViolation concerns.
type ScopeField string

const (
	ScopeFieldPaths    ScopeField = "paths"
	ScopeFieldBinaries ScopeField = "binaries"
	ScopeFieldDomains  ScopeField = "domains"
	ScopeFieldMethods  ScopeField = "methods"
	ScopeFieldRepos    ScopeField = "repos"
)

// ForbiddenField names which ActionInput field matched a forbidden pattern.
type ForbiddenField string

const (
	ForbiddenFieldPath    ForbiddenField = "Path"
	ForbiddenFieldCommand ForbiddenField = "Command"
	ForbiddenFieldURL     ForbiddenField = "URL"
)

// DenialReason is a structured denial cause plus its stable display string.
type DenialReason struct {
	Kind           ReasonKind
	Tool           string
	Field          ScopeField
	ForbiddenField ForbiddenField
	Value          string
	Pattern        string
}

// String renders the exact prefixes required by spec §4.5 (suggester
// pattern matching) and §8 (scenario assertions). The suggester in
// internal/domain/evolution/suggestion.go matches on Kind/Field, not on
// these strings.
func (r DenialReason) String() string {
	switch r.Kind {
	case ReasonNoCapability:
		return fmt.Sprintf("No capability defined for tool %q", r.Tool)
	case ReasonScopeViolation:
		switch r.Field {
		case ScopeFieldPaths:
			return fmt.Sprintf("Path %q is outside allowed scope: %s", r.Value, r.Tool)
		case ScopeFieldBinaries:
			return fmt.Sprintf("Binary %q is not in allowed list: %s", r.Value, r.Tool)
		case ScopeFieldDomains:
			return fmt.Sprintf("Domain %q is not in allowed list: %s", r.Value, r.Tool)
		case ScopeFieldMethods:
			return fmt.Sprintf("HTTP method %q is not in allowed list: %s", r.Value, r.Tool)
		case ScopeFieldRepos:
			return fmt.Sprintf("Repository %q is outside allowed scope: %s", r.Value, r.Tool)
		}
		return fmt.Sprintf("%q is outside allowed scope: %s", r.Value, r.Tool)
	case ReasonForbiddenMatch:
		field := r.ForbiddenField
		if field == "" {
			field = ForbiddenFieldPath
		}
		return fmt.Sprintf("%s %q matches forbidden pattern %q", field, r.Value, r.Pattern)
	case ReasonInvalidURL:
		return "Invalid URL"
	case ReasonBudget:
		return fmt.Sprintf("Budget exceeded: %s", r.Value)
	case ReasonSessionState:
		return fmt.Sprintf("Session is not active: %s", r.Value)
	case ReasonDenialLimit:
		return "Session denial limit reached"
	case ReasonRateLimit:
		return fmt.Sprintf("Rate limit exceeded: %s", r.Value)
	case ReasonEscalation:
		return fmt.Sprintf("Escalation required: %s", r.Value)
	default:
		return "denied"
	}
}

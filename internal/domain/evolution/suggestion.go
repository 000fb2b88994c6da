// Package evolution infers the minimal policy edit that would have
// allowed a denied action, and applies an approved edit to an in-memory
// (and optionally persisted) Policy.
package evolution

import (
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// Kind names the shape of a PolicySuggestion.
type Kind string

const (
	KindAddCapability  Kind = "add_capability"
	KindWidenScope     Kind = "widen_scope"
	KindRemoveForbidden Kind = "remove_forbidden"
)

// Suggestion is a minimal, validated policy edit inferred from a denial.
type Suggestion struct {
	Kind    Kind
	Tool    string
	Field   policy.ScopeField // set for KindWidenScope
	Add     []string          // values to add for widen_scope
	Pattern string            // set for KindRemoveForbidden
}

// Suggest pattern-matches the first deny reason to an intent, per spec
// §4.5's reason-shape table. REDESIGN FLAG: the match is on
// policy.DenialReason.Kind/Field, never on the rendered string — the
// string form exists only for display and legacy propagation (§7).
func Suggest(action policy.ActionRequest, reasons []policy.DenialReason, pol *policy.Policy) *Suggestion {
	if len(reasons) == 0 {
		return nil
	}
	r := reasons[0]

	switch r.Kind {
	case policy.ReasonNoCapability:
		return &Suggestion{Kind: KindAddCapability, Tool: action.Tool}
	case policy.ReasonScopeViolation:
		switch r.Field {
		case policy.ScopeFieldPaths:
			return &Suggestion{Kind: KindWidenScope, Tool: action.Tool, Field: policy.ScopeFieldPaths, Add: []string{action.Input.Path}}
		case policy.ScopeFieldBinaries:
			return &Suggestion{Kind: KindWidenScope, Tool: action.Tool, Field: policy.ScopeFieldBinaries, Add: []string{policy.BinaryToken(action.Input)}}
		case policy.ScopeFieldDomains:
			host, ok := policy.Hostname(action.Input.URL)
			if !ok {
				return nil
			}
			return &Suggestion{Kind: KindWidenScope, Tool: action.Tool, Field: policy.ScopeFieldDomains, Add: []string{host}}
		case policy.ScopeFieldMethods:
			method := strings.ToUpper(action.Input.Method)
			if method == "" {
				method = "GET"
			}
			return &Suggestion{Kind: KindWidenScope, Tool: action.Tool, Field: policy.ScopeFieldMethods, Add: []string{method}}
		case policy.ScopeFieldRepos:
			return &Suggestion{Kind: KindWidenScope, Tool: action.Tool, Field: policy.ScopeFieldRepos, Add: []string{action.Input.Repo}}
		}
		return nil
	case policy.ReasonForbiddenMatch:
		return &Suggestion{Kind: KindRemoveForbidden, Pattern: r.Pattern}
	default:
		// Budget, session-state, denial-limit, rate-limit, escalation: hard
		// limits are never suggestible.
		return nil
	}
}

// InferScope mirrors Suggest's per-field extraction for add_capability,
// where the whole scope (not just one field) is populated from whatever
// dimensions the original input actually carried.
func InferScope(input policy.ActionInput) policy.Scope {
	var s policy.Scope
	if input.Path != "" {
		s.Paths = []string{input.Path}
	}
	if bin := policy.BinaryToken(input); bin != "" {
		s.Binaries = []string{bin}
	}
	if host, ok := policy.Hostname(input.URL); ok {
		s.Domains = []string{host}
	}
	if input.Method != "" {
		s.Methods = []string{strings.ToUpper(input.Method)}
	}
	if input.Repo != "" {
		s.Repos = []string{input.Repo}
	}
	return s
}

package evolution

import (
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// Apply deep-clones pol, mutates the clone per suggestion, and revalidates
// it. On validation failure the clone is discarded and the error returned;
// the caller's original policy is untouched either way since Apply never
// mutates pol itself. input is the denied action's input, needed to infer
// a scope for KindAddCapability; it is ignored for the other two kinds.
func Apply(pol *policy.Policy, s *Suggestion, input policy.ActionInput) (*policy.Policy, error) {
	cp := pol.Clone()

	switch s.Kind {
	case KindAddCapability:
		cp.Capabilities = append(cp.Capabilities, policy.Capability{Tool: s.Tool, Scope: InferScope(input)})
	case KindWidenScope:
		widenScope(cp, s)
	case KindRemoveForbidden:
		removeForbidden(cp, s.Pattern)
	default:
		return nil, fmt.Errorf("unknown suggestion kind %q", s.Kind)
	}

	if err := policy.Validate(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func widenScope(pol *policy.Policy, s *Suggestion) {
	capability := pol.FindCapability(s.Tool)
	if capability == nil {
		// Fall back to add_capability with just the requested field
		// populated, per spec §4.5.
		scope := policy.Scope{}
		setScopeField(&scope, s.Field, s.Add)
		pol.Capabilities = append(pol.Capabilities, policy.Capability{Tool: s.Tool, Scope: scope})
		return
	}
	unionAppend(capability, s.Field, s.Add)
}

func setScopeField(scope *policy.Scope, field policy.ScopeField, values []string) {
	switch field {
	case policy.ScopeFieldPaths:
		scope.Paths = values
	case policy.ScopeFieldBinaries:
		scope.Binaries = values
	case policy.ScopeFieldDomains:
		scope.Domains = values
	case policy.ScopeFieldMethods:
		scope.Methods = values
	case policy.ScopeFieldRepos:
		scope.Repos = values
	}
}

// unionAppend appends values not already present, preserving existing
// order and then appending the new ones, per spec §4.5.
func unionAppend(capability *policy.Capability, field policy.ScopeField, values []string) {
	current := scopeField(&capability.Scope, field)
	existing := make(map[string]bool, len(current))
	for _, v := range current {
		existing[v] = true
	}
	for _, v := range values {
		if !existing[v] {
			current = append(current, v)
			existing[v] = true
		}
	}
	setScopeField(&capability.Scope, field, current)
}

func scopeField(scope *policy.Scope, field policy.ScopeField) []string {
	switch field {
	case policy.ScopeFieldPaths:
		return scope.Paths
	case policy.ScopeFieldBinaries:
		return scope.Binaries
	case policy.ScopeFieldDomains:
		return scope.Domains
	case policy.ScopeFieldMethods:
		return scope.Methods
	case policy.ScopeFieldRepos:
		return scope.Repos
	}
	return nil
}

func removeForbidden(pol *policy.Policy, pattern string) {
	kept := pol.Forbidden[:0]
	for _, p := range pol.Forbidden {
		if p != pattern {
			kept = append(kept, p)
		}
	}
	pol.Forbidden = kept
}

package policy

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/pkg/glob"
)

// Evaluate runs the stateless evaluation algorithm: forbidden patterns,
// capability lookup, scope checks, budget, gate match — in that order, the
// first failing level producing a deny. Reasons within one level are
// collected before returning so a caller sees every violation at that
// level, not just the first.
func Evaluate(req ActionRequest, pol *Policy, budget *Budget) EvalResult {
	if reasons := checkForbidden(req.Input, pol.Forbidden); len(reasons) > 0 {
		return EvalResult{Verdict: VerdictDeny, Tool: req.Tool, Reasons: reasons}
	}

	capability := pol.FindCapability(req.Tool)
	if capability == nil {
		return EvalResult{
			Verdict: VerdictDeny,
			Tool:    req.Tool,
			Reasons: []DenialReason{{Kind: ReasonNoCapability, Tool: req.Tool}},
		}
	}

	if reasons := checkScope(req.Tool, req.Input, capability.Scope); len(reasons) > 0 {
		return EvalResult{Verdict: VerdictDeny, Tool: req.Tool, Reasons: reasons}
	}

	if budget != nil {
		if reasons := checkBudget(pol.Limits, budget); len(reasons) > 0 {
			return EvalResult{Verdict: VerdictDeny, Tool: req.Tool, Reasons: reasons}
		}
	}

	if gate := pol.FindGate(req.Tool); gate != nil {
		fires := true
		if gate.Condition == ConditionOutsideScope {
			fires = len(checkScope(req.Tool, req.Input, capability.Scope)) > 0
		}
		if fires {
			g := *gate
			return EvalResult{Verdict: VerdictGate, Tool: req.Tool, Gate: &g}
		}
	}

	return EvalResult{Verdict: VerdictAllow, Tool: req.Tool}
}

func checkForbidden(input ActionInput, patterns []string) []DenialReason {
	var reasons []DenialReason
	for _, p := range patterns {
		field, value, matched := ForbiddenField(""), "", false
		if input.Path != "" && glob.Match(p, input.Path) {
			field, value, matched = ForbiddenFieldPath, input.Path, true
		}
		if !matched && input.Command != "" && strings.Contains(input.Command, p) {
			field, value, matched = ForbiddenFieldCommand, input.Command, true
		}
		if !matched && input.URL != "" && glob.Match(p, input.URL) {
			field, value, matched = ForbiddenFieldURL, input.URL, true
		}
		if matched {
			reasons = append(reasons, DenialReason{Kind: ReasonForbiddenMatch, ForbiddenField: field, Value: value, Pattern: p})
		}
	}
	return reasons
}

func checkScope(tool string, input ActionInput, scope Scope) []DenialReason {
	var reasons []DenialReason

	if len(scope.Paths) > 0 {
		if input.Path == "" || !glob.MatchAny(scope.Paths, input.Path) {
			reasons = append(reasons, DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldPaths, Value: input.Path, Tool: tool})
		}
	}

	if len(scope.Binaries) > 0 {
		bin := BinaryToken(input)
		if bin == "" || !contains(scope.Binaries, bin) {
			reasons = append(reasons, DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldBinaries, Value: bin, Tool: tool})
		}
	}

	if len(scope.Domains) > 0 {
		if input.URL == "" {
			reasons = append(reasons, DenialReason{Kind: ReasonInvalidURL, Tool: tool})
		} else {
			host, ok := Hostname(input.URL)
			if !ok {
				reasons = append(reasons, DenialReason{Kind: ReasonInvalidURL, Tool: tool})
			} else if !contains(scope.Domains, host) {
				reasons = append(reasons, DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldDomains, Value: host, Tool: tool})
			}
		}
	}

	if len(scope.Methods) > 0 {
		method := strings.ToUpper(input.Method)
		if method == "" {
			method = "GET"
		}
		if !contains(scope.Methods, method) {
			reasons = append(reasons, DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldMethods, Value: method, Tool: tool})
		}
	}

	if len(scope.Repos) > 0 {
		if input.Repo == "" || !glob.MatchAny(scope.Repos, input.Repo) {
			reasons = append(reasons, DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldRepos, Value: input.Repo, Tool: tool})
		}
	}

	return reasons
}

// BinaryToken extracts the first whitespace-separated token of
// input.Binary|Command, base-named, per the scope.binaries rule. Exported
// so the evolution package's scope inference applies the identical rule.
func BinaryToken(input ActionInput) string {
	src := input.Binary
	if src == "" {
		src = input.Command
	}
	fields := strings.Fields(src)
	if len(fields) == 0 {
		return ""
	}
	return path.Base(fields[0])
}

// Hostname parses rawURL and returns its host, or false if it has none —
// the "unparseable URL" case shared by the domains scope check and the
// evolution package's domain-scope inference.
func Hostname(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func checkBudget(limits *Limits, budget *Budget) []DenialReason {
	if limits == nil {
		return nil
	}
	var reasons []DenialReason
	if limits.MaxRuntimeMS > 0 {
		elapsed := time.Since(budget.StartedAt).Milliseconds()
		if elapsed > limits.MaxRuntimeMS {
			reasons = append(reasons, DenialReason{Kind: ReasonBudget, Value: "max_runtime_ms exceeded"})
		}
	}
	if limits.MaxFilesChanged > 0 && budget.FilesChanged >= limits.MaxFilesChanged {
		reasons = append(reasons, DenialReason{Kind: ReasonBudget, Value: "max_files_changed reached"})
	}
	if limits.MaxOutputBytes > 0 && budget.TotalOutputBytes >= limits.MaxOutputBytes {
		reasons = append(reasons, DenialReason{Kind: ReasonBudget, Value: "max_output_bytes reached"})
	}
	if limits.MaxRetries > 0 && budget.Retries >= limits.MaxRetries {
		reasons = append(reasons, DenialReason{Kind: ReasonBudget, Value: "max_retries reached"})
	}
	if limits.MaxCostUSD > 0 && budget.CostUSD >= limits.MaxCostUSD {
		reasons = append(reasons, DenialReason{Kind: ReasonBudget, Value: "max_cost_usd reached"})
	}
	return reasons
}

// AssessRiskLevel implements the risk heuristic: explicit gate risk wins,
// else a fixed table keyed by "domain:verb"-shaped tool names, else medium.
func AssessRiskLevel(gate *Gate, tool string) RiskLevel {
	if gate != nil && gate.RiskLevel != "" {
		return gate.RiskLevel
	}
	switch tool {
	case "file:delete":
		return RiskHigh
	case "command:run":
		return RiskHigh
	case "file:write":
		return RiskMedium
	case "git:apply":
		return RiskMedium
	case "http:request":
		return RiskMedium
	case "file:read":
		return RiskLow
	case "git:diff":
		return RiskLow
	default:
		return RiskMedium
	}
}

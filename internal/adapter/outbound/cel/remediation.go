package cel

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// RemediationContext is the CEL activation surface for one denied action:
// the canonical ActionInput fields, the triggering denial, the session it
// happened in, and the gate risk level (if any) attached to the action's
// tool. Fields mirror policy.ActionInput rather than a raw argument map, in
// keeping with the evaluator's canonical-input design (REDESIGN FLAG in
// internal/domain/policy/input.go).
type RemediationContext struct {
	Tool      string
	Input     policy.ActionInput
	Reason    policy.DenialReason
	SessionID string
	RiskLevel policy.RiskLevel
}

// newRemediationEnvironment builds the CEL environment remediation rules
// evaluate against: the action's tool/input fields, the denial that
// triggered remediation matching, and a contains(string, string) function
// for substring checks (for example against reason_value or reason_pattern).
func newRemediationEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("command", cel.StringType),
		cel.Variable("binary", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("repo", cel.StringType),
		cel.Variable("reason_kind", cel.StringType),
		cel.Variable("reason_field", cel.StringType),
		cel.Variable("reason_value", cel.StringType),
		cel.Variable("reason_pattern", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("risk_level", cel.StringType),

		cel.Function("contains",
			cel.Overload("contains_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(haystack, needle ref.Val) ref.Val {
					return types.Bool(strings.Contains(haystack.Value().(string), needle.Value().(string)))
				}),
			),
		),
	)
}

func buildActivation(ctx RemediationContext) map[string]any {
	return map[string]any{
		"tool":           ctx.Tool,
		"path":           ctx.Input.Path,
		"command":        ctx.Input.Command,
		"binary":         ctx.Input.Binary,
		"url":            ctx.Input.URL,
		"method":         ctx.Input.Method,
		"repo":           ctx.Input.Repo,
		"reason_kind":    string(ctx.Reason.Kind),
		"reason_field":   string(ctx.Reason.Field),
		"reason_value":   ctx.Reason.Value,
		"reason_pattern": ctx.Reason.Pattern,
		"session_id":     ctx.SessionID,
		"risk_level":     string(ctx.RiskLevel),
	}
}

// Explain renders a human-readable one-liner describing why rule matched
// evalCtx; the MCP Proxy appends it to a denial message as the
// remediation hint.
func Explain(rule *policy.RemediationRule, evalCtx RemediationContext) string {
	if rule == nil {
		return "no remediation rule matched"
	}
	cond := rule.When
	if cond == "" {
		cond = "(always)"
	}
	return "remediation \"" + rule.Name + "\" matched (" + cond + ") for tool " + evalCtx.Tool + ": " + rule.Action
}

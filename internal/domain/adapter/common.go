package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// evaluate runs the stateless evaluator for one tool/input pair. Adapters
// delegate scope/forbidden/capability checking here rather than
// re-implementing it; budget is not available at validate() time (it is a
// session concept), so it always evaluates with budget=nil.
func evaluate(tool string, input policy.ActionInput, pol *policy.Policy) ValidationResult {
	result := policy.Evaluate(policy.ActionRequest{Tool: tool, Input: input}, pol, nil)
	return ValidationResult{Verdict: result.Verdict, Reasons: result.Reasons}
}

// evaluateArgs derives the canonical ActionInput from a raw args bag the
// same way the evaluator's former dynamic-field inspection did, per
// policy.FromMap, and evaluates it. Adapters call this after their own
// schema-parse succeeds.
func evaluateArgs(tool string, args map[string]any, pol *policy.Policy) ValidationResult {
	return evaluate(tool, policy.FromMap(tool, args), pol)
}

// moreRestrictive picks the more restrictive of two validation results for
// two-endpoint adapters (copy/move/archive-extract), per spec §4.8: deny
// beats gate beats allow; a deny's reasons are the union of both.
func moreRestrictive(a, b ValidationResult) ValidationResult {
	rank := func(v policy.Verdict) int {
		switch v {
		case policy.VerdictDeny:
			return 2
		case policy.VerdictGate:
			return 1
		default:
			return 0
		}
	}
	if rank(a.Verdict) == rank(b.Verdict) {
		return ValidationResult{Verdict: a.Verdict, Reasons: append(append([]policy.DenialReason{}, a.Reasons...), b.Reasons...)}
	}
	if rank(a.Verdict) > rank(b.Verdict) {
		return a
	}
	return b
}

// missingFieldsDeny builds a ValidationResult for a schema-parse failure:
// one DenialReason per missing required field, per spec §4.8 ("on parse
// failure → deny with per-field reasons").
func missingFieldsDeny(tool string, fields ...string) ValidationResult {
	reasons := make([]policy.DenialReason, len(fields))
	for i, f := range fields {
		reasons[i] = policy.DenialReason{Kind: policy.ReasonNoCapability, Tool: tool, Value: fmt.Sprintf("missing required field %q", f)}
	}
	return ValidationResult{Verdict: policy.VerdictDeny, Reasons: reasons}
}

// argString reads a string field from an args bag, returning "" if absent
// or of the wrong type.
func argString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// argsKey builds the stable "<name>:<args>" cache key the ctx.RollbackData
// map is keyed by, per spec §4.8. Keys are sorted so the same argument set
// always produces the same string regardless of map iteration order.
func argsKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		v, _ := json.Marshal(args[k])
		b.Write(v)
	}
	return RollbackKey(name, b.String())
}

// checksum hashes content and returns a "checksum" Artifact value in the
// sha256:<hex> form used throughout the gateway's evidence model.
func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

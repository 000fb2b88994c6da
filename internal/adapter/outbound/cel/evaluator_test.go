package cel

import (
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_ValidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool == "command:run"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if prg == nil {
		t.Fatal("Compile() returned nil program")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`this is not valid CEL !!!`); err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestEvaluate_TrueCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool == "command:run" && reason_kind == "scope_violation"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := RemediationContext{
		Tool:   "command:run",
		Input:  policy.ActionInput{Path: "/etc/passwd"},
		Reason: policy.DenialReason{Kind: policy.ReasonScopeViolation, Field: policy.ScopeFieldPaths, Value: "/etc/passwd"},
	}

	matched, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !matched {
		t.Error("expected expression to evaluate true")
	}
}

func TestEvaluate_FalseCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool == "some:other_tool"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	matched, err := eval.Evaluate(prg, RemediationContext{Tool: "command:run"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if matched {
		t.Error("expected expression to evaluate false")
	}
}

func TestEvaluate_ContainsFunction(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`contains(reason_pattern, "secret")`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	matched, err := eval.Evaluate(prg, RemediationContext{
		Reason: policy.DenialReason{Kind: policy.ReasonForbiddenMatch, Pattern: "**/secret*"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !matched {
		t.Error("expected contains() to match")
	}
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"empty", "", true},
		{"malformed", "tool == 'unterminated", true},
		{"valid", `tool == "command:run"`, false},
		{"too_long", strings.Repeat("a", 1025), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateExpression_NestingDepth(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	buildNested := func(depth int) string {
		return strings.Repeat("(", depth) + "true" + strings.Repeat(")", depth)
	}

	if err := eval.ValidateExpression(buildNested(maxNestingDepth)); err != nil {
		t.Errorf("expression at nesting limit should be valid, got: %v", err)
	}
	if err := eval.ValidateExpression(buildNested(maxNestingDepth + 1)); err == nil {
		t.Error("expected error for excessive nesting depth")
	}
}

func TestMatch_FirstMatchingRuleWins(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	rules := []policy.RemediationRule{
		{Name: "unrelated", When: `tool == "other:tool"`, Action: "ignore"},
		{Name: "widen-scope", When: `reason_kind == "scope_violation"`, Action: "widen scope.paths"},
		{Name: "catch-all", When: "", Action: "contact an operator"},
	}

	rule, err := eval.Match(rules, RemediationContext{
		Tool:   "command:run",
		Reason: policy.DenialReason{Kind: policy.ReasonScopeViolation},
	})
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if rule == nil || rule.Name != "widen-scope" {
		t.Fatalf("Match() = %+v, want widen-scope", rule)
	}
}

func TestMatch_NoRuleMatches(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	rules := []policy.RemediationRule{
		{Name: "unrelated", When: `tool == "other:tool"`, Action: "ignore"},
	}

	rule, err := eval.Match(rules, RemediationContext{Tool: "command:run"})
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if rule != nil {
		t.Errorf("Match() = %+v, want nil", rule)
	}
}

func TestMatch_SkipsMalformedRule(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	rules := []policy.RemediationRule{
		{Name: "broken", When: "not valid cel !!!", Action: "ignore"},
		{Name: "fallback", When: "", Action: "contact an operator"},
	}

	rule, err := eval.Match(rules, RemediationContext{Tool: "command:run"})
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if rule == nil || rule.Name != "fallback" {
		t.Fatalf("Match() = %+v, want fallback", rule)
	}
}

func TestValidateNesting(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"no_nesting", "true", false},
		{"single_level", "(true)", false},
		{"50_levels", strings.Repeat("(", 50) + "true" + strings.Repeat(")", 50), false},
		{"51_levels", strings.Repeat("(", 51) + "true" + strings.Repeat(")", 51), true},
		{"interleaved_types", "([{true}])", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNesting(tt.expr)
			if tt.wantErr && err == nil {
				t.Errorf("validateNesting(%q) expected error, got nil", tt.expr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateNesting(%q) unexpected error: %v", tt.expr, err)
			}
		})
	}
}

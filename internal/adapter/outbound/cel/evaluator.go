// Package cel provides CEL-expression evaluation for the optional
// remediation.rules[].when condition on a denied action (policy §6's
// remediation extension point). It is deliberately narrow: the gateway's
// core evaluator (internal/domain/policy) never depends on CEL, only the
// MCP Proxy's remediation hint (internal/adapter/inbound/mcpproxy) does.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// maxExpressionLength bounds a remediation rule's when expression.
const maxExpressionLength = 1024

// maxCostBudget limits CEL runtime cost to prevent a pathological
// expression from burning CPU during evaluation.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single expression's evaluation wall time.
const evalTimeout = 2 * time.Second

// Evaluator compiles and evaluates CEL expressions against a
// RemediationContext built from a denied action.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator builds an Evaluator with the remediation environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := newRemediationEnvironment()
	if err != nil {
		return nil, fmt.Errorf("creating remediation CEL environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks expr, returning a runnable program.
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("building program for %q: %w", expr, err)
	}
	return prg, nil
}

// ValidateExpression checks expr is non-empty, within the length and
// nesting limits, and compiles cleanly.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid remediation expression: %w", err)
	}
	return nil
}

func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Evaluate runs prg against evalCtx with a bounded timeout, requiring a
// boolean result.
func (e *Evaluator) Evaluate(prg cel.Program, evalCtx RemediationContext) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, buildActivation(evalCtx))
	if err != nil {
		return false, fmt.Errorf("evaluating remediation condition: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("remediation condition did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// Match compiles and evaluates each of pol's remediation rules, in order,
// against evalCtx, returning the first whose when expression is true (or
// empty, which always matches). A rule that fails to compile or evaluate is
// skipped rather than aborting the whole match — one malformed rule must
// not suppress every other rule's remediation advice.
func (e *Evaluator) Match(rules []policy.RemediationRule, evalCtx RemediationContext) (*policy.RemediationRule, error) {
	for i := range rules {
		rule := rules[i]
		if rule.When == "" {
			return &rule, nil
		}

		prg, err := e.Compile(rule.When)
		if err != nil {
			continue
		}
		matched, err := e.Evaluate(prg, evalCtx)
		if err != nil || !matched {
			continue
		}
		return &rule, nil
	}
	return nil, nil
}

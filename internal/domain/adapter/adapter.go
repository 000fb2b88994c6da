// Package adapter defines the uniform tool adapter contract (spec §4.8)
// and the concrete adapters for the gateway's built-in tool domains:
// filesystem, shell, HTTP, git, DNS, archive, environment.
package adapter

import (
	"context"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// ValidationResult is validate()'s output: a schema-parse/evaluator deny,
// or success.
type ValidationResult struct {
	Verdict policy.Verdict
	Reasons []policy.DenialReason
}

// DryRunResult is dryRun()'s output: no side effects, just a forecast.
type DryRunResult struct {
	WouldDo          string
	EstimatedChanges int
	Warnings         []string
}

// ExecResult is execute()'s output.
type ExecResult struct {
	Success    bool
	Output     string
	Artifacts  []session.Artifact
	DurationMs int64
	Error      string
}

// RollbackResult is rollback()'s output.
type RollbackResult struct {
	Success     bool
	Description string
	Error       string
}

// Context carries per-action execution state shared across an adapter's
// validate/dryRun/execute/rollback calls and the budget they update.
type Context struct {
	context.Context
	Budget       *session.Budget
	RollbackData map[string]any
}

// Adapter is the uniform tool contract every built-in tool domain
// implements, per spec §4.8. args is the raw tool-call argument bag (what
// the agent actually sent); each adapter schema-parses it into its own
// typed shape and, for Validate, derives the canonical policy.ActionInput
// the evaluator checks. Keeping args untyped at this boundary (rather than
// narrowing to policy.ActionInput, which has no room for a write's content
// or a copy's destination) is the one place the adapter still deals with
// raw input, matching spec §4.8's "adapters remain the only place that
// knows raw input conventions".
type Adapter interface {
	Name() string
	Description() string
	InputSchema() map[string]any

	Validate(args map[string]any, pol *policy.Policy) ValidationResult
	DryRun(args map[string]any, ctx *Context) (DryRunResult, error)
	Execute(args map[string]any, ctx *Context) (ExecResult, error)
	Rollback(args map[string]any, ctx *Context) (RollbackResult, error)
}

// RollbackKey builds the ctx.RollbackData key an adapter stashes reversible
// state under: "<name>:<args>", per spec §4.8.
func RollbackKey(name, args string) string {
	return name + ":" + args
}

// now is a seam so tests can fake duration measurement without faking
// time.Now globally; adapters call this instead of time.Now() directly.
var now = time.Now

// Package compensation implements the Compensation Planner (spec §4.7): it
// turns a session's recorded actions into a best-effort rollback plan and
// executes it, tool adapter by tool adapter, appending an action:rollback
// ledger entry for every attempt regardless of outcome.
package compensation

import (
	"context"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/adapter"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ledger"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// Step is one entry in a compensation plan: one session action, tagged with
// whether it ran and whether a registered adapter can attempt to undo it.
type Step struct {
	ActionID    string
	Index       int
	Tool        string
	Args        map[string]any
	Description string
	WasExecuted bool
	CanRollback bool
}

// Outcome is the result of attempting (or skipping) one Step.
type Outcome struct {
	Step    Step
	Skipped bool
	Success bool
	Error   string
}

// BuildPlan builds a compensation plan for sess's recorded actions, per
// spec §4.7: steps are emitted in reverse index order (most recent action
// first) so a later action's side effects are undone before an earlier
// one's, mirroring how a human would unwind a session by hand.
func BuildPlan(sess *session.Session, registry *adapter.Registry) []Step {
	actions := sess.Actions
	steps := make([]Step, 0, len(actions))
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		_, canRollback := registry.Lookup(a.Request.Tool)
		steps = append(steps, Step{
			ActionID:    a.ID,
			Index:       a.Index,
			Tool:        a.Request.Tool,
			Args:        a.RawArgs,
			Description: describe(a),
			WasExecuted: a.Result != nil && a.Result.Success,
			CanRollback: canRollback,
		})
	}
	return steps
}

func describe(a session.SessionAction) string {
	if a.Result != nil && a.Result.Output != "" {
		return fmt.Sprintf("%s: %s", a.Request.Tool, a.Result.Output)
	}
	return a.Request.Tool
}

// Execute walks plan in order, skipping any step that was never executed.
// For an executed step with no registered adapter it records a failure
// without attempting anything; otherwise it invokes the adapter's Rollback
// and continues regardless of individual failures — rollback is best-effort
// by design, so one irreversible action never blocks undoing the rest.
// Every attempt (skip excluded) appends an action:rollback entry to l.
func Execute(ctx context.Context, plan []Step, execCtx *adapter.Context, registry *adapter.Registry, l *ledger.Ledger) []Outcome {
	outcomes := make([]Outcome, 0, len(plan))
	for _, step := range plan {
		if !step.WasExecuted {
			outcomes = append(outcomes, Outcome{Step: step, Skipped: true})
			continue
		}

		out := attempt(step, registry, execCtx)
		outcomes = append(outcomes, out)

		if l != nil {
			data := map[string]any{
				"actionId":    step.ActionID,
				"tool":        step.Tool,
				"success":     out.Success,
				"description": step.Description,
			}
			if out.Error != "" {
				data["error"] = out.Error
			}
			_, _ = l.Append(ledger.EventActionRollback, data)
		}
	}
	return outcomes
}

func attempt(step Step, registry *adapter.Registry, execCtx *adapter.Context) Outcome {
	a, ok := registry.Lookup(step.Tool)
	if !ok {
		return Outcome{Step: step, Success: false, Error: "no adapter registered for rollback"}
	}

	result, err := a.Rollback(step.Args, execCtx)
	if err != nil {
		return Outcome{Step: step, Success: false, Error: err.Error()}
	}
	return Outcome{Step: step, Success: result.Success, Error: result.Error}
}

package adapter

import (
	"errors"
	"os"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// EnvGetAdapter implements "env:get": read a single environment variable
// from the gateway's own process environment. Read-only, no rollback
// needed.
type EnvGetAdapter struct{}

func (EnvGetAdapter) Name() string        { return "env:get" }
func (EnvGetAdapter) Description() string { return "Read an environment variable" }
func (EnvGetAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []string{"name"},
	}
}

func (a EnvGetAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "name") == "" {
		return missingFieldsDeny(a.Name(), "name")
	}
	return evaluate(a.Name(), policy.ActionInput{Binary: argString(args, "name")}, pol)
}

func (a EnvGetAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	name := argString(args, "name")
	if name == "" {
		return DryRunResult{}, errors.New("env:get: missing name")
	}
	return DryRunResult{WouldDo: "read env " + name}, nil
}

func (a EnvGetAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	name := argString(args, "name")
	if name == "" {
		return ExecResult{Success: false, Error: "missing name"}, nil
	}
	value, ok := os.LookupEnv(name)
	dur := now().Sub(start).Milliseconds()
	if !ok {
		return ExecResult{Success: false, Error: "variable not set", DurationMs: dur}, nil
	}
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(value))
	}
	return ExecResult{Success: true, Output: value, DurationMs: dur}, nil
}

func (a EnvGetAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	return RollbackResult{Success: true, Description: "env:get has no observable state to roll back"}, nil
}

// EnvSetAdapter implements "env:set": set (or clear) an environment
// variable in the gateway's own process environment, restorable from its
// prior value.
type EnvSetAdapter struct{}

func (EnvSetAdapter) Name() string        { return "env:set" }
func (EnvSetAdapter) Description() string { return "Set an environment variable" }
func (EnvSetAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"value": map[string]any{"type": "string"},
		},
		"required": []string{"name", "value"},
	}
}

func (a EnvSetAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "name") == "" {
		return missingFieldsDeny(a.Name(), "name")
	}
	return evaluate(a.Name(), policy.ActionInput{Binary: argString(args, "name")}, pol)
}

func (a EnvSetAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	name := argString(args, "name")
	if name == "" {
		return DryRunResult{}, errors.New("env:set: missing name")
	}
	return DryRunResult{WouldDo: "set env " + name, EstimatedChanges: 1}, nil
}

// envPriorValue is what Execute stashes so Rollback can restore the
// variable's prior value (or unset it if it wasn't set before).
type envPriorValue struct {
	existed bool
	value   string
}

func (a EnvSetAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	name := argString(args, "name")
	value := argString(args, "value")
	if name == "" {
		return ExecResult{Success: false, Error: "missing name"}, nil
	}
	prior, existed := os.LookupEnv(name)
	if ctx != nil && ctx.RollbackData != nil {
		ctx.RollbackData[argsKey(a.Name(), args)] = envPriorValue{existed: existed, value: prior}
	}
	if err := os.Setenv(name, value); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	dur := now().Sub(start).Milliseconds()
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.FilesChanged++
	}
	return ExecResult{Success: true, Artifacts: []session.Artifact{{Type: "log", Value: "set " + name}}, DurationMs: dur}, nil
}

func (a EnvSetAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed state for this set"}, nil
	}
	prior := stashed.(envPriorValue)
	name := argString(args, "name")
	if !prior.existed {
		if err := os.Unsetenv(name); err != nil {
			return RollbackResult{Success: false, Error: err.Error()}, nil
		}
		return RollbackResult{Success: true, Description: "unset " + name + " (was not set before)"}, nil
	}
	if err := os.Setenv(name, prior.value); err != nil {
		return RollbackResult{Success: false, Error: err.Error()}, nil
	}
	return RollbackResult{Success: true, Description: "restored prior value of " + name}, nil
}

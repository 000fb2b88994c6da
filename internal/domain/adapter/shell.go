package adapter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// DefaultCommandTimeout bounds command:run's execution, per spec §5
// ("adapter's own timeout (default 30 000 ms for commands)").
const DefaultCommandTimeout = 30 * time.Second

// CommandRunAdapter implements "command:run": execute a shell command with
// a bounded timeout. Rollback is unsupported in the general case (shell
// commands are not assumed reversible); it reports failure rather than
// guessing.
type CommandRunAdapter struct {
	// Timeout overrides DefaultCommandTimeout when non-zero.
	Timeout time.Duration
}

func (CommandRunAdapter) Name() string        { return "command:run" }
func (CommandRunAdapter) Description() string { return "Execute a shell command" }
func (CommandRunAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
		"required":   []string{"command"},
	}
}

func (a CommandRunAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "command") == "" {
		return missingFieldsDeny(a.Name(), "command")
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a CommandRunAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	cmd := argString(args, "command")
	if cmd == "" {
		return DryRunResult{}, errors.New("command:run: missing command")
	}
	return DryRunResult{WouldDo: "run: " + cmd, Warnings: []string{"command execution has unbounded side effects; dry-run cannot forecast them"}}, nil
}

func (a CommandRunAdapter) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultCommandTimeout
}

func (a CommandRunAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	command := argString(args, "command")
	if command == "" {
		return ExecResult{Success: false, Error: "missing command"}, nil
	}

	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	runCtx, cancel := context.WithTimeout(parent, a.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	dur := now().Sub(start).Milliseconds()

	exitCode := 0
	var exitErr *exec.ExitError
	success := runErr == nil
	if runErr != nil {
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	output := stdout.String()
	artifacts := []session.Artifact{
		{Type: "exit_code", Value: strconv.Itoa(exitCode)},
		{Type: "log", Value: stderr.String()},
	}
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(output) + stderr.Len())
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	return ExecResult{Success: success, Output: output, Artifacts: artifacts, DurationMs: dur, Error: errMsg}, nil
}

// Rollback always fails: arbitrary shell commands are not assumed
// reversible, per spec §4.8's "absence of stashed data → failure with a
// clear reason".
func (a CommandRunAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	return RollbackResult{Success: false, Error: "command:run has no general rollback; commands are not assumed reversible"}, nil
}

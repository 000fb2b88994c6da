package adapter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// DefaultGitTimeout bounds git:diff/git:apply invocations.
const DefaultGitTimeout = 30 * time.Second

func runGit(ctx *Context, repo string, timeout time.Duration, args ...string) (stdout, stderr string, err error) {
	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	runCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	if repo != "" {
		cmd.Dir = repo
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), errOut.String(), err
}

// GitDiffAdapter implements "git:diff": a read-only inspection of a
// repository's working tree.
type GitDiffAdapter struct{}

func (GitDiffAdapter) Name() string        { return "git:diff" }
func (GitDiffAdapter) Description() string { return "Show the working-tree diff of a git repository" }
func (GitDiffAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"repo": map[string]any{"type": "string"}},
		"required":   []string{"repo"},
	}
}

func (a GitDiffAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "repo") == "" {
		return missingFieldsDeny(a.Name(), "repo")
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a GitDiffAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	repo := argString(args, "repo")
	if repo == "" {
		return DryRunResult{}, errors.New("git:diff: missing repo")
	}
	return DryRunResult{WouldDo: "diff " + repo}, nil
}

func (a GitDiffAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	repo := argString(args, "repo")
	if repo == "" {
		return ExecResult{Success: false, Error: "missing repo"}, nil
	}
	out, errOut, err := runGit(ctx, repo, DefaultGitTimeout, "diff")
	dur := now().Sub(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: errOut, DurationMs: dur}, nil
	}
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(out))
	}
	return ExecResult{Success: true, Output: out, Artifacts: []session.Artifact{{Type: "diff", Value: out}}, DurationMs: dur}, nil
}

// Rollback is a no-op: git:diff never mutates the repository.
func (a GitDiffAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	return RollbackResult{Success: true, Description: "git:diff has no observable state to roll back"}, nil
}

// GitApplyAdapter implements "git:apply": apply a unified diff (patch) to a
// repository's working tree, restorable with `git apply -R`.
type GitApplyAdapter struct{}

func (GitApplyAdapter) Name() string        { return "git:apply" }
func (GitApplyAdapter) Description() string { return "Apply a patch to a git repository" }
func (GitApplyAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo":  map[string]any{"type": "string"},
			"patch": map[string]any{"type": "string"},
		},
		"required": []string{"repo", "patch"},
	}
}

func (a GitApplyAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	var missing []string
	if argString(args, "repo") == "" {
		missing = append(missing, "repo")
	}
	if argString(args, "patch") == "" {
		missing = append(missing, "patch")
	}
	if len(missing) > 0 {
		return missingFieldsDeny(a.Name(), missing...)
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a GitApplyAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	repo := argString(args, "repo")
	if repo == "" {
		return DryRunResult{}, errors.New("git:apply: missing repo")
	}
	_, errOut, err := runGit(ctx, repo, DefaultGitTimeout, "apply", "--check", "-")
	if err != nil {
		return DryRunResult{WouldDo: "apply patch to " + repo, Warnings: []string{errOut}}, nil
	}
	return DryRunResult{WouldDo: "apply patch to " + repo, EstimatedChanges: 1}, nil
}

func (a GitApplyAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	repo := argString(args, "repo")
	patch := argString(args, "patch")
	if repo == "" || patch == "" {
		return ExecResult{Success: false, Error: "missing repo/patch"}, nil
	}

	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	runCtx, cancel := context.WithTimeout(parent, DefaultGitTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "apply", "-")
	cmd.Dir = repo
	cmd.Stdin = bytes.NewBufferString(patch)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	dur := now().Sub(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: errOut.String(), DurationMs: dur}, nil
	}

	if ctx != nil {
		if ctx.RollbackData != nil {
			ctx.RollbackData[argsKey(a.Name(), args)] = patch
		}
		if ctx.Budget != nil {
			ctx.Budget.FilesChanged++
		}
	}
	return ExecResult{Success: true, Artifacts: []session.Artifact{{Type: "diff", Value: patch}}, DurationMs: dur}, nil
}

func (a GitApplyAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed patch for this apply"}, nil
	}
	patch := stashed.(string)
	repo := argString(args, "repo")
	_, errOut, err := runGitStdin(ctx, repo, DefaultGitTimeout, patch, "apply", "-R", "-")
	if err != nil {
		return RollbackResult{Success: false, Error: errOut}, nil
	}
	return RollbackResult{Success: true, Description: "reverse-applied patch in " + repo}, nil
}

func runGitStdin(ctx *Context, repo string, timeout time.Duration, stdin string, args ...string) (stdout, stderr string, err error) {
	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	runCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = repo
	cmd.Stdin = bytes.NewBufferString(stdin)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), errOut.String(), err
}

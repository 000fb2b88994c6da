package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// textDiff renders a unified-style patch between a file's prior and new
// content for the evidence ledger's benefit. git:diff shells out to git for
// repository-scoped changes (see git.go); file:write has no repository to
// ask, so it builds its own patch with diffmatchpatch instead.
func textDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	patches := dmp.PatchMake(before, diffs)
	return dmp.PatchToText(patches)
}

// FileReadAdapter implements the "file:read" tool domain: read a file's
// contents without mutating anything.
type FileReadAdapter struct{}

func (FileReadAdapter) Name() string        { return "file:read" }
func (FileReadAdapter) Description() string { return "Read the contents of a file" }
func (FileReadAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (a FileReadAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "path") == "" {
		return missingFieldsDeny(a.Name(), "path")
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a FileReadAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	path := argString(args, "path")
	if path == "" {
		return DryRunResult{}, errors.New("file:read: missing path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return DryRunResult{WouldDo: fmt.Sprintf("read %s", path), Warnings: []string{err.Error()}}, nil
	}
	return DryRunResult{WouldDo: fmt.Sprintf("read %s (%d bytes)", path, info.Size())}, nil
}

func (a FileReadAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	path := argString(args, "path")
	if path == "" {
		return ExecResult{Success: false, Error: "missing path"}, nil
	}
	content, err := os.ReadFile(path)
	dur := now().Sub(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: dur}, nil
	}
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(content))
	}
	return ExecResult{
		Success:    true,
		Output:     string(content),
		Artifacts:  []session.Artifact{{Type: "checksum", Value: checksum(content)}},
		DurationMs: dur,
	}, nil
}

// Rollback is a no-op: reading a file never mutates state.
func (a FileReadAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	return RollbackResult{Success: true, Description: "file:read has no observable state to roll back"}, nil
}

// FileWriteAdapter implements "file:write": overwrite (or create) a file,
// stashing its prior content (or absence) so Rollback can restore it.
type FileWriteAdapter struct{}

func (FileWriteAdapter) Name() string        { return "file:write" }
func (FileWriteAdapter) Description() string { return "Write content to a file" }
func (FileWriteAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (a FileWriteAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	var missing []string
	if argString(args, "path") == "" {
		missing = append(missing, "path")
	}
	if _, ok := args["content"]; !ok {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return missingFieldsDeny(a.Name(), missing...)
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a FileWriteAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	path := argString(args, "path")
	content := argString(args, "content")
	var warnings []string
	if path == "" {
		warnings = append(warnings, "missing path")
	}
	change := 1
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DryRunResult{WouldDo: fmt.Sprintf("create %s (%d bytes)", path, len(content)), EstimatedChanges: change, Warnings: warnings}, nil
	}
	return DryRunResult{WouldDo: fmt.Sprintf("overwrite %s (%d bytes)", path, len(content)), EstimatedChanges: change, Warnings: warnings}, nil
}

func (a FileWriteAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	path := argString(args, "path")
	content := argString(args, "content")
	if path == "" {
		return ExecResult{Success: false, Error: "missing path"}, nil
	}

	prior, readErr := os.ReadFile(path)
	priorExisted := readErr == nil
	if ctx != nil && ctx.RollbackData != nil {
		key := argsKey(a.Name(), args)
		if priorExisted {
			ctx.RollbackData[key] = rollbackPriorContent{existed: true, content: prior}
		} else {
			ctx.RollbackData[key] = rollbackPriorContent{existed: false}
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}

	dur := now().Sub(start).Milliseconds()
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.FilesChanged++
		ctx.Budget.TotalOutputBytes += int64(len(content))
	}
	artifacts := []session.Artifact{{Type: "checksum", Value: checksum([]byte(content))}}
	if priorExisted {
		artifacts = append(artifacts, session.Artifact{Type: "diff", Value: textDiff(string(prior), content)})
	}
	return ExecResult{
		Success:    true,
		Artifacts:  artifacts,
		DurationMs: dur,
	}, nil
}

// rollbackPriorContent is what FileWriteAdapter.Execute stashes so Rollback
// can restore (or delete) the file's previous state.
type rollbackPriorContent struct {
	existed bool
	content []byte
}

func (a FileWriteAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	key := argsKey(a.Name(), args)
	stashed, ok := ctx.RollbackData[key]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed state for this write"}, nil
	}
	prior, ok := stashed.(rollbackPriorContent)
	if !ok {
		return RollbackResult{Success: false, Error: "stashed state has unexpected shape"}, nil
	}
	path := argString(args, "path")
	if !prior.existed {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RollbackResult{Success: false, Error: err.Error()}, nil
		}
		return RollbackResult{Success: true, Description: fmt.Sprintf("removed %s (did not exist before write)", path)}, nil
	}
	if err := os.WriteFile(path, prior.content, 0o644); err != nil {
		return RollbackResult{Success: false, Error: err.Error()}, nil
	}
	return RollbackResult{Success: true, Description: fmt.Sprintf("restored prior content of %s", path)}, nil
}

// FileDeleteAdapter implements "file:delete": remove a file, stashing its
// content so Rollback can recreate it.
type FileDeleteAdapter struct{}

func (FileDeleteAdapter) Name() string        { return "file:delete" }
func (FileDeleteAdapter) Description() string { return "Delete a file" }
func (FileDeleteAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (a FileDeleteAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "path") == "" {
		return missingFieldsDeny(a.Name(), "path")
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a FileDeleteAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	path := argString(args, "path")
	if path == "" {
		return DryRunResult{}, errors.New("file:delete: missing path")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DryRunResult{WouldDo: fmt.Sprintf("delete %s", path), Warnings: []string{"file does not exist"}}, nil
	}
	return DryRunResult{WouldDo: fmt.Sprintf("delete %s", path), EstimatedChanges: 1}, nil
}

func (a FileDeleteAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	path := argString(args, "path")
	if path == "" {
		return ExecResult{Success: false, Error: "missing path"}, nil
	}
	content, readErr := os.ReadFile(path)
	if ctx != nil && ctx.RollbackData != nil && readErr == nil {
		ctx.RollbackData[argsKey(a.Name(), args)] = rollbackPriorContent{existed: true, content: content}
	}
	if err := os.Remove(path); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	dur := now().Sub(start).Milliseconds()
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.FilesChanged++
	}
	return ExecResult{
		Success:    true,
		Artifacts:  []session.Artifact{{Type: "checksum", Value: checksum(content)}},
		DurationMs: dur,
	}, nil
}

func (a FileDeleteAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed content for this delete"}, nil
	}
	prior, ok := stashed.(rollbackPriorContent)
	if !ok || !prior.existed {
		return RollbackResult{Success: false, Error: "stashed state has unexpected shape"}, nil
	}
	path := argString(args, "path")
	if err := os.WriteFile(path, prior.content, 0o644); err != nil {
		return RollbackResult{Success: false, Error: err.Error()}, nil
	}
	return RollbackResult{Success: true, Description: fmt.Sprintf("recreated %s", path)}, nil
}

// FileCopyAdapter implements "file:copy": a two-endpoint operation whose
// Validate evaluates both "from" and "to" as Path and returns the more
// restrictive verdict, per spec §4.8.
type FileCopyAdapter struct{}

func (FileCopyAdapter) Name() string        { return "file:copy" }
func (FileCopyAdapter) Description() string { return "Copy a file to a new location" }
func (FileCopyAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"from": map[string]any{"type": "string"},
			"to":   map[string]any{"type": "string"},
		},
		"required": []string{"from", "to"},
	}
}

func (a FileCopyAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		var missing []string
		if from == "" {
			missing = append(missing, "from")
		}
		if to == "" {
			missing = append(missing, "to")
		}
		return missingFieldsDeny(a.Name(), missing...)
	}
	srcResult := evaluate(a.Name(), policy.ActionInput{Path: from}, pol)
	dstResult := evaluate(a.Name(), policy.ActionInput{Path: to}, pol)
	return moreRestrictive(srcResult, dstResult)
}

func (a FileCopyAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		return DryRunResult{}, errors.New("file:copy: missing from/to")
	}
	info, err := os.Stat(from)
	if err != nil {
		return DryRunResult{WouldDo: fmt.Sprintf("copy %s -> %s", from, to), Warnings: []string{err.Error()}}, nil
	}
	return DryRunResult{WouldDo: fmt.Sprintf("copy %s -> %s (%d bytes)", from, to, info.Size()), EstimatedChanges: 1}, nil
}

func (a FileCopyAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		return ExecResult{Success: false, Error: "missing from/to"}, nil
	}
	content, err := os.ReadFile(from)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	if ctx != nil && ctx.RollbackData != nil {
		if prior, err := os.ReadFile(to); err == nil {
			ctx.RollbackData[argsKey(a.Name(), args)] = rollbackPriorContent{existed: true, content: prior}
		} else {
			ctx.RollbackData[argsKey(a.Name(), args)] = rollbackPriorContent{existed: false}
		}
	}
	if dir := filepath.Dir(to); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
	}
	if err := os.WriteFile(to, content, 0o644); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	dur := now().Sub(start).Milliseconds()
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.FilesChanged++
		ctx.Budget.TotalOutputBytes += int64(len(content))
	}
	return ExecResult{Success: true, Artifacts: []session.Artifact{{Type: "checksum", Value: checksum(content)}}, DurationMs: dur}, nil
}

func (a FileCopyAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed state for this copy"}, nil
	}
	prior := stashed.(rollbackPriorContent)
	to := argString(args, "to")
	if !prior.existed {
		if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RollbackResult{Success: false, Error: err.Error()}, nil
		}
		return RollbackResult{Success: true, Description: fmt.Sprintf("removed %s (did not exist before copy)", to)}, nil
	}
	if err := os.WriteFile(to, prior.content, 0o644); err != nil {
		return RollbackResult{Success: false, Error: err.Error()}, nil
	}
	return RollbackResult{Success: true, Description: fmt.Sprintf("restored prior content of %s", to)}, nil
}

// FileMoveAdapter implements "file:move": rename/move a file, restorable by
// moving it back.
type FileMoveAdapter struct{}

func (FileMoveAdapter) Name() string        { return "file:move" }
func (FileMoveAdapter) Description() string { return "Move (rename) a file" }
func (FileMoveAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"from": map[string]any{"type": "string"},
			"to":   map[string]any{"type": "string"},
		},
		"required": []string{"from", "to"},
	}
}

func (a FileMoveAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		var missing []string
		if from == "" {
			missing = append(missing, "from")
		}
		if to == "" {
			missing = append(missing, "to")
		}
		return missingFieldsDeny(a.Name(), missing...)
	}
	return moreRestrictive(evaluate(a.Name(), policy.ActionInput{Path: from}, pol), evaluate(a.Name(), policy.ActionInput{Path: to}, pol))
}

func (a FileMoveAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		return DryRunResult{}, errors.New("file:move: missing from/to")
	}
	return DryRunResult{WouldDo: fmt.Sprintf("move %s -> %s", from, to), EstimatedChanges: 1}, nil
}

func (a FileMoveAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	from, to := argString(args, "from"), argString(args, "to")
	if from == "" || to == "" {
		return ExecResult{Success: false, Error: "missing from/to"}, nil
	}
	content, err := os.ReadFile(from)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	if dir := filepath.Dir(to); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
	}
	if err := os.Rename(from, to); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	if ctx != nil && ctx.RollbackData != nil {
		ctx.RollbackData[argsKey(a.Name(), args)] = struct{ from, to string }{from, to}
	}
	dur := now().Sub(start).Milliseconds()
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.FilesChanged++
	}
	return ExecResult{Success: true, Artifacts: []session.Artifact{{Type: "checksum", Value: checksum(content)}}, DurationMs: dur}, nil
}

func (a FileMoveAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed state for this move"}, nil
	}
	pair := stashed.(struct{ from, to string })
	if err := os.Rename(pair.to, pair.from); err != nil {
		return RollbackResult{Success: false, Error: err.Error()}, nil
	}
	return RollbackResult{Success: true, Description: fmt.Sprintf("moved %s back to %s", pair.to, pair.from)}, nil
}

package adapter

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// DefaultArchiveExtractTimeout bounds archive:extract, per spec §5
// ("60 000 ms for archive extract").
const DefaultArchiveExtractTimeout = 60 * time.Second

// ArchiveExtractAdapter implements "archive:extract": a two-endpoint
// operation (archive path, destination directory) whose Validate checks
// both, per spec §4.8.
type ArchiveExtractAdapter struct {
	Timeout time.Duration
}

func (ArchiveExtractAdapter) Name() string        { return "archive:extract" }
func (ArchiveExtractAdapter) Description() string { return "Extract a zip archive into a directory" }
func (ArchiveExtractAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"archive": map[string]any{"type": "string"},
			"dest":    map[string]any{"type": "string"},
		},
		"required": []string{"archive", "dest"},
	}
}

func (a ArchiveExtractAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	archive, dest := argString(args, "archive"), argString(args, "dest")
	if archive == "" || dest == "" {
		var missing []string
		if archive == "" {
			missing = append(missing, "archive")
		}
		if dest == "" {
			missing = append(missing, "dest")
		}
		return missingFieldsDeny(a.Name(), missing...)
	}
	return moreRestrictive(
		evaluate(a.Name(), policy.ActionInput{Path: archive}, pol),
		evaluate(a.Name(), policy.ActionInput{Path: dest}, pol),
	)
}

func (a ArchiveExtractAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	archive, dest := argString(args, "archive"), argString(args, "dest")
	if archive == "" || dest == "" {
		return DryRunResult{}, errors.New("archive:extract: missing archive/dest")
	}
	r, err := zip.OpenReader(archive)
	if err != nil {
		return DryRunResult{WouldDo: fmt.Sprintf("extract %s -> %s", archive, dest), Warnings: []string{err.Error()}}, nil
	}
	defer r.Close()
	return DryRunResult{WouldDo: fmt.Sprintf("extract %s -> %s", archive, dest), EstimatedChanges: len(r.File)}, nil
}

func (a ArchiveExtractAdapter) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultArchiveExtractTimeout
}

func (a ArchiveExtractAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	archive, dest := argString(args, "archive"), argString(args, "dest")
	if archive == "" || dest == "" {
		return ExecResult{Success: false, Error: "missing archive/dest"}, nil
	}

	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	runCtx, cancel := context.WithTimeout(parent, a.timeout())
	defer cancel()

	r, err := zip.OpenReader(archive)
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}
	defer r.Close()

	destExisted := dirExists(dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}

	var written []string
	var totalBytes int64
	for _, f := range r.File {
		if runCtx.Err() != nil {
			return ExecResult{Success: false, Error: runCtx.Err().Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
			return ExecResult{Success: false, Error: fmt.Sprintf("archive entry %q escapes destination", f.Name), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		rc, err := f.Open()
		if err != nil {
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		n, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return ExecResult{Success: false, Error: copyErr.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
		}
		totalBytes += n
		written = append(written, target)
	}

	if ctx != nil {
		if ctx.RollbackData != nil {
			ctx.RollbackData[argsKey(a.Name(), args)] = archiveExtractState{destExisted: destExisted, dest: dest, written: written}
		}
		if ctx.Budget != nil {
			ctx.Budget.FilesChanged += int64(len(written))
			ctx.Budget.TotalOutputBytes += totalBytes
		}
	}

	dur := now().Sub(start).Milliseconds()
	return ExecResult{
		Success:    true,
		Output:     fmt.Sprintf("extracted %d file(s) to %s", len(written), dest),
		Artifacts:  []session.Artifact{{Type: "log", Value: fmt.Sprintf("%d files written", len(written))}},
		DurationMs: dur,
	}, nil
}

// archiveExtractState is what Execute stashes so Rollback can undo the
// extraction: remove every written file, and the destination directory
// itself if extract created it.
type archiveExtractState struct {
	destExisted bool
	dest        string
	written     []string
}

func (a ArchiveExtractAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	if ctx == nil || ctx.RollbackData == nil {
		return RollbackResult{Success: false, Error: "no rollback context available"}, nil
	}
	stashed, ok := ctx.RollbackData[argsKey(a.Name(), args)]
	if !ok {
		return RollbackResult{Success: false, Error: "no stashed state for this extract"}, nil
	}
	state := stashed.(archiveExtractState)
	for _, f := range state.written {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RollbackResult{Success: false, Error: err.Error()}, nil
		}
	}
	if !state.destExisted {
		if err := os.RemoveAll(state.dest); err != nil {
			return RollbackResult{Success: false, Error: err.Error()}, nil
		}
	}
	return RollbackResult{Success: true, Description: fmt.Sprintf("removed %d extracted file(s) from %s", len(state.written), state.dest)}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

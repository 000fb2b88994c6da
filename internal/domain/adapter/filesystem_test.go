package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

func allowAllPolicy(tools ...string) *policy.Policy {
	caps := make([]policy.Capability, len(tools))
	for i, t := range tools {
		caps[i] = policy.Capability{Tool: t}
	}
	return &policy.Policy{Version: "1.0", Name: "test", Capabilities: caps}
}

func TestFileWriteAdapter_ExecuteAndRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	a := FileWriteAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"path": path, "content": "hello"}

	if v := a.Validate(args, allowAllPolicy("file:write")); v.Verdict != policy.VerdictAllow {
		t.Fatalf("expected allow, got %v: %v", v.Verdict, v.Reasons)
	}

	res, err := a.Execute(args, ctx)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "hello" {
		t.Fatalf("unexpected file content: %v %q", err, got)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Type != "checksum" {
		t.Fatalf("expected one checksum artifact, got %+v", res.Artifacts)
	}

	rb, err := a.Rollback(args, ctx)
	if err != nil || !rb.Success {
		t.Fatalf("rollback failed: %v %+v", err, rb)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after rollback of a fresh write, got err=%v", err)
	}
}

func TestFileWriteAdapter_RollbackRestoresPriorContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := FileWriteAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"path": path, "content": "overwritten"}

	if _, err := a.Execute(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Rollback(args, ctx); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "original" {
		t.Fatalf("expected restored original content, got %q (err=%v)", got, err)
	}
}

func TestFileWriteAdapter_OverwriteProducesDiffArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := FileWriteAdapter{}
	res, err := a.Execute(map[string]any{"path": path, "content": "overwritten"}, nil)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}

	var diff *session.Artifact
	for i := range res.Artifacts {
		if res.Artifacts[i].Type == "diff" {
			diff = &res.Artifacts[i]
		}
	}
	if diff == nil {
		t.Fatalf("expected a diff artifact for an overwrite, got %+v", res.Artifacts)
	}
	if diff.Value == "" {
		t.Error("diff artifact has empty value")
	}
}

func TestFileWriteAdapter_FreshWriteHasNoDiffArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	a := FileWriteAdapter{}
	res, err := a.Execute(map[string]any{"path": path, "content": "hello"}, nil)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	for _, art := range res.Artifacts {
		if art.Type == "diff" {
			t.Errorf("unexpected diff artifact for a fresh write: %+v", res.Artifacts)
		}
	}
}

func TestFileWriteAdapter_ValidateMissingContentDenies(t *testing.T) {
	a := FileWriteAdapter{}
	v := a.Validate(map[string]any{"path": "/tmp/x"}, allowAllPolicy("file:write"))
	if v.Verdict != policy.VerdictDeny {
		t.Fatalf("expected deny for missing content, got %v", v.Verdict)
	}
}

func TestFileDeleteAdapter_ExecuteAndRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(path, []byte("bye"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := FileDeleteAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"path": path}

	res, err := a.Execute(args, ctx)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file deleted")
	}

	rb, err := a.Rollback(args, ctx)
	if err != nil || !rb.Success {
		t.Fatalf("rollback failed: %v %+v", err, rb)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "bye" {
		t.Fatalf("expected recreated file with original content, got %q (err=%v)", got, err)
	}
}

func TestFileCopyAdapter_MoreRestrictiveScope(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "src.txt")
	dst := filepath.Join(dir, "b", "dst.txt")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	pol := &policy.Policy{
		Version: "1.0",
		Name:    "test",
		Capabilities: []policy.Capability{
			{Tool: "file:copy", Scope: policy.Scope{Paths: []string{filepath.Join(dir, "a", "**")}}},
		},
	}

	a := FileCopyAdapter{}
	args := map[string]any{"from": src, "to": dst}
	v := a.Validate(args, pol)
	if v.Verdict != policy.VerdictDeny {
		t.Fatalf("expected deny (dst outside scope), got %v", v.Verdict)
	}

	ctx := &Context{RollbackData: make(map[string]any)}
	res, err := a.Execute(args, ctx)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	if got, err := os.ReadFile(dst); err != nil || string(got) != "data" {
		t.Fatalf("unexpected copy result: %v %q", err, got)
	}

	rb, err := a.Rollback(args, ctx)
	if err != nil || !rb.Success {
		t.Fatalf("rollback failed: %v %+v", err, rb)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected copy destination removed by rollback")
	}
}

func TestFileMoveAdapter_RollbackMovesBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("move-me"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := FileMoveAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"from": src, "to": dst}

	if _, err := a.Execute(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source gone after move")
	}

	if _, err := a.Rollback(args, ctx); err != nil {
		t.Fatal(err)
	}
	if got, err := os.ReadFile(src); err != nil || string(got) != "move-me" {
		t.Fatalf("expected file moved back to source, got %q (err=%v)", got, err)
	}
}

func TestFileReadAdapter_RollbackIsNoop(t *testing.T) {
	a := FileReadAdapter{}
	rb, err := a.Rollback(map[string]any{"path": "/whatever"}, &Context{})
	if err != nil || !rb.Success {
		t.Fatalf("expected no-op success, got %v %+v", err, rb)
	}
}

package adapter

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func buildTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestArchiveExtractAdapter_ExecuteAndRollback(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "a.zip")
	buildTestZip(t, archivePath, map[string]string{"one.txt": "1", "nested/two.txt": "2"})
	dest := filepath.Join(dir, "out")

	a := ArchiveExtractAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"archive": archivePath, "dest": dest}

	res, err := a.Execute(args, ctx)
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	if got, err := os.ReadFile(filepath.Join(dest, "one.txt")); err != nil || string(got) != "1" {
		t.Fatalf("unexpected extracted content: %v %q", err, got)
	}
	if got, err := os.ReadFile(filepath.Join(dest, "nested", "two.txt")); err != nil || string(got) != "2" {
		t.Fatalf("unexpected nested extracted content: %v %q", err, got)
	}

	rb, err := a.Rollback(args, ctx)
	if err != nil || !rb.Success {
		t.Fatalf("rollback failed: %v %+v", err, rb)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected destination directory removed (it didn't exist before extract)")
	}
}

func TestArchiveExtractAdapter_RollbackKeepsPreexistingDest(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "a.zip")
	buildTestZip(t, archivePath, map[string]string{"one.txt": "1"})
	dest := filepath.Join(dir, "out")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "keep.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := ArchiveExtractAdapter{}
	ctx := &Context{RollbackData: make(map[string]any)}
	args := map[string]any{"archive": archivePath, "dest": dest}

	if _, err := a.Execute(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Rollback(args, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "one.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected extracted file removed")
	}
	if _, err := os.Stat(filepath.Join(dest, "keep.txt")); err != nil {
		t.Fatalf("expected pre-existing file preserved: %v", err)
	}
}

package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_ValidPolicy(t *testing.T) {
	pol, err := Parse([]byte(basicPolicyYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if pol.Name != "basic" {
		t.Errorf("Name = %q, want %q", pol.Name, "basic")
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`
version: "1.0"
name: bad
capabilities:
  - tool: file:read
not_a_real_field: true
`))
	if err == nil {
		t.Fatal("Parse() expected error for unknown top-level field, got nil")
	}
}

func TestParse_RejectsMissingRequiredFields(t *testing.T) {
	_, err := Parse([]byte(`
version: "1.0"
capabilities: []
`))
	if err == nil {
		t.Fatal("Parse() expected error for missing name and empty capabilities, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("err = %v (%T), want *ValidationError", err, err)
	}
}

func TestParse_DefaultsVersionWhenAbsent(t *testing.T) {
	pol, err := Parse([]byte(`
name: no-version
capabilities:
  - tool: file:read
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if pol.Version != "1.0" {
		t.Errorf("Version = %q, want default %q", pol.Version, "1.0")
	}
}

func TestParse_UppercasesMethods(t *testing.T) {
	pol, err := Parse([]byte(`
version: "1.0"
name: methods
capabilities:
  - tool: http:request
    scope:
      methods: ["get", "post"]
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	methods := pol.Capabilities[0].Scope.Methods
	if methods[0] != "GET" || methods[1] != "POST" {
		t.Errorf("Methods = %v, want upper-cased", methods)
	}
}

func TestParse_RejectsDuplicateCapabilityTool(t *testing.T) {
	_, err := Parse([]byte(`
version: "1.0"
name: dup
capabilities:
  - tool: file:read
  - tool: file:read
`))
	if err == nil {
		t.Fatal("Parse() expected error for duplicate capability tool, got nil")
	}
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(basicPolicyYAML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	pol, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if pol.Name != "basic" {
		t.Errorf("Name = %q, want %q", pol.Name, "basic")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestWriteToFile_RoundTrips(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "policy.yaml")

	if err := WriteToFile(path, pol); err != nil {
		t.Fatalf("WriteToFile() error: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after WriteToFile() error: %v", err)
	}
	if reloaded.Name != pol.Name || len(reloaded.Capabilities) != len(pol.Capabilities) {
		t.Errorf("reloaded = %+v, want equivalent to original %+v", reloaded, pol)
	}
}

func TestWriteToFile_LeavesNoTempFileBehindOnSuccess(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	if err := WriteToFile(path, pol); err != nil {
		t.Fatalf("WriteToFile() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "policy.yaml" {
		t.Errorf("dir entries = %v, want only policy.yaml", entries)
	}
}

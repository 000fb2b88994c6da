package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a Policy document from path, rejecting unknown
// top-level keys, normalizing defaults, and validating the result. This is
// the sole entry point the CLI's `validate`/`serve`/`proxy`/`exec`
// commands use to turn a policy file into a usable *Policy.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML bytes into a validated Policy. KnownFields is
// enabled so an unrecognized top-level (or nested) key is a parse error,
// per spec §6: "Unknown keys reject."
func Parse(raw []byte) (*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	Normalize(&p)

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// WriteToFile serializes p to path, 2-space indent, insertion-order keys,
// creating missing parent directories. Used both by the Evolution
// Subsystem's add-to-policy persistence and by any CLI command that needs
// to re-save a policy. Writes to a temp file in the same directory and
// renames over the target so a crash mid-write never leaves a truncated
// policy file behind.
func WriteToFile(path string, p *Policy) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating policy directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encoding policy YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing policy YAML: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".policy-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp policy file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp policy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp policy file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming policy file into place: %w", err)
	}
	return nil
}

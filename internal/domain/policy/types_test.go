package policy

import "testing"

func TestFindCapability_FirstMatchWins(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	capability := pol.FindCapability("file:read")
	if capability == nil || capability.Tool != "file:read" {
		t.Fatalf("FindCapability(\"file:read\") = %+v", capability)
	}
}

func TestFindCapability_NoMatch(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	if capability := pol.FindCapability("file:delete"); capability != nil {
		t.Errorf("FindCapability(\"file:delete\") = %+v, want nil", capability)
	}
}

func TestFindGate_MatchesAction(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	gate := pol.FindGate("file:write")
	if gate == nil || gate.Approval != ApprovalHuman {
		t.Fatalf("FindGate(\"file:write\") = %+v", gate)
	}
}

func TestFindGate_NoMatch(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	if gate := pol.FindGate("file:read"); gate != nil {
		t.Errorf("FindGate(\"file:read\") = %+v, want nil", gate)
	}
}

func TestClone_ProducesIndependentCopy(t *testing.T) {
	pol := mustParse(t, basicPolicyYAML)
	clone := pol.Clone()

	clone.Capabilities[0].Scope.Paths[0] = "/mutated/**"
	clone.Name = "mutated"

	if pol.Name == "mutated" {
		t.Error("mutating clone.Name affected original")
	}
	if pol.Capabilities[0].Scope.Paths[0] == "/mutated/**" {
		t.Error("mutating clone's scope paths affected original")
	}
}

func TestClone_NilPolicy(t *testing.T) {
	var pol *Policy
	if got := pol.Clone(); got != nil {
		t.Errorf("Clone() on nil = %+v, want nil", got)
	}
}

func TestClone_PreservesOptionalBlocks(t *testing.T) {
	pol := mustParse(t, `
version: "1.0"
name: full
capabilities:
  - tool: file:read
limits:
  max_retries: 3
session:
  max_actions: 10
  escalation:
    - after_actions: 5
      require: human_checkin
evidence:
  require: ["ledger"]
  format: jsonl
remediation:
  rules:
    - name: r1
      when: "true"
      action: "do nothing"
  fallback_chain: ["r1"]
`)
	clone := pol.Clone()

	if clone.Limits == nil || clone.Limits.MaxRetries != 3 {
		t.Errorf("clone.Limits = %+v", clone.Limits)
	}
	if clone.Session == nil || len(clone.Session.Escalation) != 1 {
		t.Errorf("clone.Session = %+v", clone.Session)
	}
	if clone.Evidence == nil || len(clone.Evidence.Require) != 1 {
		t.Errorf("clone.Evidence = %+v", clone.Evidence)
	}
	if clone.Remediation == nil || len(clone.Remediation.Rules) != 1 || len(clone.Remediation.FallbackChain) != 1 {
		t.Errorf("clone.Remediation = %+v", clone.Remediation)
	}

	// Mutating the clone's nested slices must not reach the original.
	clone.Session.Escalation[0].AfterActions = 999
	if pol.Session.Escalation[0].AfterActions == 999 {
		t.Error("mutating clone.Session.Escalation affected original")
	}
}

func TestDenialReason_String(t *testing.T) {
	tests := []struct {
		name   string
		reason DenialReason
		want   string
	}{
		{"no_capability", DenialReason{Kind: ReasonNoCapability, Tool: "file:read"}, `No capability defined for tool "file:read"`},
		{"scope_paths", DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldPaths, Value: "/etc", Tool: "file:read"}, `Path "/etc" is outside allowed scope: file:read`},
		{"scope_binaries", DenialReason{Kind: ReasonScopeViolation, Field: ScopeFieldBinaries, Value: "curl", Tool: "command:run"}, `Binary "curl" is not in allowed list: command:run`},
		{"forbidden_path", DenialReason{Kind: ReasonForbiddenMatch, ForbiddenField: ForbiddenFieldPath, Value: "/data/.env", Pattern: "**/secret*"}, `Path "/data/.env" matches forbidden pattern "**/secret*"`},
		{"forbidden_command", DenialReason{Kind: ReasonForbiddenMatch, ForbiddenField: ForbiddenFieldCommand, Value: "rm -rf /", Pattern: "rm -rf"}, `Command "rm -rf /" matches forbidden pattern "rm -rf"`},
		{"forbidden_url", DenialReason{Kind: ReasonForbiddenMatch, ForbiddenField: ForbiddenFieldURL, Value: "http://evil.example", Pattern: "evil.*"}, `URL "http://evil.example" matches forbidden pattern "evil.*"`},
		{"invalid_url", DenialReason{Kind: ReasonInvalidURL}, "Invalid URL"},
		{"budget", DenialReason{Kind: ReasonBudget, Value: "max_retries reached"}, "Budget exceeded: max_retries reached"},
		{"denial_limit", DenialReason{Kind: ReasonDenialLimit}, "Session denial limit reached"},
		{"unknown", DenialReason{Kind: ReasonKind("bogus")}, "denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reason.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromMap_KeyPrecedence(t *testing.T) {
	input := FromMap("file:write", map[string]any{
		"path":    "/tmp/a.txt",
		"file":    "/tmp/ignored.txt",
		"binary":  "ls",
		"command": "ls -la",
		"url":     "https://example.com",
		"method":  "get",
		"repo":    "github.com/example/repo",
	})

	if input.Path != "/tmp/a.txt" {
		t.Errorf("Path = %q, want path key to win over file", input.Path)
	}
	if input.Binary != "ls" {
		t.Errorf("Binary = %q, want %q", input.Binary, "ls")
	}
	if input.Method != "get" {
		t.Errorf("Method = %q, want raw (uppercasing happens in scope check)", input.Method)
	}
}

func TestFromMap_FallbackKeys(t *testing.T) {
	input := FromMap("file:write", map[string]any{
		"file":       "/tmp/b.txt",
		"target":     "/tmp/ignored.txt",
		"endpoint":   "https://example.com/ep",
		"repository": "github.com/example/other",
	})

	if input.Path != "/tmp/b.txt" {
		t.Errorf("Path = %q, want fallback to file key", input.Path)
	}
	if input.URL != "https://example.com/ep" {
		t.Errorf("URL = %q, want fallback to endpoint key", input.URL)
	}
	if input.Repo != "github.com/example/other" {
		t.Errorf("Repo = %q, want fallback to repository key", input.Repo)
	}
}

func TestFromMap_EmptyWhenMissing(t *testing.T) {
	input := FromMap("file:read", map[string]any{})
	if input != (ActionInput{}) {
		t.Errorf("FromMap with no args = %+v, want zero value", input)
	}
}

func TestValidate_RejectsInvalidOneofGate(t *testing.T) {
	pol := &Policy{
		Version:      "1.0",
		Name:         "bad-gate",
		Capabilities: []Capability{{Tool: "file:read"}},
		Gates:        []Gate{{Action: "file:read", Approval: "carrier-pigeon"}},
	}
	if err := Validate(pol); err == nil {
		t.Fatal("Validate() expected error for invalid approval value, got nil")
	}
}

func TestValidate_AcceptsMinimalPolicy(t *testing.T) {
	pol := &Policy{
		Version:      "1.0",
		Name:         "minimal",
		Capabilities: []Capability{{Tool: "file:read"}},
	}
	if err := Validate(pol); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Issues: []ValidationIssue{
		{Path: "Name", Message: "is required"},
		{Path: "Capabilities", Message: "must have at least 1"},
	}}
	want := "Name: is required; Capabilities: must have at least 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

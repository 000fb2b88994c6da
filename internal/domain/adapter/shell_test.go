package adapter

import (
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

func TestCommandRunAdapter_ExecuteCapturesOutputAndExitCode(t *testing.T) {
	a := CommandRunAdapter{}
	ctx := &Context{Budget: &session.Budget{}}
	res, err := a.Execute(map[string]any{"command": "echo hi"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if strings.TrimSpace(res.Output) != "hi" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if len(res.Artifacts) != 2 || res.Artifacts[0].Value != "0" {
		t.Fatalf("expected exit_code=0 artifact, got %+v", res.Artifacts)
	}
}

func TestCommandRunAdapter_NonZeroExit(t *testing.T) {
	a := CommandRunAdapter{}
	res, err := a.Execute(map[string]any{"command": "exit 3"}, &Context{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatalf("expected failure for non-zero exit")
	}
	if res.Artifacts[0].Value != "3" {
		t.Fatalf("expected exit_code=3, got %+v", res.Artifacts)
	}
}

func TestCommandRunAdapter_RollbackAlwaysFails(t *testing.T) {
	a := CommandRunAdapter{}
	rb, err := a.Rollback(map[string]any{"command": "echo hi"}, &Context{})
	if err != nil {
		t.Fatal(err)
	}
	if rb.Success {
		t.Fatalf("expected rollback failure for a general shell command")
	}
}

func TestCommandRunAdapter_ValidateMissingCommand(t *testing.T) {
	a := CommandRunAdapter{}
	v := a.Validate(map[string]any{}, allowAllPolicy("command:run"))
	if v.Verdict != policy.VerdictDeny {
		t.Fatalf("expected deny for missing command, got %v", v.Verdict)
	}
}

package compensation

import (
	"context"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/adapter"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	mgr := session.NewManager(t.TempDir(), gatemgr.New(policy.RiskMedium))
	sess, err := mgr.CreateSession(&policy.Policy{Name: "test"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestBuildPlan_ReverseOrderAndTags(t *testing.T) {
	sess := newTestSession(t)
	sess.Actions = []session.SessionAction{
		{ID: "a1", Index: 0, Request: policy.ActionRequest{Tool: "file:write"}, RawArgs: map[string]any{"path": "/tmp/a"}, Result: &session.ActionResult{Success: true}},
		{ID: "a2", Index: 1, Request: policy.ActionRequest{Tool: "dns:resolve"}, RawArgs: map[string]any{"domain": "example.com"}, Result: &session.ActionResult{Success: true}},
		{ID: "a3", Index: 2, Request: policy.ActionRequest{Tool: "nope:tool"}, RawArgs: map[string]any{}, Result: &session.ActionResult{Success: false}},
	}

	registry := adapter.DefaultRegistry()
	plan := BuildPlan(sess, registry)

	if len(plan) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(plan))
	}
	if plan[0].ActionID != "a3" || plan[1].ActionID != "a2" || plan[2].ActionID != "a1" {
		t.Fatalf("expected reverse order, got %+v", plan)
	}
	if plan[0].WasExecuted {
		t.Fatalf("a3 failed execution, should not be tagged wasExecuted")
	}
	if plan[0].CanRollback {
		t.Fatalf("nope:tool has no adapter, should not be tagged canRollback")
	}
	if !plan[1].CanRollback || !plan[1].WasExecuted {
		t.Fatalf("a2 (dns:resolve, succeeded) should be executed+rollback-capable: %+v", plan[1])
	}
}

func TestExecute_SkipsUnexecutedAndRecordsFailureForMissingAdapter(t *testing.T) {
	sess := newTestSession(t)
	sess.Actions = []session.SessionAction{
		{ID: "a1", Index: 0, Request: policy.ActionRequest{Tool: "nope:tool"}, RawArgs: map[string]any{}, Result: &session.ActionResult{Success: true}},
		{ID: "a2", Index: 1, Request: policy.ActionRequest{Tool: "dns:resolve"}, RawArgs: map[string]any{"domain": "x"}, Result: &session.ActionResult{Success: false}},
	}

	registry := adapter.DefaultRegistry()
	plan := BuildPlan(sess, registry)
	execCtx := &adapter.Context{Context: context.Background(), RollbackData: make(map[string]any)}

	outcomes := Execute(context.Background(), plan, execCtx, registry, nil)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	var sawSkipped, sawMissingAdapter bool
	for _, o := range outcomes {
		if o.Step.ActionID == "a2" && o.Skipped {
			sawSkipped = true
		}
		if o.Step.ActionID == "a1" && !o.Skipped && !o.Success && o.Error != "" {
			sawMissingAdapter = true
		}
	}
	if !sawSkipped {
		t.Fatalf("expected a2 (not executed) to be skipped: %+v", outcomes)
	}
	if !sawMissingAdapter {
		t.Fatalf("expected a1 (no adapter) to record a failure: %+v", outcomes)
	}
}

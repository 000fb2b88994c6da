package gatemgr

import (
	"context"
	"errors"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

func TestRequestApproval_AutoApprovalResolvesImmediately(t *testing.T) {
	m := New("")
	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalAuto},
	})
	if resp.Decision != DecisionApproved || resp.RespondedBy != "auto" {
		t.Errorf("RequestApproval() = %+v, want auto-approved", resp)
	}
	if m.Pending("s1") {
		t.Error("Pending(s1) = true, want false after auto approval")
	}
}

func TestRequestApproval_RiskThresholdAutoApproves(t *testing.T) {
	m := New(policy.RiskMedium)
	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman, RiskLevel: policy.RiskLow},
	})
	if resp.Decision != DecisionApproved || resp.RespondedBy != "risk-threshold" {
		t.Errorf("RequestApproval() = %+v, want risk-threshold auto-approved", resp)
	}
}

func TestRequestApproval_AboveThresholdStaysPending(t *testing.T) {
	m := New(policy.RiskLow)
	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman, RiskLevel: policy.RiskHigh},
	})
	if resp.Decision != DecisionPending {
		t.Errorf("RequestApproval() = %+v, want pending", resp)
	}
	if !m.Pending("s1") {
		t.Error("Pending(s1) = false, want true")
	}
}

func TestRequestApproval_NoThresholdConfiguredStaysPending(t *testing.T) {
	m := New("")
	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman, RiskLevel: policy.RiskLow},
	})
	if resp.Decision != DecisionPending {
		t.Errorf("RequestApproval() = %+v, want pending (threshold disabled)", resp)
	}
}

func TestRequestApproval_HandlerDecidesSynchronously(t *testing.T) {
	m := New("")
	m.RegisterHandler("webhook", func(ctx context.Context, req Request) (Response, bool) {
		return Response{Decision: DecisionRejected, RespondedBy: "webhook", Reason: "policy violation"}, true
	})

	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalWebhook},
	})
	if resp.Decision != DecisionRejected || resp.RespondedBy != "webhook" {
		t.Errorf("RequestApproval() = %+v, want webhook-rejected", resp)
	}
	if m.Pending("s1") {
		t.Error("Pending(s1) = true, want false after synchronous handler decision")
	}
}

func TestRequestApproval_HandlerDeclinesLeavesPending(t *testing.T) {
	m := New("")
	m.RegisterHandler("webhook", func(ctx context.Context, req Request) (Response, bool) {
		return Response{}, false
	})

	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalWebhook},
	})
	if resp.Decision != DecisionPending {
		t.Errorf("RequestApproval() = %+v, want pending", resp)
	}
	if !m.Pending("s1") {
		t.Error("Pending(s1) = false, want true")
	}
}

func TestResolve_ApprovesPendingGate(t *testing.T) {
	m := New("")
	m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman},
	})

	resp, err := m.Resolve("s1", "a1", DecisionApproved, "alice", "looks fine")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if resp.Decision != DecisionApproved || resp.RespondedBy != "alice" {
		t.Errorf("Resolve() = %+v", resp)
	}
	if m.Pending("s1") {
		t.Error("Pending(s1) = true, want false after Resolve")
	}
}

func TestResolve_UnknownGateErrors(t *testing.T) {
	m := New("")
	_, err := m.Resolve("s1", "nonexistent", DecisionApproved, "alice", "")
	if !errors.Is(err, ErrUnknownGate) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownGate", err)
	}
}

func TestResolve_AlreadyResolvedGateErrors(t *testing.T) {
	m := New("")
	m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman},
	})
	if _, err := m.Resolve("s1", "a1", DecisionApproved, "alice", ""); err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}
	if _, err := m.Resolve("s1", "a1", DecisionApproved, "bob", ""); !errors.Is(err, ErrUnknownGate) {
		t.Errorf("second Resolve() error = %v, want ErrUnknownGate (already consumed)", err)
	}
}

func TestPending_FalseWhenNoGatesForSession(t *testing.T) {
	m := New("")
	if m.Pending("nonexistent-session") {
		t.Error("Pending() = true for session with no gates, want false")
	}
}

func TestClearSession_EvictsAllEntriesForSession(t *testing.T) {
	m := New("")
	m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman},
	})
	m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a2",
		Gate: policy.Gate{Approval: policy.ApprovalAuto},
	})

	m.ClearSession("s1")

	if m.Pending("s1") {
		t.Error("Pending(s1) = true after ClearSession, want false")
	}
	if _, err := m.Resolve("s1", "a1", DecisionApproved, "alice", ""); !errors.Is(err, ErrUnknownGate) {
		t.Errorf("Resolve() after ClearSession error = %v, want ErrUnknownGate", err)
	}
}

func TestClearSession_LeavesOtherSessionsIntact(t *testing.T) {
	m := New("")
	m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman},
	})
	m.RequestApproval(context.Background(), Request{
		SessionID: "s2", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalHuman},
	})

	m.ClearSession("s1")

	if !m.Pending("s2") {
		t.Error("Pending(s2) = false after clearing s1, want true")
	}
}

func TestRegisterHandler_ReplacesExistingHandler(t *testing.T) {
	m := New("")
	m.RegisterHandler("webhook", func(ctx context.Context, req Request) (Response, bool) {
		return Response{Decision: DecisionApproved, RespondedBy: "first"}, true
	})
	m.RegisterHandler("webhook", func(ctx context.Context, req Request) (Response, bool) {
		return Response{Decision: DecisionApproved, RespondedBy: "second"}, true
	})

	resp := m.RequestApproval(context.Background(), Request{
		SessionID: "s1", ActionID: "a1",
		Gate: policy.Gate{Approval: policy.ApprovalWebhook},
	})
	if resp.RespondedBy != "second" {
		t.Errorf("RespondedBy = %q, want %q (replaced handler)", resp.RespondedBy, "second")
	}
}

// Package gatemgr holds and resolves approval gate requests: the pending
// map that bridges a session's paused evaluation to an eventual human,
// webhook, or auto decision.
package gatemgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// ErrUnknownGate is returned by Resolve for a (sessionID, actionID) pair
// with no pending request.
var ErrUnknownGate = errors.New("gatemgr: unknown gate")

// Request is a pending approval checkpoint.
type Request struct {
	SessionID string
	ActionID  string
	Tool      string
	Gate      policy.Gate
	CreatedAt time.Time
}

// Decision is the outcome a handler or external caller reports.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionPending  Decision = "pending"
)

// Response is a resolved gate's outcome.
type Response struct {
	Decision    Decision
	RespondedBy string
	Reason      string
	ResolvedAt  time.Time
}

// Handler is a registered approval-mode handler (e.g. "webhook", "human").
// RequestApproval calls it synchronously: returning true resolves the gate
// with the returned Response; returning false leaves the gate pending until
// a later Resolve.
type Handler func(ctx context.Context, req Request) (Response, bool)

func gateKey(sessionID, actionID string) string {
	return sessionID + ":" + actionID
}

// shardCount fixes the pending/resolved map sharding width. A session
// evaluates and external resolvers (HTTP façade, MCP proxy virtual tool)
// contend on this map from separate goroutines; sharding by xxhash of the
// (sessionId, actionId) key keeps that contention off a single mutex the
// way the teacher's tool-cache shards its lookup table.
const shardCount = 16

type gateShard struct {
	mu       sync.Mutex
	pending  map[string]Request
	resolved map[string]Response
}

func shardFor(shards []*gateShard, k string) *gateShard {
	h := xxhash.Sum64String(k)
	return shards[h%uint64(len(shards))]
}

// Manager holds pending and resolved gate requests and the registered
// approval-mode handlers.
type Manager struct {
	shards     []*gateShard
	handlersMu sync.Mutex
	handlers   map[string]Handler
	autoThresh policy.RiskLevel
}

// New constructs a Manager. autoApproveThreshold is the risk-threshold
// handler's ceiling: a gate with risk_level at or below it is
// auto-approved regardless of approval mode (spec §4.4's built-in
// handler); pass "" to disable it.
func New(autoApproveThreshold policy.RiskLevel) *Manager {
	shards := make([]*gateShard, shardCount)
	for i := range shards {
		shards[i] = &gateShard{
			pending:  make(map[string]Request),
			resolved: make(map[string]Response),
		}
	}
	return &Manager{
		shards:     shards,
		handlers:   make(map[string]Handler),
		autoThresh: autoApproveThreshold,
	}
}

// RegisterHandler binds a Handler to an approval mode string ("webhook",
// "human", …). Re-registering a mode replaces its handler.
func (m *Manager) RegisterHandler(mode string, h Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[mode] = h
}

// RequestApproval evaluates req.Gate and either resolves immediately
// (auto approval, risk-threshold auto-approval, or a handler that decides
// synchronously) or leaves the gate pending for an external Resolve call.
func (m *Manager) RequestApproval(ctx context.Context, req Request) Response {
	if req.Gate.Approval == policy.ApprovalAuto {
		return m.resolveNow(req, Response{Decision: DecisionApproved, RespondedBy: "auto", ResolvedAt: time.Now().UTC()})
	}

	if m.autoThresh != "" && req.Gate.RiskLevel != "" && req.Gate.RiskLevel.AtOrBelow(m.autoThresh) {
		return m.resolveNow(req, Response{Decision: DecisionApproved, RespondedBy: "risk-threshold", ResolvedAt: time.Now().UTC()})
	}

	m.handlersMu.Lock()
	handler, ok := m.handlers[string(req.Gate.Approval)]
	m.handlersMu.Unlock()

	if !ok {
		m.markPending(req)
		return Response{Decision: DecisionPending}
	}

	resp, handled := handler(ctx, req)
	if !handled {
		m.markPending(req)
		return Response{Decision: DecisionPending}
	}
	return m.resolveNow(req, resp)
}

func (m *Manager) markPending(req Request) {
	k := gateKey(req.SessionID, req.ActionID)
	s := shardFor(m.shards, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[k] = req
}

func (m *Manager) resolveNow(req Request, resp Response) Response {
	k := gateKey(req.SessionID, req.ActionID)
	s := shardFor(m.shards, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, k)
	s.resolved[k] = resp
	return resp
}

// Resolve records an external decision for a pending (sessionID, actionID)
// gate. Resolving an unknown pair is an error, per spec §5.
func (m *Manager) Resolve(sessionID, actionID string, decision Decision, respondedBy, reason string) (Response, error) {
	k := gateKey(sessionID, actionID)
	s := shardFor(m.shards, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[k]; !ok {
		return Response{}, fmt.Errorf("%w: %s/%s", ErrUnknownGate, sessionID, actionID)
	}
	resp := Response{Decision: decision, RespondedBy: respondedBy, Reason: reason, ResolvedAt: time.Now().UTC()}
	delete(s.pending, k)
	s.resolved[k] = resp
	return resp, nil
}

// Pending reports whether any gate for sessionID is still unresolved.
func (m *Manager) Pending(sessionID string) bool {
	prefix := sessionID + ":"
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.pending {
			if strings.HasPrefix(k, prefix) {
				s.mu.Unlock()
				return true
			}
		}
		s.mu.Unlock()
	}
	return false
}

// ClearSession evicts every pending and resolved entry for sessionID.
func (m *Manager) ClearSession(sessionID string) {
	prefix := sessionID + ":"
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.pending {
			if strings.HasPrefix(k, prefix) {
				delete(s.pending, k)
			}
		}
		for k := range s.resolved {
			if strings.HasPrefix(k, prefix) {
				delete(s.resolved, k)
			}
		}
		s.mu.Unlock()
	}
}

package evolution

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// Decision is the human (or webhook) response to a pending suggestion.
type Decision string

const (
	DecisionAddToPolicy Decision = "add-to-policy"
	DecisionAllowOnce   Decision = "allow-once"
	DecisionDeny        Decision = "deny"
)

// DefaultPromptTimeout is the out-of-band handler's default race timeout.
const DefaultPromptTimeout = 30 * time.Second

// Pending binds a suggestion to the denial that produced it, per spec
// §4.5's in-band delivery mode: "{suggestion, action, sessionId, createdAt}".
type Pending struct {
	ID         string
	Suggestion *Suggestion
	Action     policy.ActionRequest
	Input      policy.ActionInput
	SessionID  string
	CreatedAt  time.Time
}

// GenerateID returns a 12-char hex suggestion id, the same shape as the
// teacher's session id generator truncated to the width this spec wants.
func GenerateID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating suggestion id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ErrUnknownSuggestion is returned by Registry.Take for an id with no
// pending entry.
var ErrUnknownSuggestion = errors.New("unknown suggestion id")

// Registry holds pending in-band suggestions keyed by id, guarded against
// concurrent access from the evaluating session and the virtual
// policy_evolution_approve tool call.
type Registry struct {
	mu      sync.Mutex
	pending map[string]Pending
}

// NewRegistry constructs an empty pending-suggestion registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]Pending)}
}

// Put stores p, generating its id if unset, and returns the final id.
func (r *Registry) Put(p Pending) (string, error) {
	if p.ID == "" {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		p.ID = id
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.ID] = p
	return p.ID, nil
}

// Take removes and returns the pending suggestion for id.
func (r *Registry) Take(id string) (Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return Pending{}, ErrUnknownSuggestion
	}
	delete(r.pending, id)
	return p, nil
}

// ClearSession drops every pending suggestion belonging to sessionID, the
// evolution-side analogue of Gate Manager's clearSession.
func (r *Registry) ClearSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		if p.SessionID == sessionID {
			delete(r.pending, id)
		}
	}
}

// Resolve applies decision to pol given suggestion/input, returning the
// new policy to install (nil for "deny", meaning no change) and whether it
// must also be persisted to disk.
func Resolve(pol *policy.Policy, s *Suggestion, input policy.ActionInput, decision Decision) (newPolicy *policy.Policy, persist bool, err error) {
	switch decision {
	case DecisionDeny:
		return nil, false, nil
	case DecisionAllowOnce:
		np, err := Apply(pol, s, input)
		if err != nil {
			return nil, false, err
		}
		return np, false, nil
	case DecisionAddToPolicy:
		np, err := Apply(pol, s, input)
		if err != nil {
			return nil, false, err
		}
		return np, true, nil
	default:
		return nil, false, fmt.Errorf("unknown decision %q", decision)
	}
}

// PromptHandler is the out-of-band decision callback: given the pending
// suggestion, it returns a Decision or an error. Callers race it against
// a timeout via Prompt.
type PromptHandler func(ctx context.Context, p Pending) (Decision, error)

// Prompt races handler against timeout (DefaultPromptTimeout if zero).
// Timeout, handler error, or a nil handler degrade to DecisionDeny, per
// spec §4.5/§7(e): evolution handler failures degrade to deny, never
// propagate as a process error.
func Prompt(ctx context.Context, handler PromptHandler, p Pending, timeout time.Duration) Decision {
	if handler == nil {
		return DecisionDeny
	}
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan Decision, 1)
	go func() {
		d, err := handler(ctx, p)
		if err != nil {
			result <- DecisionDeny
			return
		}
		result <- d
	}()

	select {
	case d := <-result:
		return d
	case <-ctx.Done():
		return DecisionDeny
	}
}

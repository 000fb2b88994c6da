// Package mcpproxy implements the gateway's MCP Proxy: a virtual MCP
// server that multiplexes one or more upstream backends behind a single
// session, evaluating every tools/call against that session's policy
// before delegating to the backend that actually owns the tool.
package mcpproxy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/mcpbackend"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/evolution"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// EvolutionApproveTool is the virtual tool the proxy registers when the
// Evolution Subsystem's in-band delivery mode is enabled, per spec §4.6/
// §4.5: it lets the calling agent resolve a pending suggestion without a
// side channel.
const EvolutionApproveTool = "policy_evolution_approve"

// Backend names one upstream MCP server the proxy should spawn and
// multiplex behind its virtual server.
type Backend struct {
	Name    string
	Command string
	Args    []string
}

// route is where one tool name in the proxy's merged catalog actually
// lives.
type route struct {
	backend     *mcpbackend.Client
	backendName string
	tool        mcpbackend.Tool
}

// Proxy is the MCP Proxy: a virtual server fronting N backends behind one
// policy-governed session.
type Proxy struct {
	backends  []*mcpbackend.Client
	routes    map[string]route
	toolOrder []string

	sessions  *session.Manager
	sessionID string

	evolution        *evolution.Registry
	evolutionEnabled bool
	promptTimeout    time.Duration

	policyPath string // where to persist an add-to-policy decision; "" disables persistence

	remediation *cel.Evaluator // nil if the CEL environment failed to build; remediation matching is then skipped

	log *slog.Logger
}

// Config collects what New needs to stand up a Proxy.
type Config struct {
	Backends         []Backend
	Policy           *policy.Policy
	PolicyPath       string
	Sessions         *session.Manager
	EvolutionEnabled bool
	PromptTimeout    time.Duration
	Logger           *slog.Logger
}

// New starts every configured backend, negotiates MCP's initialize
// handshake with each, merges their tool catalogs (first backend wins a
// name collision; later collisions are logged and shadowed, per the
// proxy's first-wins tool-routing rule), and creates the single session
// every call through this Proxy shares.
func New(ctx context.Context, cfg Config) (*Proxy, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Proxy{
		routes:           make(map[string]route),
		sessions:         cfg.Sessions,
		evolution:        evolution.NewRegistry(),
		evolutionEnabled: cfg.EvolutionEnabled,
		promptTimeout:    cfg.PromptTimeout,
		policyPath:       cfg.PolicyPath,
		log:              logger,
	}
	if p.promptTimeout <= 0 {
		p.promptTimeout = evolution.DefaultPromptTimeout
	}

	if evaluator, err := cel.NewEvaluator(); err != nil {
		logger.Warn("mcpproxy: remediation CEL environment unavailable, remediation rules will be skipped", "error", err)
	} else {
		p.remediation = evaluator
	}

	for _, b := range cfg.Backends {
		client := mcpbackend.NewStdioClient(b.Name, b.Command, b.Args)
		if err := client.Start(ctx); err != nil {
			p.closeBackends()
			return nil, fmt.Errorf("mcpproxy: starting backend %q: %w", b.Name, err)
		}
		if err := client.Initialize(ctx); err != nil {
			p.closeBackends()
			return nil, fmt.Errorf("mcpproxy: initializing backend %q: %w", b.Name, err)
		}
		tools, err := client.ListTools(ctx)
		if err != nil {
			p.closeBackends()
			return nil, fmt.Errorf("mcpproxy: listing tools for backend %q: %w", b.Name, err)
		}
		p.backends = append(p.backends, client)
		for _, tool := range tools {
			if _, exists := p.routes[tool.Name]; exists {
				logger.Warn("mcpproxy: tool name collision, first backend wins",
					"tool", tool.Name, "shadowed_backend", b.Name)
				continue
			}
			p.routes[tool.Name] = route{backend: client, backendName: b.Name, tool: tool}
			p.toolOrder = append(p.toolOrder, tool.Name)
		}
	}

	sess, err := p.sessions.CreateSession(cfg.Policy, map[string]string{"source": "mcp-proxy"})
	if err != nil {
		p.closeBackends()
		return nil, fmt.Errorf("mcpproxy: creating session: %w", err)
	}
	p.sessionID = sess.ID

	return p, nil
}

func (p *Proxy) closeBackends() {
	for _, b := range p.backends {
		_ = b.Close()
	}
}

// SessionID returns the single session every call through this Proxy is
// evaluated against.
func (p *Proxy) SessionID() string {
	return p.sessionID
}

// ListedTool is one entry in the proxy's merged, client-facing catalog.
type ListedTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ListTools returns the proxy's merged tool catalog: every backend tool,
// description-prefixed with its owning backend name so a human operator
// can tell which upstream will actually run it, plus the virtual
// policy_evolution_approve tool when evolution delivery is in-band.
func (p *Proxy) ListTools() []ListedTool {
	names := append([]string(nil), p.toolOrder...)
	sort.Strings(names)

	out := make([]ListedTool, 0, len(names)+1)
	for _, name := range names {
		r := p.routes[name]
		out = append(out, ListedTool{
			Name:        r.tool.Name,
			Description: fmt.Sprintf("[%s] %s", r.backendName, r.tool.Description),
			InputSchema: r.tool.InputSchema,
		})
	}
	if p.evolutionEnabled {
		out = append(out, ListedTool{
			Name:        EvolutionApproveTool,
			Description: "Resolve a pending policy evolution suggestion raised by a prior denial.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"suggestion_id": map[string]any{"type": "string"},
					"decision":      map[string]any{"type": "string", "enum": []string{"add-to-policy", "allow-once", "deny"}},
				},
				"required": []string{"suggestion_id", "decision"},
			},
		})
	}
	return out
}

func textResult(text string, isError bool) *mcpbackend.CallToolResult {
	return &mcpbackend.CallToolResult{
		Content: []mcpbackend.ContentItem{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// CallTool evaluates name/args against the proxy's session policy and,
// on allow, delegates to the backend that owns the tool. Per spec §4.6:
//  1. policy_evolution_approve is handled entirely in-process.
//  2. An unrouted tool name is an error, not a denial (the client asked
//     for something no backend offers).
//  3. Everything else goes through session.Manager.Evaluate before any
//     backend is touched.
func (p *Proxy) CallTool(ctx context.Context, name string, args map[string]any) (*mcpbackend.CallToolResult, error) {
	if name == EvolutionApproveTool {
		return p.approveEvolution(args)
	}

	r, ok := p.routes[name]
	if !ok {
		return nil, fmt.Errorf("mcpproxy: unknown tool %q", name)
	}

	req := policy.ActionRequest{Tool: name, Input: policy.FromMap(name, args)}
	outcome, err := p.sessions.Evaluate(ctx, p.sessionID, req, args)
	if err != nil {
		return nil, fmt.Errorf("mcpproxy: evaluating %q: %w", name, err)
	}

	switch outcome.Decision {
	case policy.VerdictDeny:
		return textResult(p.denialMessage(req, outcome), true), nil
	case policy.VerdictGate:
		return textResult(fmt.Sprintf(
			"action %s is awaiting approval (actionId=%s); retry tools/call once it resolves",
			name, outcome.ActionID), true), nil
	case policy.VerdictAllow:
		return p.callBackend(ctx, r, name, args, outcome.ActionID)
	default:
		return nil, fmt.Errorf("mcpproxy: unknown verdict %q", outcome.Decision)
	}
}

func (p *Proxy) callBackend(ctx context.Context, r route, name string, args map[string]any, actionID string) (*mcpbackend.CallToolResult, error) {
	start := time.Now()
	result, callErr := r.backend.CallTool(ctx, name, args)
	duration := time.Since(start).Milliseconds()

	actionResult := session.ActionResult{DurationMs: duration}
	if callErr != nil {
		actionResult.Success = false
		actionResult.Error = callErr.Error()
	} else {
		actionResult.Success = !result.IsError
		actionResult.Output = result.Text()
		if result.IsError {
			actionResult.Error = result.Text()
		}
	}

	if err := p.sessions.RecordResult(p.sessionID, actionID, actionResult); err != nil {
		p.log.Warn("mcpproxy: recording action result", "actionId", actionID, "error", err)
	}

	if callErr != nil {
		return textResult(fmt.Sprintf("backend %q call failed: %v", r.backendName, callErr), true), nil
	}
	return result, nil
}

func (p *Proxy) denialMessage(req policy.ActionRequest, outcome session.EvaluateOutcome) string {
	reasons := make([]string, len(outcome.Reasons))
	for i, r := range outcome.Reasons {
		reasons[i] = r.String()
	}

	pol, err := p.sessions.Policy(p.sessionID)
	if err != nil {
		return fmt.Sprintf("denied: %v", reasons)
	}

	base := fmt.Sprintf("denied: %v", reasons)
	if hint := p.remediationHint(req, outcome, pol); hint != "" {
		base += " (" + hint + ")"
	}

	if !p.evolutionEnabled {
		return base
	}

	suggestion := evolution.Suggest(req, outcome.Reasons, pol)
	if suggestion == nil {
		return base
	}

	id, err := p.evolution.Put(evolution.Pending{
		Suggestion: suggestion,
		Action:     req,
		Input:      req.Input,
		SessionID:  p.sessionID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return base
	}
	return fmt.Sprintf(
		"%s (suggestion %s available: %s %s; call %s with {\"suggestion_id\":%q,\"decision\":\"add-to-policy\"|\"allow-once\"|\"deny\"} to resolve)",
		base, id, suggestion.Kind, suggestion.Tool, EvolutionApproveTool, id)
}

// remediationHint evaluates pol's remediation rules (if any) against the
// denial and returns the first matching rule's Explain() rendering, or ""
// if remediation is unconfigured, unavailable, or no rule matched.
func (p *Proxy) remediationHint(req policy.ActionRequest, outcome session.EvaluateOutcome, pol *policy.Policy) string {
	if p.remediation == nil || pol.Remediation == nil || len(pol.Remediation.Rules) == 0 || len(outcome.Reasons) == 0 {
		return ""
	}

	evalCtx := cel.RemediationContext{
		Tool:      req.Tool,
		Input:     req.Input,
		Reason:    outcome.Reasons[0],
		SessionID: p.sessionID,
	}
	if outcome.Gate != nil {
		evalCtx.RiskLevel = outcome.Gate.RiskLevel
	}

	rule, err := p.remediation.Match(pol.Remediation.Rules, evalCtx)
	if err != nil || rule == nil {
		return ""
	}
	return cel.Explain(rule, evalCtx)
}

func (p *Proxy) approveEvolution(args map[string]any) (*mcpbackend.CallToolResult, error) {
	suggestionID, _ := args["suggestion_id"].(string)
	decisionStr, _ := args["decision"].(string)
	if suggestionID == "" || decisionStr == "" {
		return textResult("suggestion_id and decision are required", true), nil
	}

	pending, err := p.evolution.Take(suggestionID)
	if err != nil {
		return textResult(err.Error(), true), nil
	}

	pol, err := p.sessions.Policy(p.sessionID)
	if err != nil {
		return textResult(err.Error(), true), nil
	}

	newPolicy, persist, err := evolution.Resolve(pol, pending.Suggestion, pending.Input, evolution.Decision(decisionStr))
	if err != nil {
		return textResult(err.Error(), true), nil
	}
	if newPolicy == nil {
		return textResult(fmt.Sprintf("suggestion %s denied", suggestionID), false), nil
	}

	if err := p.sessions.EvolvePolicy(p.sessionID, newPolicy, suggestionID); err != nil {
		return textResult(err.Error(), true), nil
	}

	if persist && p.policyPath != "" {
		if err := policy.WriteToFile(p.policyPath, newPolicy); err != nil {
			p.log.Warn("mcpproxy: persisting evolved policy", "path", p.policyPath, "error", err)
			return textResult(fmt.Sprintf("policy updated in-memory but failed to persist: %v", err), true), nil
		}
	}

	return textResult(fmt.Sprintf("suggestion %s applied (persisted=%v)", suggestionID, persist), false), nil
}

// Close terminates the proxy's session and every backend connection.
func (p *Proxy) Close(reason string) error {
	var errs []error
	if p.sessions != nil && p.sessionID != "" {
		if _, err := p.sessions.Terminate(p.sessionID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range p.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("mcpproxy: close: %v", errs)
}

package adapter

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// DNSResolveAdapter implements "dns:resolve": look up a domain's
// addresses. It never mutates state, so Rollback is always a no-op.
type DNSResolveAdapter struct {
	// LookupHost lets tests substitute a fake resolver; nil uses
	// net.LookupHost.
	LookupHost func(host string) ([]string, error)
}

func (DNSResolveAdapter) Name() string        { return "dns:resolve" }
func (DNSResolveAdapter) Description() string { return "Resolve a domain name to IP addresses" }
func (DNSResolveAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"domain": map[string]any{"type": "string"}},
		"required":   []string{"domain"},
	}
}

// Validate treats the domain argument as the canonical URL field so scope
// checks go through the same domains allow-list as http:request.
func (a DNSResolveAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	domain := argString(args, "domain")
	if domain == "" {
		return missingFieldsDeny(a.Name(), "domain")
	}
	return evaluate(a.Name(), policy.ActionInput{URL: "dns://" + domain}, pol)
}

func (a DNSResolveAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	domain := argString(args, "domain")
	if domain == "" {
		return DryRunResult{}, errors.New("dns:resolve: missing domain")
	}
	return DryRunResult{WouldDo: "resolve " + domain}, nil
}

func (a DNSResolveAdapter) lookup() func(string) ([]string, error) {
	if a.LookupHost != nil {
		return a.LookupHost
	}
	return net.LookupHost
}

func (a DNSResolveAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	domain := argString(args, "domain")
	if domain == "" {
		return ExecResult{Success: false, Error: "missing domain"}, nil
	}
	ips, err := a.lookup()(domain)
	dur := now().Sub(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: dur}, nil
	}
	output := strings.Join(ips, ",")
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(output))
	}
	return ExecResult{
		Success:    true,
		Output:     output,
		Artifacts:  []session.Artifact{{Type: "log", Value: fmt.Sprintf("resolved %s to %d address(es)", domain, len(ips))}},
		DurationMs: dur,
	}, nil
}

func (a DNSResolveAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	return RollbackResult{Success: true, Description: "dns:resolve has no observable state to roll back"}, nil
}

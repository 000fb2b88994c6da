package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// DefaultHTTPTimeout bounds http:request's round trip.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPRequestAdapter implements "http:request": issue an outbound HTTP
// call. GET-shaped requests are assumed side-effect-free and therefore not
// rollback-eligible by construction; non-GET requests report rollback
// failure since the gateway has no generic way to reverse an arbitrary
// remote side effect.
type HTTPRequestAdapter struct {
	// Client lets tests substitute a fake transport; nil uses a new
	// http.Client with DefaultHTTPTimeout.
	Client *http.Client
}

func (HTTPRequestAdapter) Name() string        { return "http:request" }
func (HTTPRequestAdapter) Description() string { return "Issue an outbound HTTP request" }
func (HTTPRequestAdapter) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string"},
			"method": map[string]any{"type": "string"},
			"body":   map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}
}

func (a HTTPRequestAdapter) Validate(args map[string]any, pol *policy.Policy) ValidationResult {
	if argString(args, "url") == "" {
		return missingFieldsDeny(a.Name(), "url")
	}
	return evaluateArgs(a.Name(), args, pol)
}

func (a HTTPRequestAdapter) DryRun(args map[string]any, ctx *Context) (DryRunResult, error) {
	url := argString(args, "url")
	if url == "" {
		return DryRunResult{}, errors.New("http:request: missing url")
	}
	method := strings.ToUpper(argString(args, "method"))
	if method == "" {
		method = "GET"
	}
	return DryRunResult{WouldDo: method + " " + url}, nil
}

func (a HTTPRequestAdapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

func (a HTTPRequestAdapter) Execute(args map[string]any, ctx *Context) (ExecResult, error) {
	start := now()
	url := argString(args, "url")
	if url == "" {
		return ExecResult{Success: false, Error: "missing url"}, nil
	}
	method := strings.ToUpper(argString(args, "method"))
	if method == "" {
		method = "GET"
	}
	body := argString(args, "body")

	var parent context.Context = context.Background()
	if ctx != nil && ctx.Context != nil {
		parent = ctx.Context
	}
	req, err := http.NewRequestWithContext(parent, method, url, strings.NewReader(body))
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: now().Sub(start).Milliseconds()}, nil
	}

	resp, err := a.client().Do(req)
	dur := now().Sub(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMs: dur}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if ctx != nil && ctx.Budget != nil {
		ctx.Budget.TotalOutputBytes += int64(len(respBody))
	}

	success := resp.StatusCode < 400
	errMsg := ""
	if !success {
		errMsg = "http status " + resp.Status
	}
	return ExecResult{
		Success:    success,
		Output:     string(respBody),
		Artifacts:  []session.Artifact{{Type: "exit_code", Value: strconv.Itoa(resp.StatusCode)}},
		DurationMs: dur,
		Error:      errMsg,
	}, nil
}

// Rollback reports failure for any method that could have mutated remote
// state; GET is idempotent and considered to have nothing to undo.
func (a HTTPRequestAdapter) Rollback(args map[string]any, ctx *Context) (RollbackResult, error) {
	method := strings.ToUpper(argString(args, "method"))
	if method == "" || method == "GET" || method == "HEAD" {
		return RollbackResult{Success: true, Description: "GET/HEAD requests have no observable state to roll back"}, nil
	}
	return RollbackResult{Success: false, Error: "http:request has no generic rollback for " + method}, nil
}

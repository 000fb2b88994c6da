package mcpproxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/Sentinel-Gate/Sentinelgate/pkg/mcp"
)

// ProtocolVersion is the MCP protocol version the virtual server reports
// back to a connecting client during initialize.
const ProtocolVersion = "2025-06-18"

// ServeStdio runs the proxy's virtual MCP server over in/out: it decodes
// newline-delimited JSON-RPC requests from in, routes initialize/
// tools-list/tools-call, and writes responses to out. It returns when in
// reaches EOF (the client disconnected) or ctx is canceled, and always
// closes the proxy's session and backends before returning.
func ServeStdio(ctx context.Context, p *Proxy, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if err := p.Close("MCP proxy stopped"); err != nil {
			logger.Warn("mcpproxy: closing proxy", "error", err)
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		decoded, err := jsonrpc.DecodeMessage(line)
		if err != nil {
			logger.Warn("mcpproxy: decoding client message", "error", err)
			continue
		}
		req, ok := decoded.(*jsonrpc.Request)
		if !ok {
			continue // a *jsonrpc.Response from the client is not expected on this side
		}

		resp := p.handleRequest(ctx, req, logger)
		if resp == nil {
			continue // notification: no response expected
		}
		wire, err := mcp.EncodeMessage(resp)
		if err != nil {
			logger.Warn("mcpproxy: encoding response", "error", err)
			continue
		}
		if _, err := out.Write(append(wire, '\n')); err != nil {
			return fmt.Errorf("mcpproxy: writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcpproxy: reading client stream: %w", err)
	}
	return nil
}

// handleRequest dispatches one decoded client request. Returns nil for a
// notification (zero-value ID), which must not receive a response.
func (p *Proxy) handleRequest(ctx context.Context, req *jsonrpc.Request, logger *slog.Logger) *jsonrpc.Response {
	isNotification := req.ID == (jsonrpc.ID{})

	var result any
	var rpcErr *jsonrpc.Error

	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "gateway-mcp-proxy", "version": "1.0"},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		result = map[string]any{"tools": p.ListTools()}
	case "tools/call":
		var call struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &call); err != nil {
			rpcErr = &jsonrpc.Error{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)}
			break
		}
		callResult, err := p.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			rpcErr = &jsonrpc.Error{Code: -32000, Message: err.Error()}
			break
		}
		result = callResult
	default:
		rpcErr = &jsonrpc.Error{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	if isNotification {
		if rpcErr != nil {
			logger.Warn("mcpproxy: notification produced an error, dropping", "method", req.Method, "error", rpcErr.Message)
		}
		return nil
	}

	if rpcErr != nil {
		return &jsonrpc.Response{ID: req.ID, Error: rpcErr}
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{Code: -32603, Message: fmt.Sprintf("encoding result: %v", err)}}
	}
	return &jsonrpc.Response{ID: req.ID, Result: resultJSON}
}

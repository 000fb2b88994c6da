// Package mcpbackend connects to one upstream MCP tool server (spawned as
// a subprocess, speaking MCP over its stdio pipes) and exposes the small
// surface the MCP Proxy needs: initialize, list tools, call tool.
package mcpbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/Sentinel-Gate/Sentinelgate/pkg/mcp"
)

// ProtocolVersion is the MCP protocol version this client negotiates.
const ProtocolVersion = "2025-06-18"

// DefaultCallTimeout bounds a single tools/call round-trip when the caller
// supplies no deadline of its own, per spec §5's 30s default for command
// adapters (the backend RPC is the analogous boundary for the proxy).
const DefaultCallTimeout = 30 * time.Second

// ContentItem is one element of a tool result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is a backend's response to tools/call.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text concatenates every text content item, per spec §4.6's "text content
// concatenated" result-recording rule.
func (r CallToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}

// Tool is one tool a backend advertises via tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Client is a stdio-transport connection to one MCP backend subprocess.
type Client struct {
	Name    string
	command string
	args    []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	nextID  int64
	pending map[string]chan *jsonrpc.Response
	readErr error
	done    chan struct{}
}

// NewStdioClient constructs a Client for a backend launched as
// "command args...". name identifies the backend for tool-name-collision
// disambiguation ("[<backendName>] " description prefixing).
func NewStdioClient(name, command string, args []string) *Client {
	return &Client{
		Name:    name,
		command: command,
		args:    args,
		pending: make(map[string]chan *jsonrpc.Response),
		done:    make(chan struct{}),
	}
}

// Start launches the backend subprocess and begins reading its stdout in
// the background. Stderr is forwarded to the proxy's own stderr, per the
// MCP spec's allowance for server-side logging.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return errors.New("mcpbackend: client already started")
	}
	cmd := exec.CommandContext(ctx, c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("mcpbackend: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		c.mu.Unlock()
		return fmt.Errorf("mcpbackend: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		c.mu.Unlock()
		return fmt.Errorf("mcpbackend: starting backend %q: %w", c.Name, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	c.stdout = scanner
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// readLoop decodes newline-delimited JSON-RPC messages from the backend's
// stdout and dispatches responses to their waiting caller. Requests and
// notifications sent by the backend are not expected by this proxy's
// built-in adapters and are discarded.
func (c *Client) readLoop() {
	defer close(c.done)
	for c.stdout.Scan() {
		line := c.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		decoded, err := jsonrpc.DecodeMessage(line)
		if err != nil {
			continue
		}
		resp, ok := decoded.(*jsonrpc.Response)
		if !ok {
			continue
		}
		key := idKey(resp.ID)
		c.mu.Lock()
		ch, ok := c.pending[key]
		delete(c.pending, key)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	if err := c.stdout.Err(); err != nil {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
	}
}

func idKey(id jsonrpc.ID) string {
	return fmt.Sprintf("%#v", id.Raw())
}

// call sends method/params as a request and blocks for the matching
// response or ctx's deadline, whichever comes first.
func (c *Client) call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("mcpbackend: marshaling %s params: %w", method, err)
	}

	n := atomic.AddInt64(&c.nextID, 1)
	id, err := jsonrpc.MakeID(float64(n))
	if err != nil {
		return nil, fmt.Errorf("mcpbackend: allocating request id: %w", err)
	}
	req := &jsonrpc.Request{ID: id, Method: method, Params: paramsJSON}

	wire, err := mcp.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("mcpbackend: encoding %s request: %w", method, err)
	}

	ch := make(chan *jsonrpc.Response, 1)
	key := idKey(id)
	c.mu.Lock()
	c.pending[key] = ch
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return nil, errors.New("mcpbackend: backend not started")
	}

	if _, err := stdin.Write(append(wire, '\n')); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, fmt.Errorf("mcpbackend: writing %s request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			if werr, ok := resp.Error.(*jsonrpc.Error); ok {
				return resp, fmt.Errorf("mcpbackend: %s: %s (code %d)", method, werr.Message, werr.Code)
			}
			return resp, fmt.Errorf("mcpbackend: %s: %w", method, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a one-way JSON-RPC notification (no id, no response
// expected) — used for "notifications/initialized".
func (c *Client) notify(method string, params any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("mcpbackend: marshaling %s params: %w", method, err)
	}
	req := &jsonrpc.Request{Method: method, Params: paramsJSON}
	wire, err := mcp.EncodeMessage(req)
	if err != nil {
		return fmt.Errorf("mcpbackend: encoding %s notification: %w", method, err)
	}
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return errors.New("mcpbackend: backend not started")
	}
	_, err = stdin.Write(append(wire, '\n'))
	return err
}

// Initialize performs the MCP handshake: initialize request followed by
// the initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "gateway-mcp-proxy", "version": "1.0"},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("mcpbackend: initializing backend %q: %w", c.Name, err)
	}
	return c.notify("notifications/initialized", map[string]any{})
}

// ListTools fetches the backend's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcpbackend: decoding tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool on the backend and returns its result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}
	resp, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil && resp == nil {
		return nil, err
	}
	var result CallToolResult
	if resp != nil && resp.Result != nil {
		if jsonErr := json.Unmarshal(resp.Result, &result); jsonErr != nil {
			return nil, fmt.Errorf("mcpbackend: decoding tools/call result: %w", jsonErr)
		}
	}
	return &result, err
}

// Close terminates the backend subprocess and releases its pipes. Best
// effort: a kill error on an already-exited process is not reported.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.stdin != nil {
		if err := c.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
		c.stdin = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	c.cmd = nil
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

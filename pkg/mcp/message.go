// Package mcp provides MCP message types and JSON-RPC codec utilities for
// the gateway's proxy.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the proxy.
type Direction int

const (
	// ClientToServer indicates a message flowing from client to the proxy's
	// virtual MCP server.
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from the virtual server
	// back to the client.
	ServerToClient
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with proxy metadata. It stores
// both the raw bytes (for efficient passthrough and ledger recording) and
// the decoded message (for policy inspection).
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Direction indicates whether this message is flowing from client to
	// the virtual server or back.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message. May be nil if parsing
	// failed but passthrough is still desired. The concrete type is either
	// *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the proxy.
	Timestamp time.Time

	// ParsedParams contains the parsed params from a JSON-RPC request.
	// Set by ParseParams() for reuse across callers. Nil if not a request
	// or parsing failed.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string
// otherwise.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request: the primary
// method for identifying tool invocations that need policy evaluation.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
// Returns nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
// Returns nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores them in ParsedParams.
// Safe to call multiple times (no-op if already parsed). Returns the
// parsed params, or nil if not a request or parsing fails.
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// RawID extracts the request ID from the raw message bytes as a
// json.RawMessage. This is needed because the SDK's jsonrpc.ID type
// doesn't marshal correctly through interface{}, so the ID is extracted
// directly from the raw JSON. Returns nil if no ID is found.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	return raw["id"]
}

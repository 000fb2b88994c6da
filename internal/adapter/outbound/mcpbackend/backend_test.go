package mcpbackend

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestCallToolResult_Text_ConcatenatesContent(t *testing.T) {
	t.Parallel()

	r := CallToolResult{Content: []ContentItem{
		{Type: "text", Text: "hello "},
		{Type: "text", Text: "world"},
	}}
	if got := r.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
}

func TestIdKey_MatchesEqualIDs(t *testing.T) {
	t.Parallel()

	a, err := jsonrpc.MakeID(float64(1))
	if err != nil {
		t.Fatalf("MakeID: %v", err)
	}
	b, err := jsonrpc.MakeID(float64(1))
	if err != nil {
		t.Fatalf("MakeID: %v", err)
	}
	if idKey(a) != idKey(b) {
		t.Errorf("idKey mismatch for equal ids: %q != %q", idKey(a), idKey(b))
	}

	c, err := jsonrpc.MakeID(float64(2))
	if err != nil {
		t.Fatalf("MakeID: %v", err)
	}
	if idKey(a) == idKey(c) {
		t.Error("idKey collision for distinct ids")
	}
}

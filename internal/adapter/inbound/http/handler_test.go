package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

const testPolicyYAML = `
version: "1.0"
name: test-policy
capabilities:
  - tool: command:run
    scope:
      paths: ["/tmp/**"]
session:
  max_denials: 5
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(policyPath, []byte(testPolicyYAML), 0o644); err != nil {
		t.Fatalf("writing test policy: %v", err)
	}

	gates := gatemgr.New(policy.RiskLow)
	sessions := session.NewManager(filepath.Join(dir, "ledger"), gates)
	return NewHandler(sessions, discardLogger(), nil), policyPath
}

func decodeJSON(t *testing.T, body *bytes.Buffer, v any) {
	t.Helper()
	if err := json.Unmarshal(body.Bytes(), v); err != nil {
		t.Fatalf("decoding response body %q: %v", body.String(), err)
	}
}

func TestHandler_ValidatePolicy(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()

	body, _ := json.Marshal(map[string]string{"path": policyPath})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]bool
	decodeJSON(t, rec.Body, &resp)
	if !resp["valid"] {
		t.Error("expected valid=true")
	}
}

func TestHandler_ValidatePolicy_MissingFile(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	body, _ := json.Marshal(map[string]string{"path": "/nonexistent/policy.yaml"})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func createTestSession(t *testing.T, mux *http.ServeMux, policyPath string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"policyPath": policyPath, "metadata": map[string]string{"source": "test"}})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating session: status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp createSessionResponse
	decodeJSON(t, rec.Body, &resp)
	return resp.SessionID
}

func TestHandler_CreateAndGetSession(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()

	id := createTestSession(t, mux, policyPath)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var report session.Report
	decodeJSON(t, rec.Body, &report)
	if report.SessionID != id {
		t.Errorf("SessionID = %q, want %q", report.SessionID, id)
	}
	if report.State != session.StateActive {
		t.Errorf("State = %q, want active", report.State)
	}
}

func TestHandler_GetSession_Unknown(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	req := httptest.NewRequest(http.MethodGet, "/sessions/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandler_EvaluateAllowedAction(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()
	id := createTestSession(t, mux, policyPath)

	body, _ := json.Marshal(map[string]any{
		"tool":  "command:run",
		"input": map[string]any{"path": "/tmp/allowed.txt"},
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rec.Body, &resp)
	if resp["decision"] != string(policy.VerdictAllow) {
		t.Errorf("decision = %v, want allow", resp["decision"])
	}
}

func TestHandler_EvaluateOutOfScopeAction_Denied(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()
	id := createTestSession(t, mux, policyPath)

	body, _ := json.Marshal(map[string]any{
		"tool":  "command:run",
		"input": map[string]any{"path": "/etc/passwd"},
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rec.Body, &resp)
	if resp["decision"] != string(policy.VerdictDeny) {
		t.Errorf("decision = %v, want deny", resp["decision"])
	}
}

func TestHandler_RecordAndTerminate(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()
	id := createTestSession(t, mux, policyPath)

	evalBody, _ := json.Marshal(map[string]any{
		"tool":  "command:run",
		"input": map[string]any{"path": "/tmp/ok.txt"},
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/evaluate", bytes.NewReader(evalBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var evalResp map[string]any
	decodeJSON(t, rec.Body, &evalResp)
	actionID, _ := evalResp["actionId"].(string)
	if actionID == "" {
		t.Fatal("missing actionId in evaluate response")
	}

	recordBody, _ := json.Marshal(map[string]any{
		"actionId":   actionID,
		"success":    true,
		"output":     "done",
		"durationMs": 12,
	})
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/record", bytes.NewReader(recordBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("record: status = %d, body=%s", rec.Code, rec.Body.String())
	}

	// Recording twice for the same action is rejected.
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/record", bytes.NewReader(recordBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate record: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	termBody, _ := json.Marshal(map[string]string{"reason": "test complete"})
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/terminate", bytes.NewReader(termBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("terminate: status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var report session.Report
	decodeJSON(t, rec.Body, &report)
	if report.State != session.StateTerminated {
		t.Errorf("State = %q, want terminated", report.State)
	}
	if report.ActionsAllowed != 1 {
		t.Errorf("ActionsAllowed = %d, want 1", report.ActionsAllowed)
	}
}

func TestHandler_LedgerEndpoints(t *testing.T) {
	h, policyPath := newTestHandler(t)
	mux := h.Mux()
	id := createTestSession(t, mux, policyPath)

	termBody, _ := json.Marshal(map[string]string{"reason": "done"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/terminate", bytes.NewReader(termBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("terminate: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/ledger/verify", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/ledger/summary", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status = %d, body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/ledger", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("raw ledger: status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty ledger body")
	}
}

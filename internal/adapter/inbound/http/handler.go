package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/alexedwards/argon2id"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/statestore"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ledger"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

// Handler is the governance gateway's REST façade: it drives a
// session.Manager the same way the CLI's exec command or the MCP Proxy do,
// over plain JSON/HTTP instead of in-process calls.
type Handler struct {
	sessions          *session.Manager
	logger            *slog.Logger
	metrics           *Metrics
	webhookSecretHash string
	stateStore        *statestore.Store
}

// HandlerOption configures optional Handler behavior.
type HandlerOption func(*Handler)

// WithWebhookSecretHash requires the /sessions/{id}/approve and .../reject
// endpoints to carry a matching X-Gate-Secret header, verified against an
// argon2id hash (see the "gates hash-secret" CLI command), before resolving
// a gate. Gate decisions are otherwise unauthenticated HTTP calls; this is
// the webhook approval mode's only line of defense against a forged
// callback. Leaving it unset disables the check entirely.
func WithWebhookSecretHash(hash string) HandlerOption {
	return func(h *Handler) {
		h.webhookSecretHash = hash
	}
}

// WithStateStore enables GET /sessions/index, backed by store. Leave unset
// and the route simply isn't registered.
func WithStateStore(store *statestore.Store) HandlerOption {
	return func(h *Handler) {
		h.stateStore = store
	}
}

// NewHandler builds a Handler over an already-constructed session.Manager
// (the same one a proxy/exec command would use). metrics may be nil; when
// set, evaluate/create/terminate update its gauges and counters.
func NewHandler(sessions *session.Manager, logger *slog.Logger, metrics *Metrics, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{sessions: sessions, logger: logger, metrics: metrics}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// verifyWebhookSecret reports whether r carries a X-Gate-Secret header
// matching h's configured hash. Always true when no hash is configured.
func (h *Handler) verifyWebhookSecret(r *http.Request) bool {
	if h.webhookSecretHash == "" {
		return true
	}
	provided := r.Header.Get("X-Gate-Secret")
	if provided == "" {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(provided, h.webhookSecretHash)
	return err == nil && match
}

// Mux builds the façade's route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /validate", h.handleValidate)
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("GET /sessions", h.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("GET /sessions/{id}/report", h.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /sessions/{id}/record", h.handleRecord)
	mux.HandleFunc("POST /sessions/{id}/approve", h.handleGateDecision(gatemgr.DecisionApproved))
	mux.HandleFunc("POST /sessions/{id}/reject", h.handleGateDecision(gatemgr.DecisionRejected))
	mux.HandleFunc("POST /sessions/{id}/terminate", h.handleTerminate)
	mux.HandleFunc("GET /sessions/{id}/ledger", h.handleLedgerRaw)
	mux.HandleFunc("GET /sessions/{id}/ledger/summary", h.handleLedgerSummary)
	mux.HandleFunc("GET /sessions/{id}/ledger/verify", h.handleLedgerVerify)
	if h.stateStore != nil {
		mux.HandleFunc("GET /sessions/index", h.handleSessionIndex)
	}
	return mux
}

// handleSessionIndex serves the durable SQLite session index, a read-side
// convenience that survives a process restart: session.Manager's List only
// knows about sessions still live in the current process.
func (h *Handler) handleSessionIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := h.stateStore.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusForSessionErr maps session.Manager's usage errors to HTTP status,
// per spec §7(b): these are caller errors, not session-terminating faults.
func statusForSessionErr(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, session.ErrResultAlreadySet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type validateRequest struct {
	Path string `json:"path"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	_, err := policy.Load(req.Path)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
		return
	}

	var verr *policy.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "issues": verr.Issues})
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

type createSessionRequest struct {
	PolicyPath string            `json:"policyPath"`
	Metadata   map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PolicyPath == "" {
		writeError(w, http.StatusBadRequest, errors.New("policyPath is required"))
		return
	}

	pol, err := policy.Load(req.PolicyPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := h.sessions.CreateSession(pol, req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Inc()
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sess.ID})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := h.sessions.Report(id)
	if err != nil {
		writeError(w, statusForSessionErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type evaluateRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tool == "" {
		writeError(w, http.StatusBadRequest, errors.New("tool is required"))
		return
	}

	actionReq := policy.ActionRequest{Tool: req.Tool, Input: policy.FromMap(req.Tool, req.Input)}
	outcome, err := h.sessions.Evaluate(r.Context(), id, actionReq, req.Input)
	if err != nil {
		writeError(w, statusForSessionErr(err), err)
		return
	}
	if h.metrics != nil {
		h.metrics.PolicyEvaluations.WithLabelValues(string(outcome.Decision)).Inc()
	}

	reasons := make([]string, len(outcome.Reasons))
	for i, reason := range outcome.Reasons {
		reasons[i] = reason.String()
	}
	resp := map[string]any{
		"actionId": outcome.ActionID,
		"decision": outcome.Decision,
		"reasons":  reasons,
		"warnings": outcome.Warnings,
	}
	if outcome.Gate != nil {
		resp["gate"] = outcome.Gate
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordRequest struct {
	ActionID   string             `json:"actionId"`
	Success    bool               `json:"success"`
	Output     string             `json:"output"`
	Artifacts  []session.Artifact `json:"artifacts"`
	DurationMs int64              `json:"durationMs"`
	Error      string             `json:"error"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("actionId is required"))
		return
	}

	err := h.sessions.RecordResult(id, req.ActionID, session.ActionResult{
		Success:    req.Success,
		Output:     req.Output,
		Artifacts:  req.Artifacts,
		DurationMs: req.DurationMs,
		Error:      req.Error,
	})
	if err != nil {
		writeError(w, statusForSessionErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type gateDecisionRequest struct {
	ActionID    string `json:"actionId"`
	RespondedBy string `json:"respondedBy"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleGateDecision(decision gatemgr.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.verifyWebhookSecret(r) {
			writeError(w, http.StatusUnauthorized, errors.New("missing or invalid X-Gate-Secret"))
			return
		}
		id := r.PathValue("id")
		var req gateDecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionID == "" {
			writeError(w, http.StatusBadRequest, errors.New("actionId is required"))
			return
		}
		if err := h.sessions.ResolveGate(id, req.ActionID, decision, req.RespondedBy, req.Reason); err != nil {
			writeError(w, statusForSessionErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(decision)})
	}
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req terminateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "terminated via http"
	}

	report, err := h.sessions.Terminate(id, req.Reason)
	if err != nil {
		writeError(w, statusForSessionErr(err), err)
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Dec()
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleLedgerRaw(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := h.sessions.LedgerPath(id)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("ledger not found"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

func (h *Handler) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := h.sessions.LedgerPath(id)
	summary, err := ledger.Summarize(path)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("ledger not found"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := h.sessions.LedgerPath(id)
	result, err := ledger.VerifyIntegrity(path)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("ledger not found"))
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

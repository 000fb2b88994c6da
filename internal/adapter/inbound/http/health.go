package http

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Goroutines int    `json:"goroutines"`
	Version    string `json:"version,omitempty"`
}

// HealthChecker reports whether the façade's dependencies are reachable.
// It currently has nothing to check beyond process liveness — the
// session.Manager it fronts is in-process memory, not a remote
// dependency — but keeps the same shape as the teacher's health checker
// so a future out-of-process store slots in without changing callers.
type HealthChecker struct {
	version string
}

// NewHealthChecker builds a HealthChecker reporting version in its response.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version}
}

// Check reports the façade's current health.
func (h *HealthChecker) Check() HealthResponse {
	return HealthResponse{
		Status:     "healthy",
		Goroutines: runtime.NumGoroutine(),
		Version:    h.version,
	}
}

// Handler returns an HTTP handler for the /health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	})
}

package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/statestore"
)

func TestSessionIndex_NotRegisteredWithoutStateStore(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/index", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no state store is configured", rec.Code)
	}
}

func TestSessionIndex_ListsIndexedSessions(t *testing.T) {
	h, _ := newTestHandler(t)
	store, err := statestore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("statestore.Open() error: %v", err)
	}
	defer store.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.IndexSessionStart("sess-1", "test-policy", now, nil); err != nil {
		t.Fatalf("IndexSessionStart() error: %v", err)
	}
	h.stateStore = store

	req := httptest.NewRequest(http.MethodGet, "/sessions/index", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entries []statestore.Entry
	decodeJSON(t, rec.Body, &entries)
	if len(entries) != 1 || entries[0].ID != "sess-1" {
		t.Fatalf("entries = %+v", entries)
	}
}

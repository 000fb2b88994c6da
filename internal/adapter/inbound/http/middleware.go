// Package http provides the HTTP transport adapter for the REST façade.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

type loggerContextKey struct{}

// LoggerKey is the context key for the enriched logger.
var LoggerKey = loggerContextKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			// Enrich logger with request_id
			enrichedLogger := logger.With("request_id", requestID)

			// Store in context
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// DNSRebindingProtection validates Origin header against an allowlist.
// This prevents DNS rebinding attacks by ensuring requests come from allowed origins.
// If allowedOrigins is empty, all requests with an Origin header are blocked (local-only mode).
// Requests without an Origin header are allowed (same-origin or non-browser).
func DNSRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	// Build a set for O(1) lookup
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// If no Origin header, allow (same-origin or non-browser request)
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			// If Origin present, it must be in the allowlist
			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type realIPContextKey struct{}

// RealIPKey is the context key the extracted client IP is stored under.
var RealIPKey = realIPContextKey{}

// RealIPMiddleware extracts the client's real IP address for request logging.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr if no proxy headers are present.
// Only the first IP in X-Forwarded-For is trusted to avoid spoofing.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), RealIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// Check X-Forwarded-For first (common reverse proxy header)
	// Format: X-Forwarded-For: client, proxy1, proxy2
	// Trust only the first IP (client IP from first proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Split by comma and take first entry
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check X-Real-IP (nginx-style header)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	// RemoteAddr is in "host:port" format, extract host
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, use RemoteAddr as-is
		return r.RemoteAddr
	}
	return host
}

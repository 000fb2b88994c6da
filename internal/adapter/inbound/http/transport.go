// Package http provides the HTTP transport adapter for the REST façade.
package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPTransport serves the governance gateway's REST façade over HTTP(S).
type HTTPTransport struct {
	handler        *Handler
	server         *http.Server
	addr           string
	allowedOrigins []string
	certFile       string
	keyFile        string
	logger         *slog.Logger
	metrics        *Metrics
	healthChecker  *HealthChecker
	registry       *prometheus.Registry
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8787" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithMetrics sets the metrics instance the façade's middleware records
// into, along with the registry it was created against (so /metrics
// exposes the same collectors the Handler increments).
func WithMetrics(m *Metrics, reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
		t.registry = reg
	}
}

// NewHTTPTransport creates an HTTP transport adapter wrapping handler.
func NewHTTPTransport(handler *Handler, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		handler:        handler,
		addr:           "127.0.0.1:8787",
		allowedOrigins: []string{},
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := t.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(reg)
	}

	// Middleware order (outermost first): Metrics -> RequestID -> RealIP ->
	// DNSRebinding -> Handler.
	var apiHandler http.Handler = t.handler.Mux()
	apiHandler = DNSRebindingProtection(t.allowedOrigins)(apiHandler)
	apiHandler = RealIPMiddleware(apiHandler)
	apiHandler = RequestIDMiddleware(t.logger)(apiHandler)
	apiHandler = MetricsMiddleware(t.metrics)(apiHandler)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", apiHandler)

	t.server = &http.Server{Addr: t.addr, Handler: mux}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// Package http provides the HTTP transport adapter for the REST façade.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the façade's Prometheus metrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveSessions    prometheus.Gauge
	PolicyEvaluations *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "http_requests_total",
				Help:      "Total number of REST façade requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "active_sessions",
				Help:      "Number of active sessions",
			},
		),
		PolicyEvaluations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "policy_evaluations_total",
				Help:      "Total policy evaluations, by verdict",
			},
			[]string{"verdict"}, // allow/deny/gate
		),
	}
}

// Package observability exposes Prometheus metrics for the gatekeeper
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gatekeeper metric collectors. Create one per process
// and share it across portals.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitHits   *prometheus.CounterVec
	authRejections  *prometheus.CounterVec
	stageFaults     *prometheus.CounterVec
}

// NewMetrics creates and registers the gatekeeper collectors on a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_requests_total",
			Help: "Requests processed by the pipeline, by portal and outcome.",
		}, []string{"portal", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_request_duration_seconds",
			Help:    "Pipeline request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"portal"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter, by portal and route class.",
		}, []string{"portal", "class"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_auth_rejections_total",
			Help: "Requests rejected by the auth guard, by portal and reason.",
		}, []string{"portal", "reason"}),
		stageFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_stage_faults_total",
			Help: "Uncaught stage failures converted to 500 responses.",
		}, []string{"portal", "stage"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rateLimitHits,
		m.authRejections,
		m.stageFaults,
	)
	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordRequest(portal, outcome string, durationSeconds float64) {
	m.requestsTotal.WithLabelValues(portal, outcome).Inc()
	m.requestDuration.WithLabelValues(portal).Observe(durationSeconds)
}

func (m *Metrics) RecordRateLimitHit(portal, class string) {
	m.rateLimitHits.WithLabelValues(portal, class).Inc()
}

func (m *Metrics) RecordAuthRejection(portal, reason string) {
	m.authRejections.WithLabelValues(portal, reason).Inc()
}

func (m *Metrics) RecordStageFault(portal, stage string) {
	m.stageFaults.WithLabelValues(portal, stage).Inc()
}

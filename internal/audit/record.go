// Package audit builds the correlated security audit trail: one completion
// record per request plus out-of-band security events, all carrying the
// request's trace id. Records are append-only; nothing in the gatekeeper
// edits or deletes them. Sink failures never fail the request.
package audit

import "time"

// Outcome is the final disposition of a request.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeError Outcome = "error"
)

// Severity grades events for downstream alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event types raised by pipeline stages.
const (
	EventRequestComplete   = "request_complete"
	EventRateLimitHit      = "rate_limit_hit"
	EventRateLimitStoreErr = "rate_limit_store_error"
	EventCSRFMismatch      = "csrf_mismatch"
	EventAuthRejected      = "auth_rejected"
	EventVerifierDown      = "verifier_unavailable"
	EventStageFault        = "stage_fault"
	EventSinkFailure       = "sink_failure"
)

// Record is a single audit entry. Immutable once written to a sink.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Portal    string    `json:"portal"`
	EventType string    `json:"event_type"`
	Severity  Severity  `json:"severity"`

	Method   string `json:"method,omitempty"`
	Route    string `json:"route,omitempty"`
	ClientIP string `json:"client_ip,omitempty"`

	Outcome   Outcome `json:"outcome,omitempty"`
	Status    int     `json:"status,omitempty"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
	Detail    string  `json:"detail,omitempty"`

	// StageTimings is only populated at the comprehensive audit level.
	StageTimings map[string]float64 `json:"stage_timings,omitempty"`
}

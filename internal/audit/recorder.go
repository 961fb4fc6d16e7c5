package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/logutil"
)

// Request carries the per-request identity fields every record inherits.
type Request struct {
	TraceID  string
	Method   string
	Path     string
	ClientIP string
}

// Recorder produces audit records for one portal at a configured
// verbosity level. Sink errors are swallowed and surfaced as a warning log
// line so the request itself never fails on audit trouble.
type Recorder struct {
	portal string
	level  config.AuditLevel
	sink   Sink
	logger zerolog.Logger
}

// NewRecorder creates a recorder for a portal.
func NewRecorder(portal string, level config.AuditLevel, sink Sink, logger zerolog.Logger) *Recorder {
	return &Recorder{
		portal: portal,
		level:  level,
		sink:   sink,
		logger: logger.With().Str("component", "audit").Str("portal", portal).Logger(),
	}
}

// Level returns the recorder's audit level.
func (r *Recorder) Level() config.AuditLevel {
	return r.level
}

// Start marks the beginning of a request. At the comprehensive level it
// emits a debug log line; no sink record is written until Complete.
func (r *Recorder) Start(req Request) {
	if r.level == config.AuditComprehensive {
		r.logger.Debug().
			Str("trace_id", req.TraceID).
			Str("method", req.Method).
			Str("path", req.Path).
			Str("client_ip", req.ClientIP).
			Msg("request start")
	}
}

// Event records an out-of-band security signal correlated to the request.
// At the minimal level only high and critical events are kept. Detail text
// is sanitized so stage errors can never leak a credential into the trail.
func (r *Recorder) Event(ctx context.Context, req Request, eventType string, severity Severity, detail string) {
	if r.level == config.AuditMinimal && severity != SeverityHigh && severity != SeverityCritical {
		return
	}
	detail = logutil.SanitizeDetail(detail)
	rec := &Record{
		Timestamp: time.Now().UTC(),
		TraceID:   req.TraceID,
		Portal:    r.portal,
		EventType: eventType,
		Severity:  severity,
		Method:    req.Method,
		Route:     req.Path,
		ClientIP:  req.ClientIP,
		Detail:    detail,
	}
	r.write(ctx, rec)
}

// Complete records the request's final disposition. Exactly one Complete
// is written per request regardless of outcome.
func (r *Recorder) Complete(ctx context.Context, req Request, outcome Outcome, status int, latency time.Duration, stageTimings map[string]float64) {
	rec := &Record{
		Timestamp: time.Now().UTC(),
		TraceID:   req.TraceID,
		Portal:    r.portal,
		EventType: EventRequestComplete,
		Severity:  severityForOutcome(outcome),
		Outcome:   outcome,
		Status:    status,
		LatencyMS: float64(latency.Microseconds()) / 1000.0,
	}
	if r.level != config.AuditMinimal {
		rec.Method = req.Method
		rec.Route = req.Path
		rec.ClientIP = req.ClientIP
	}
	if r.level == config.AuditComprehensive {
		rec.StageTimings = stageTimings
	}
	r.write(ctx, rec)
}

func severityForOutcome(outcome Outcome) Severity {
	switch outcome {
	case OutcomeError:
		return SeverityHigh
	case OutcomeDeny:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// write pushes a record to the sink, degrading to a warning log line on
// failure.
func (r *Recorder) write(ctx context.Context, rec *Record) {
	if err := r.sink.Write(ctx, rec); err != nil {
		r.logger.Warn().
			Err(err).
			Str("trace_id", rec.TraceID).
			Str("event_type", rec.EventType).
			Msg("audit sink write failed, record dropped")
	}
}

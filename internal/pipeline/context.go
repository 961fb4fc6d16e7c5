package pipeline

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
)

// RequestContext carries per-request state through the pipeline. It is
// created once by the orchestrator, owned by it for the request's
// lifetime, and discarded at response time. The trace id is assigned
// exactly once, here, and never reassigned.
type RequestContext struct {
	TraceID  string
	Portal   string
	Method   string
	Path     string
	ClientID string
	Start    time.Time

	// Route classification, computed once before the stages run.
	IsPublic       bool
	IsAPI          bool
	IsAuthEndpoint bool

	// RefreshRequired is set by the auth guard when a valid token is
	// inside the refresh window.
	RefreshRequired bool

	// Values is a bag for inter-stage signals that have no dedicated
	// field.
	Values map[string]any

	stageTimings map[string]float64
}

// TraceHeader is the response header carrying the request's trace id.
const TraceHeader = "X-Trace-ID"

// NewRequestContext builds the context for an inbound request. The client
// identifier prefers the first forwarded hop over the connection address.
func NewRequestContext(c fiber.Ctx, portal string) *RequestContext {
	return &RequestContext{
		TraceID:  uuid.NewString(),
		Portal:   portal,
		Method:   c.Method(),
		Path:     c.Path(),
		ClientID: clientIdentifier(c),
		Start:    time.Now(),
		Values:   make(map[string]any),
	}
}

func clientIdentifier(c fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	return c.IP()
}

// RecordStageTiming accumulates a stage duration for comprehensive audit.
func (rc *RequestContext) RecordStageTiming(stage string, d time.Duration) {
	if rc.stageTimings == nil {
		rc.stageTimings = make(map[string]float64)
	}
	rc.stageTimings[stage] = float64(d.Microseconds()) / 1000.0
}

// StageTimings returns the accumulated per-stage durations in
// milliseconds.
func (rc *RequestContext) StageTimings() map[string]float64 {
	return rc.stageTimings
}

// AuditRequest converts the context into the audit package's request
// identity.
func (rc *RequestContext) AuditRequest() audit.Request {
	return audit.Request{
		TraceID:  rc.TraceID,
		Method:   rc.Method,
		Path:     rc.Path,
		ClientIP: rc.ClientID,
	}
}

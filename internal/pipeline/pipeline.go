// Package pipeline implements the gatekeeper's per-request orchestrator:
// an ordered, short-circuiting chain of security stages followed by
// finalizers that run unconditionally. The stage list is built once per
// portal at startup; per request a single RequestContext is threaded
// through every stage.
//
// The short-circuit invariant is structural: stages live in one list,
// header injection and audit completion in another, and the second list
// runs even when a stage rejects the request or panics.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/headers"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/observability"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/routes"
)

// RefreshHeader is the advisory signal telling the portal application a
// still-valid token is near expiry and should be renewed.
const RefreshHeader = "X-Token-Refresh-Required"

// StageFunc is one security stage. Returning a non-nil Decision stops the
// chain; returning an error is a stage fault and converts to a generic
// 500.
type StageFunc func(c fiber.Ctx, rc *RequestContext) (*Decision, error)

// Stage pairs a stage function with the name used in audit records and
// stage timings.
type Stage struct {
	Name string
	Run  StageFunc
}

// Options configures a portal pipeline.
type Options struct {
	Portal      *config.PortalConfig
	Environment config.Environment
	Recorder    *audit.Recorder
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	Stages      []Stage
	// ExcludedPatterns replace the default static-asset exclusion list.
	ExcludedPatterns []string
}

// Pipeline executes the stage chain for one portal.
type Pipeline struct {
	portal   *config.PortalConfig
	basePath string
	recorder *audit.Recorder
	metrics  *observability.Metrics
	logger   zerolog.Logger
	stages   []Stage

	excluded      *routes.Matcher
	public        *routes.Matcher
	api           *routes.Matcher
	authEndpoints *routes.Matcher

	// headerSet is precomputed: the policy is deterministic per portal.
	headerSet map[string]string
	tracer    trace.Tracer
}

// New builds a pipeline from portal configuration. Matchers and the
// header set are computed here, not per request.
func New(opts Options) *Pipeline {
	excluded := opts.ExcludedPatterns
	if excluded == nil {
		excluded = routes.DefaultExcludedPatterns()
	}
	return &Pipeline{
		portal:        opts.Portal,
		basePath:      opts.Portal.BasePath,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With().Str("portal", opts.Portal.ID).Logger(),
		stages:        opts.Stages,
		excluded:      routes.NewMatcher(excluded),
		public:        routes.NewMatcher(opts.Portal.PublicRoutes),
		api:           routes.NewMatcher(opts.Portal.APIPrefixes),
		authEndpoints: routes.NewMatcher(routes.DefaultAuthEndpointPatterns()),
		headerSet: headers.Build(
			opts.Portal.SecurityLevel,
			!opts.Environment.IsProduction(),
			opts.Portal.HeaderOverrides,
		),
		tracer: otel.Tracer("gatekeeper"),
	}
}

// Handler returns the fiber middleware executing the pipeline.
func (p *Pipeline) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Route patterns are portal-relative; strip the mount prefix
		// before classification.
		path := c.Path()
		if p.basePath != "" && p.basePath != "/" && strings.HasPrefix(path, p.basePath) {
			path = strings.TrimPrefix(path, p.basePath)
			if path == "" {
				path = "/"
			}
		}
		if p.excluded.Match(path) {
			return c.Next()
		}

		rc := NewRequestContext(c, p.portal.ID)
		rc.Path = path
		rc.IsPublic = p.public.Match(rc.Path)
		rc.IsAPI = p.api.Match(rc.Path)
		rc.IsAuthEndpoint = p.authEndpoints.Match(rc.Path)
		c.Set(TraceHeader, rc.TraceID)

		_, span := p.tracer.Start(c.Context(), "gatekeeper.request",
			trace.WithAttributes(
				attribute.String("portal", rc.Portal),
				attribute.String("trace_id", rc.TraceID),
				attribute.String("http.method", rc.Method),
				attribute.String("http.path", rc.Path),
			))
		defer span.End()

		p.recorder.Start(rc.AuditRequest())

		term, faulted := p.runStages(c, rc, span)

		var downstreamErr error
		if term != nil {
			downstreamErr = term.write(c)
		} else {
			downstreamErr = c.Next()
		}

		// Finalizers: never skipped, regardless of short-circuit or
		// fault above.
		p.injectHeaders(c, rc)
		p.complete(c, rc, term, faulted, downstreamErr)

		return downstreamErr
	}
}

// runStages executes the short-circuitable list. A stage panic or error
// is isolated here: it becomes a generic 500 decision and a high-severity
// audit event naming the stage, with no internal detail in the response.
func (p *Pipeline) runStages(c fiber.Ctx, rc *RequestContext, span trace.Span) (term *Decision, faulted bool) {
	for _, st := range p.stages {
		dec, err := p.runStage(c, rc, st)
		if err != nil {
			p.logger.Error().
				Err(err).
				Str("trace_id", rc.TraceID).
				Str("stage", st.Name).
				Msg("pipeline stage fault")
			p.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
				audit.EventStageFault, audit.SeverityHigh,
				fmt.Sprintf("stage %s: %v", st.Name, err))
			if p.metrics != nil {
				p.metrics.RecordStageFault(rc.Portal, st.Name)
			}
			span.AddEvent("stage_fault", trace.WithAttributes(attribute.String("stage", st.Name)))
			return Reject(fiber.StatusInternalServerError, CodeInternalError, "Internal server error"), true
		}
		if dec != nil {
			span.AddEvent("short_circuit", trace.WithAttributes(
				attribute.String("stage", st.Name),
				attribute.Int("status", dec.Status),
			))
			return dec, false
		}
	}
	return nil, false
}

func (p *Pipeline) runStage(c fiber.Ctx, rc *RequestContext, st Stage) (dec *Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	start := time.Now()
	dec, err = st.Run(c, rc)
	rc.RecordStageTiming(st.Name, time.Since(start))
	return dec, err
}

// injectHeaders applies the portal's security header set and the
// refresh-required signal. Runs for every response, including rejections.
func (p *Pipeline) injectHeaders(c fiber.Ctx, rc *RequestContext) {
	for name, value := range p.headerSet {
		c.Set(name, value)
	}
	if rc.RefreshRequired {
		c.Set(RefreshHeader, "true")
	}
}

// complete writes the single per-request audit record and the request
// metrics.
func (p *Pipeline) complete(c fiber.Ctx, rc *RequestContext, term *Decision, faulted bool, downstreamErr error) {
	status := c.Response().StatusCode()
	outcome := audit.OutcomeAllow
	switch {
	case faulted:
		outcome = audit.OutcomeError
		status = fiber.StatusInternalServerError
	case term != nil:
		outcome = audit.OutcomeDeny
	case downstreamErr != nil:
		outcome = audit.OutcomeError
		if fe, ok := downstreamErr.(*fiber.Error); ok {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}

	latency := time.Since(rc.Start)
	// Detached from request cancellation: audit completion is
	// best-effort even when the client disconnected mid-pipeline.
	p.recorder.Complete(context.WithoutCancel(c.Context()), rc.AuditRequest(),
		outcome, status, latency, rc.StageTimings())

	if p.metrics != nil {
		p.metrics.RecordRequest(rc.Portal, string(outcome), latency.Seconds())
	}
}

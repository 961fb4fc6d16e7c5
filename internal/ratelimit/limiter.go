package ratelimit

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/observability"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/pipeline"
)

// Route classes with distinct budgets. Auth routes get the tighter budget
// and fail closed when the store is down; general traffic fails open so a
// store outage does not take every portal offline.
const (
	ClassAuth    = "auth"
	ClassGeneral = "general"
)

// Limiter is the rate limiting stage for one portal.
type Limiter struct {
	portal   *config.PortalConfig
	store    Store
	recorder *audit.Recorder
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewLimiter creates the stage.
func NewLimiter(portal *config.PortalConfig, store Store, recorder *audit.Recorder,
	metrics *observability.Metrics, logger zerolog.Logger) *Limiter {
	return &Limiter{
		portal:   portal,
		store:    store,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With().Str("component", "ratelimit").Str("portal", portal.ID).Logger(),
	}
}

// Stage returns the pipeline stage.
func (l *Limiter) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "rate_limit", Run: l.check}
}

func (l *Limiter) check(c fiber.Ctx, rc *pipeline.RequestContext) (*pipeline.Decision, error) {
	class := ClassGeneral
	budget := l.portal.GeneralBudget
	if rc.IsAuthEndpoint {
		class = ClassAuth
		budget = l.portal.AuthBudget
	}

	key := fmt.Sprintf("%s:%s:%s", l.portal.ID, class, rc.ClientID)
	result, err := Check(c.Context(), l.store, key, int64(budget.Max), budget.Window)
	if err != nil {
		return l.onStoreFailure(c, rc, class, err)
	}

	if result.Allowed {
		return nil, nil
	}

	l.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
		audit.EventRateLimitHit, audit.SeverityWarning,
		fmt.Sprintf("class %s, limit %d per %s", class, budget.Max, budget.Window))
	if l.metrics != nil {
		l.metrics.RecordRateLimitHit(l.portal.ID, class)
	}

	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &pipeline.Decision{
		Status:     fiber.StatusTooManyRequests,
		Code:       pipeline.CodeRateLimitExceeded,
		Message:    fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.", budget.Max, budget.Window),
		RetryAfter: retryAfter,
	}, nil
}

// onStoreFailure applies the availability policy: closed for auth routes
// (credential endpoints stay protected), open for general traffic.
func (l *Limiter) onStoreFailure(c fiber.Ctx, rc *pipeline.RequestContext, class string, err error) (*pipeline.Decision, error) {
	l.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
		audit.EventRateLimitStoreErr, audit.SeverityHigh,
		fmt.Sprintf("class %s: %v", class, err))
	l.logger.Error().Err(err).Str("trace_id", rc.TraceID).Str("class", class).
		Msg("rate limit store unavailable")

	if class == ClassAuth {
		return &pipeline.Decision{
			Status:     fiber.StatusTooManyRequests,
			Code:       pipeline.CodeRateLimitExceeded,
			Message:    "Rate limiting temporarily unavailable for authentication endpoints.",
			RetryAfter: 30,
		}, nil
	}
	return nil, nil
}

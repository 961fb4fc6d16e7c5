// Package gatekeeper assembles the per-portal security pipelines from
// configuration: rate limiting, CSRF issuance and validation, the auth
// guard, and any portal-specific custom stages, in that fixed order.
package gatekeeper

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/authguard"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/csrf"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/observability"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/pipeline"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/ratelimit"
)

// Deps are the process-wide collaborators shared by every portal
// pipeline.
type Deps struct {
	Config   *config.Config
	Store    ratelimit.Store
	Sink     audit.Sink
	Verifier authguard.Verifier
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Portal is one assembled portal gatekeeper.
type Portal struct {
	Config   *config.PortalConfig
	Pipeline *pipeline.Pipeline
	csrf     *csrf.Guard
}

// Handler returns the portal's fiber middleware.
func (p *Portal) Handler() fiber.Handler {
	return p.Pipeline.Handler()
}

// Close releases per-portal resources.
func (p *Portal) Close() error {
	return p.csrf.Close()
}

// BuildPortal assembles the stage chain for one portal. Stage order is
// fixed and safety-critical: rate limiting before any token work, CSRF
// issuance before validation, authentication last among the built-ins.
// customStages run after the built-ins.
func BuildPortal(portalCfg *config.PortalConfig, deps Deps, customStages ...pipeline.Stage) *Portal {
	recorder := audit.NewRecorder(portalCfg.ID, portalCfg.AuditLevel, deps.Sink, deps.Logger)

	limiter := ratelimit.NewLimiter(portalCfg, deps.Store, recorder, deps.Metrics, deps.Logger)
	csrfGuard := csrf.NewGuard(deps.Config.Auth.SessionCookie,
		deps.Config.Environment.IsProduction(), recorder)
	auth := authguard.NewGuard(portalCfg, &deps.Config.Auth, deps.Config.Environment,
		deps.Verifier, recorder, deps.Metrics, deps.Logger)

	stages := []pipeline.Stage{
		limiter.Stage(),
		csrfGuard.IssueStage(),
		csrfGuard.ValidateStage(),
		auth.Stage(),
	}
	stages = append(stages, customStages...)

	return &Portal{
		Config: portalCfg,
		csrf:   csrfGuard,
		Pipeline: pipeline.New(pipeline.Options{
			Portal:      portalCfg,
			Environment: deps.Config.Environment,
			Recorder:    recorder,
			Metrics:     deps.Metrics,
			Logger:      deps.Logger,
			Stages:      stages,
		}),
	}
}

// BuildAll assembles every configured portal.
func BuildAll(deps Deps) []*Portal {
	portals := make([]*Portal, 0, len(deps.Config.Portals))
	for i := range deps.Config.Portals {
		portals = append(portals, BuildPortal(&deps.Config.Portals[i], deps))
	}
	return portals
}

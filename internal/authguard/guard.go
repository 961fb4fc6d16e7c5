package authguard

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/logutil"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/observability"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/pipeline"
)

// Rejection reasons for metrics and audit detail.
const (
	reasonNoToken      = "no_token"
	reasonInvalid      = "invalid_token"
	reasonExpired      = "expired"
	reasonVerifierDown = "verifier_unavailable"
)

// Guard enforces authentication for one portal. Per request the state
// machine is: Unauthenticated -> TokenPresent -> Verified | Rejected.
type Guard struct {
	portal   *config.PortalConfig
	auth     *config.AuthConfig
	env      config.Environment
	verifier Verifier
	recorder *audit.Recorder
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewGuard creates the auth guard stage for a portal.
func NewGuard(portal *config.PortalConfig, auth *config.AuthConfig, env config.Environment,
	verifier Verifier, recorder *audit.Recorder, metrics *observability.Metrics, logger zerolog.Logger) *Guard {
	return &Guard{
		portal:   portal,
		auth:     auth,
		env:      env,
		verifier: verifier,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With().Str("component", "authguard").Str("portal", portal.ID).Logger(),
	}
}

// Stage returns the pipeline stage.
func (g *Guard) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "auth", Run: g.check}
}

func (g *Guard) check(c fiber.Ctx, rc *pipeline.RequestContext) (*pipeline.Decision, error) {
	if !g.portal.RequireAuth || rc.IsPublic || rc.IsAuthEndpoint {
		return nil, nil
	}

	token := extractToken(c, g.auth.SessionCookie)
	if token == "" {
		return g.reject(c, rc, reasonNoToken), nil
	}

	result, err := g.verifier.ValidateToken(c.Context(), token)
	if err != nil {
		return g.onVerifierFailure(c, rc, token, err)
	}

	if !result.IsValid || result.ExpiresIn <= 0 {
		g.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
			audit.EventAuthRejected, audit.SeverityWarning, result.Error)
		return g.reject(c, rc, reasonForResult(result)), nil
	}

	if time.Duration(result.ExpiresIn)*time.Second < g.auth.RefreshThreshold {
		// Still valid: allow, but tell the portal application to
		// renew before the token lapses.
		rc.RefreshRequired = true
	}
	return nil, nil
}

func reasonForResult(result *Result) string {
	if result.ExpiresIn <= 0 && result.IsValid {
		return reasonExpired
	}
	return reasonInvalid
}

// onVerifierFailure decides what an unreachable verification service
// means. In production it is a rejection; outside production a
// structure-and-expiry-only decode may stand in when explicitly enabled.
func (g *Guard) onVerifierFailure(c fiber.Ctx, rc *pipeline.RequestContext, token string, err error) (*pipeline.Decision, error) {
	g.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
		audit.EventVerifierDown, audit.SeverityHigh, err.Error())
	g.logger.Error().Err(err).Str("trace_id", rc.TraceID).Msg("token verification service unavailable")

	if !g.env.IsProduction() && g.auth.TrustLocalDecode {
		expiresIn, ok := localDecodeExpiry(token)
		if ok && expiresIn > 0 {
			g.logger.Warn().
				Str("trace_id", rc.TraceID).
				Str("token_fp", logutil.TokenFingerprint(token)).
				Int64("expires_in", expiresIn).
				Msg("accepted token via local decode fallback (non-production only)")
			if time.Duration(expiresIn)*time.Second < g.auth.RefreshThreshold {
				rc.RefreshRequired = true
			}
			return nil, nil
		}
	}
	return g.reject(c, rc, reasonVerifierDown), nil
}

// localDecodeExpiry performs the restricted fallback decode: structure
// and expiry only, no signature trust. Returns the remaining lifetime in
// seconds.
func localDecodeExpiry(token string) (int64, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return int64(time.Until(exp.Time).Seconds()), true
}

// reject clears stored tokens and produces the terminal decision: a JSON
// 401 on API routes, a login redirect preserving the attempted path on
// page routes. Clearing first prevents repeated failed-validation loops.
func (g *Guard) reject(c fiber.Ctx, rc *pipeline.RequestContext, reason string) *pipeline.Decision {
	g.clearSessionCookies(c)
	if g.metrics != nil {
		g.metrics.RecordAuthRejection(rc.Portal, reason)
	}

	if rc.IsAPI {
		return pipeline.Reject(fiber.StatusUnauthorized, pipeline.CodeUnauthorized, "Unauthorized")
	}
	return pipeline.Redirect(g.auth.LoginPath + "?redirect=" + url.QueryEscape(rc.Path))
}

func (g *Guard) clearSessionCookies(c fiber.Ctx) {
	for _, name := range []string{g.auth.SessionCookie, g.auth.RefreshCookie} {
		if name == "" {
			continue
		}
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: true,
		})
	}
}

// extractToken prefers the Authorization header over the session cookie.
func extractToken(c fiber.Ctx, sessionCookie string) string {
	if auth := c.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Cookies(sessionCookie)
}

package authguard

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/pipeline"
)

// stubVerifier returns canned results, recording the token it saw.
type stubVerifier struct {
	result    *Result
	err       error
	lastToken string
}

func (v *stubVerifier) ValidateToken(ctx context.Context, token string) (*Result, error) {
	v.lastToken = token
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		VerifyURL:        "http://identity:8080",
		VerifyTimeout:    2 * time.Second,
		RefreshThreshold: 300 * time.Second,
		SessionCookie:    "dotmac_session",
		RefreshCookie:    "dotmac_refresh",
		LoginPath:        "/login",
	}
}

func newAuthGuard(env config.Environment, trustLocal bool, verifier Verifier) (*Guard, *audit.MemorySink) {
	portal := &config.PortalConfig{
		ID:          "customer",
		RequireAuth: true,
		AuditLevel:  config.AuditStandard,
	}
	auth := testAuthConfig()
	auth.TrustLocalDecode = trustLocal

	sink := audit.NewMemorySink()
	recorder := audit.NewRecorder(portal.ID, portal.AuditLevel, sink, zerolog.Nop())
	return NewGuard(portal, auth, env, verifier, recorder, nil, zerolog.Nop()), sink
}

type checkResult struct {
	decision *pipeline.Decision
	resp     *http.Response
}

func runCheck(t *testing.T, g *Guard, rc *pipeline.RequestContext, mutate func(*http.Request)) checkResult {
	t.Helper()

	app := fiber.New()
	var dec *pipeline.Decision
	var stageErr error
	app.All("/*", func(c fiber.Ctx) error {
		dec, stageErr = g.check(c, rc)
		return c.SendString("ok")
	})

	req := httptest.NewRequest(rc.Method, rc.Path, nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 0, FailOnTimeout: false})
	require.NoError(t, err)
	require.NoError(t, stageErr)
	return checkResult{decision: dec, resp: resp}
}

func authRC(isAPI bool) *pipeline.RequestContext {
	path := "/billing"
	if isAPI {
		path = "/api/billing"
	}
	return &pipeline.RequestContext{
		TraceID: "trace-auth",
		Portal:  "customer",
		Method:  http.MethodGet,
		Path:    path,
		IsAPI:   isAPI,
		Values:  map[string]any{},
	}
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// signedToken builds a real HS256 token expiring after ttl; the guard's
// local decode only inspects structure and expiry.
func signedToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestGuard_Skips(t *testing.T) {
	verifier := &stubVerifier{result: &Result{IsValid: true, ExpiresIn: 3600}}

	t.Run("portal without auth requirement", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)
		guard.portal.RequireAuth = false

		res := runCheck(t, guard, authRC(true), nil)
		assert.Nil(t, res.decision)
		assert.Empty(t, verifier.lastToken, "verifier must not be consulted")
	})

	t.Run("public route", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)
		rc := authRC(true)
		rc.IsPublic = true
		res := runCheck(t, guard, rc, nil)
		assert.Nil(t, res.decision)
	})

	t.Run("auth endpoint", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)
		rc := authRC(true)
		rc.IsAuthEndpoint = true
		res := runCheck(t, guard, rc, nil)
		assert.Nil(t, res.decision)
	})
}

func TestGuard_MissingToken(t *testing.T) {
	t.Run("API route gets JSON 401", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, false, &stubVerifier{})

		res := runCheck(t, guard, authRC(true), nil)
		require.NotNil(t, res.decision)
		assert.Equal(t, fiber.StatusUnauthorized, res.decision.Status)
		assert.Equal(t, pipeline.CodeUnauthorized, res.decision.Code)
	})

	t.Run("page route redirects to login preserving the path", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, false, &stubVerifier{})

		res := runCheck(t, guard, authRC(false), nil)
		require.NotNil(t, res.decision)
		assert.Equal(t, "/login?redirect="+url.QueryEscape("/billing"), res.decision.RedirectTo)
	})
}

func TestGuard_ValidToken(t *testing.T) {
	t.Run("comfortably valid token passes without refresh signal", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: true, ExpiresIn: 3600}}
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)

		rc := authRC(true)
		res := runCheck(t, guard, rc, withBearer("valid-token"))
		assert.Nil(t, res.decision)
		assert.False(t, rc.RefreshRequired)
		assert.Equal(t, "valid-token", verifier.lastToken)
	})

	t.Run("token near expiry sets the refresh flag", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: true, ExpiresIn: 250}}
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)

		rc := authRC(true)
		res := runCheck(t, guard, rc, withBearer("near-expiry"))
		assert.Nil(t, res.decision, "the request itself still passes")
		assert.True(t, rc.RefreshRequired)
	})

	t.Run("session cookie is used when no Authorization header", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: true, ExpiresIn: 3600}}
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)

		res := runCheck(t, guard, authRC(true), func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "dotmac_session", Value: "cookie-token"})
		})
		assert.Nil(t, res.decision)
		assert.Equal(t, "cookie-token", verifier.lastToken)
	})
}

func TestGuard_InvalidToken(t *testing.T) {
	t.Run("invalid token is rejected and audited", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: false, Error: "signature mismatch"}}
		guard, sink := newAuthGuard(config.EnvProduction, false, verifier)

		res := runCheck(t, guard, authRC(true), withBearer("bad"))
		require.NotNil(t, res.decision)
		assert.Equal(t, fiber.StatusUnauthorized, res.decision.Status)

		records := sink.Records()
		require.NotEmpty(t, records)
		assert.Equal(t, audit.EventAuthRejected, records[0].EventType)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: true, ExpiresIn: 0}}
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)

		res := runCheck(t, guard, authRC(true), withBearer("expired"))
		require.NotNil(t, res.decision)
		assert.Equal(t, fiber.StatusUnauthorized, res.decision.Status)
	})

	t.Run("rejection clears session cookies", func(t *testing.T) {
		verifier := &stubVerifier{result: &Result{IsValid: false}}
		guard, _ := newAuthGuard(config.EnvProduction, false, verifier)

		res := runCheck(t, guard, authRC(true), withBearer("bad"))
		require.NotNil(t, res.decision)

		cleared := map[string]bool{}
		for _, c := range res.resp.Cookies() {
			if c.Value == "" && c.Expires.Before(time.Now()) {
				cleared[c.Name] = true
			}
		}
		assert.True(t, cleared["dotmac_session"])
		assert.True(t, cleared["dotmac_refresh"])
	})
}

func TestGuard_VerifierFailure(t *testing.T) {
	verifierErr := fmt.Errorf("connection refused")

	t.Run("production rejects when the verifier is down", func(t *testing.T) {
		guard, sink := newAuthGuard(config.EnvProduction, false, &stubVerifier{err: verifierErr})

		res := runCheck(t, guard, authRC(true), withBearer(signedToken(t, time.Hour)))
		require.NotNil(t, res.decision)
		assert.Equal(t, fiber.StatusUnauthorized, res.decision.Status)

		records := sink.Records()
		require.NotEmpty(t, records)
		assert.Equal(t, audit.EventVerifierDown, records[0].EventType)
		assert.Equal(t, audit.SeverityHigh, records[0].Severity)
	})

	t.Run("production rejects even when local decode is enabled in config", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvProduction, true, &stubVerifier{err: verifierErr})

		res := runCheck(t, guard, authRC(true), withBearer(signedToken(t, time.Hour)))
		require.NotNil(t, res.decision)
	})

	t.Run("development with local decode accepts an unexpired token", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvDevelopment, true, &stubVerifier{err: verifierErr})

		rc := authRC(true)
		res := runCheck(t, guard, rc, withBearer(signedToken(t, time.Hour)))
		assert.Nil(t, res.decision)
	})

	t.Run("local decode still sets the refresh flag near expiry", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvDevelopment, true, &stubVerifier{err: verifierErr})

		rc := authRC(true)
		res := runCheck(t, guard, rc, withBearer(signedToken(t, 2*time.Minute)))
		assert.Nil(t, res.decision)
		assert.True(t, rc.RefreshRequired)
	})

	t.Run("local decode rejects an expired token", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvDevelopment, true, &stubVerifier{err: verifierErr})

		res := runCheck(t, guard, authRC(true), withBearer(signedToken(t, -time.Minute)))
		require.NotNil(t, res.decision)
	})

	t.Run("local decode rejects garbage tokens", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvDevelopment, true, &stubVerifier{err: verifierErr})

		res := runCheck(t, guard, authRC(true), withBearer("not-a-jwt"))
		require.NotNil(t, res.decision)
	})

	t.Run("development without the flag rejects", func(t *testing.T) {
		guard, _ := newAuthGuard(config.EnvDevelopment, false, &stubVerifier{err: verifierErr})

		res := runCheck(t, guard, authRC(true), withBearer(signedToken(t, time.Hour)))
		require.NotNil(t, res.decision)
	})
}

func TestLocalDecodeExpiry(t *testing.T) {
	t.Run("valid structure returns remaining lifetime", func(t *testing.T) {
		remaining, ok := localDecodeExpiry(signedToken(t, time.Hour))
		require.True(t, ok)
		assert.InDelta(t, 3600, remaining, 5)
	})

	t.Run("missing exp claim is not decodable", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
			jwt.MapClaims{"sub": "u"}).SignedString([]byte("k"))
		require.NoError(t, err)
		_, ok := localDecodeExpiry(token)
		assert.False(t, ok)
	})

	t.Run("malformed token is not decodable", func(t *testing.T) {
		_, ok := localDecodeExpiry("abc.def")
		assert.False(t, ok)
	})
}

// Package csrf implements double-submit anti-forgery protection: a
// per-session random token carried in a script-readable cookie must be
// echoed back in a request header on every state-changing request.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/storage/memory/v2"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/audit"
	"github.com/michaelayoade/dotmac-framework-sub018/internal/pipeline"
)

const (
	// CookieName is the cookie holding the issued token. Not HttpOnly:
	// portal front ends read it to populate the request header.
	CookieName = "dotmac_csrf_token"
	// HeaderName is the request header the client echoes the token in.
	HeaderName = "X-CSRF-Token"

	// tokenBytes gives 256 bits of entropy.
	tokenBytes = 32
	// TokenTTL bounds the cookie lifetime.
	TokenTTL = 24 * time.Hour
)

// Guard issues and validates double-submit tokens for one portal.
type Guard struct {
	sessionCookie string
	secureCookies bool
	recorder      *audit.Recorder

	// store binds tokens to sessions so concurrent first-requests from
	// the same session converge on a single token. mu serializes the
	// get-or-set pair; the storage backend has no compare-and-set.
	store *memory.Storage
	mu    sync.Mutex
}

// NewGuard creates a CSRF guard. sessionCookie names the session cookie
// used to bind token records; secureCookies should be true outside
// development.
func NewGuard(sessionCookie string, secureCookies bool, recorder *audit.Recorder) *Guard {
	return &Guard{
		sessionCookie: sessionCookie,
		secureCookies: secureCookies,
		recorder:      recorder,
		store: memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		}),
	}
}

// Close releases the token store.
func (g *Guard) Close() error {
	return g.store.Close()
}

// IssueStage returns the stage that attaches a token cookie to clients
// that have none. Idempotent: an existing cookie is never overwritten.
func (g *Guard) IssueStage() pipeline.Stage {
	return pipeline.Stage{Name: "csrf_issue", Run: g.issue}
}

// ValidateStage returns the stage enforcing the double-submit check on
// state-changing requests.
func (g *Guard) ValidateStage() pipeline.Stage {
	return pipeline.Stage{Name: "csrf_validate", Run: g.validate}
}

func (g *Guard) issue(c fiber.Ctx, rc *pipeline.RequestContext) (*pipeline.Decision, error) {
	if c.Cookies(CookieName) != "" {
		return nil, nil
	}

	token, err := g.tokenForSession(c.Cookies(g.sessionCookie))
	if err != nil {
		return nil, fmt.Errorf("csrf token generation: %w", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(TokenTTL),
		Secure:   g.secureCookies,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return nil, nil
}

// tokenForSession returns the session's token, minting one if absent.
// Anonymous clients (no session cookie) get an unbound fresh token; the
// double-submit comparison alone still protects them.
func (g *Guard) tokenForSession(sessionID string) (string, error) {
	if sessionID == "" {
		return generateToken()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, err := g.store.Get(sessionID); err == nil && len(existing) > 0 {
		return string(existing), nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := g.store.Set(sessionID, []byte(token), TokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

func (g *Guard) validate(c fiber.Ctx, rc *pipeline.RequestContext) (*pipeline.Decision, error) {
	if !isStateChanging(rc.Method) {
		return nil, nil
	}
	// Public routes and auth endpoints are exempt; auth endpoints carry
	// their own protection.
	if rc.IsPublic || rc.IsAuthEndpoint {
		return nil, nil
	}

	cookie := c.Cookies(CookieName)
	header := c.Get(HeaderName)
	if tokensMatch(cookie, header) {
		return nil, nil
	}

	g.recorder.Event(context.WithoutCancel(c.Context()), rc.AuditRequest(),
		audit.EventCSRFMismatch, audit.SeverityWarning,
		mismatchDetail(cookie, header))
	return pipeline.Reject(fiber.StatusForbidden, pipeline.CodeCSRFMismatch, "CSRF token missing or invalid"), nil
}

// tokensMatch requires both values present and byte-equal. The compare is
// constant-time.
func tokensMatch(cookie, header string) bool {
	if cookie == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) == 1
}

func mismatchDetail(cookie, header string) string {
	switch {
	case cookie == "" && header == "":
		return "cookie and header both absent"
	case cookie == "":
		return "cookie absent"
	case header == "":
		return "header absent"
	default:
		return "token mismatch"
	}
}

func isStateChanging(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

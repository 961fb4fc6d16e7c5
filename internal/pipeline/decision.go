package pipeline

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
)

// Stable machine-readable error codes so portal clients can distinguish
// failure classes programmatically.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeCSRFMismatch      = "CSRF_MISMATCH"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Decision is a terminal stage outcome. A nil Decision means "continue to
// the next stage".
type Decision struct {
	Status  int
	Code    string
	Message string
	// RetryAfter in seconds; only set for rate limit rejections.
	RetryAfter int
	// RedirectTo, when set, turns the decision into an HTTP redirect
	// (page routes) instead of a JSON error (API routes).
	RedirectTo string
}

// Reject builds a JSON-error decision.
func Reject(status int, code, message string) *Decision {
	return &Decision{Status: status, Code: code, Message: message}
}

// Redirect builds a redirect decision.
func Redirect(location string) *Decision {
	return &Decision{Status: fiber.StatusFound, RedirectTo: location}
}

// write sends the terminal response. Security headers are injected by the
// finalizers after this runs; Fiber keeps response headers mutable until
// the handler returns.
func (d *Decision) write(c fiber.Ctx) error {
	if d.RedirectTo != "" {
		return c.Redirect().Status(d.Status).To(d.RedirectTo)
	}
	if d.RetryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
	body := fiber.Map{
		"code":  d.Code,
		"error": d.Message,
	}
	if d.RetryAfter > 0 {
		body["retry_after"] = d.RetryAfter
	}
	return c.Status(d.Status).JSON(body)
}

// Package headers computes the security response header set for a portal.
// The policy is a pure function of (security level, environment,
// overrides); it holds no per-request state and is applied to every
// response, including short-circuited rejections.
package headers

import "github.com/michaelayoade/dotmac-framework-sub018/internal/config"

// Standard header names injected by the policy.
const (
	HeaderCSP               = "Content-Security-Policy"
	HeaderFrameOptions      = "X-Frame-Options"
	HeaderContentType       = "X-Content-Type-Options"
	HeaderReferrerPolicy    = "Referrer-Policy"
	HeaderPermissionsPolicy = "Permissions-Policy"
	HeaderHSTS              = "Strict-Transport-Security"
)

// Build returns the header set for a security level. Overrides replace
// computed values; an override with an empty value removes the header.
// HSTS is only emitted at high/maximum levels and never in development,
// where portals run over plain HTTP.
func Build(level config.SecurityLevel, isDevelopment bool, overrides map[string]string) map[string]string {
	h := map[string]string{
		HeaderContentType:    "nosniff",
		HeaderFrameOptions:   "SAMEORIGIN",
		HeaderReferrerPolicy: "strict-origin-when-cross-origin",
	}

	switch level {
	case config.SecurityLow:
		h[HeaderCSP] = "default-src 'self' 'unsafe-inline' 'unsafe-eval' data: blob: https:"
	case config.SecurityMedium:
		h[HeaderCSP] = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; " +
			"connect-src 'self' https:"
	case config.SecurityHigh:
		h[HeaderCSP] = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; connect-src 'self'; frame-ancestors 'self'"
		h[HeaderPermissionsPolicy] = "camera=(), microphone=(), geolocation=()"
	case config.SecurityMaximum:
		h[HeaderCSP] = "default-src 'self'; script-src 'self'; style-src 'self'; " +
			"img-src 'self'; connect-src 'self'; frame-ancestors 'none'; " +
			"form-action 'self'; base-uri 'self'"
		h[HeaderFrameOptions] = "DENY"
		h[HeaderPermissionsPolicy] = "camera=(), microphone=(), geolocation=(), payment=(), usb=()"
	}

	if !isDevelopment && (level == config.SecurityHigh || level == config.SecurityMaximum) {
		h[HeaderHSTS] = "max-age=31536000; includeSubDomains"
	}

	for name, value := range overrides {
		if value == "" {
			delete(h, name)
			continue
		}
		h[name] = value
	}
	return h
}

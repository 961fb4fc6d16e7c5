// Package logutil keeps credentials out of log lines and audit records.
package logutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Secret-shaped substrings that must never reach a sink verbatim.
var (
	// Three dot-separated base64url segments: a serialized JWT.
	jwtPattern = regexp.MustCompile(`\b[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{4,}\b`)
	// Bearer credentials inside quoted or copied header values.
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	// Long unbroken base64url/hex runs, the shape of session ids and
	// API keys.
	secretRunPattern = regexp.MustCompile(`\b[A-Za-z0-9_-]{32,}\b`)
)

// SanitizeDetail redacts token-shaped material from a free-form detail
// string before it is logged or written to an audit sink. The surrounding
// text is preserved so the message stays diagnosable.
//
// Example:
//
//	validate eyJhbGciOi....sflKxwRJ failed: signature mismatch
//	=> validate <redacted> failed: signature mismatch
func SanitizeDetail(detail string) string {
	detail = jwtPattern.ReplaceAllString(detail, "<redacted>")
	detail = bearerPattern.ReplaceAllString(detail, "Bearer <redacted>")
	detail = secretRunPattern.ReplaceAllString(detail, "<redacted>")
	return detail
}

// TokenFingerprint returns a short stable digest of a token so log lines
// can correlate repeated failures without carrying the credential itself.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// MaskEmail hides the local part of an address, keeping enough to match
// a support ticket against the log line.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local := email[:at]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + email[at:]
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + email[at:]
}

// Package routes implements path-pattern matching for route
// classification: public routes, CSRF-exempt routes, auth endpoints, and
// the static-asset exclusion list.
//
// Patterns are segment-based:
//   - a literal segment matches itself
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
package routes

import "strings"

// Matcher matches request paths against a fixed pattern list. Built once
// at startup, safe for concurrent use.
type Matcher struct {
	patterns [][]string
}

// NewMatcher compiles the given patterns.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{patterns: make([][]string, 0, len(patterns))}
	for _, p := range patterns {
		m.patterns = append(m.patterns, splitPath(p))
	}
	return m
}

// Match reports whether the path matches any pattern.
func (m *Matcher) Match(path string) bool {
	segs := splitPath(path)
	for _, pat := range m.patterns {
		if matchSegments(pat, segs) {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	switch pattern[0] {
	case "**":
		// Zero or more segments.
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(segs) == 0 {
			return false
		}
		return matchSegments(pattern[1:], segs[1:])
	default:
		if len(segs) == 0 || pattern[0] != segs[0] {
			return false
		}
		return matchSegments(pattern[1:], segs[1:])
	}
}

// DefaultExcludedPatterns lists paths the pipeline never runs for: static
// assets and framework-internal endpoints.
func DefaultExcludedPatterns() []string {
	return []string{
		"/assets/**",
		"/static/**",
		"/_next/**",
		"/favicon.ico",
		"/robots.txt",
		"/healthz",
		"/metrics",
	}
}

// DefaultAuthEndpointPatterns lists authentication endpoints. These carry
// their own protection (credential checks plus the tighter auth rate
// budget) and are exempt from CSRF double-submit validation.
func DefaultAuthEndpointPatterns() []string {
	return []string{
		"/api/auth/**",
		"/login",
		"/logout",
		"/register",
		"/forgot-password",
		"/reset-password/**",
	}
}

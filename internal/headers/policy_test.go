package headers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
)

func TestBuild_Levels(t *testing.T) {
	t.Run("every level sets the baseline headers", func(t *testing.T) {
		for _, level := range []config.SecurityLevel{
			config.SecurityLow, config.SecurityMedium, config.SecurityHigh, config.SecurityMaximum,
		} {
			h := Build(level, false, nil)
			assert.Equal(t, "nosniff", h[HeaderContentType], "level %s", level)
			assert.NotEmpty(t, h[HeaderCSP], "level %s", level)
			assert.NotEmpty(t, h[HeaderReferrerPolicy], "level %s", level)
		}
	})

	t.Run("low permits inline and eval", func(t *testing.T) {
		h := Build(config.SecurityLow, false, nil)
		assert.Contains(t, h[HeaderCSP], "'unsafe-eval'")
		assert.Equal(t, "SAMEORIGIN", h[HeaderFrameOptions])
	})

	t.Run("medium permits inline scripts but not eval", func(t *testing.T) {
		h := Build(config.SecurityMedium, false, nil)
		assert.Contains(t, h[HeaderCSP], "'unsafe-inline'")
		assert.NotContains(t, h[HeaderCSP], "'unsafe-eval'")
	})

	t.Run("high forbids inline scripts and sets permissions policy", func(t *testing.T) {
		h := Build(config.SecurityHigh, false, nil)
		assert.NotContains(t, scriptSrc(h[HeaderCSP]), "'unsafe-inline'")
		assert.NotEmpty(t, h[HeaderPermissionsPolicy])
	})

	t.Run("maximum denies framing entirely", func(t *testing.T) {
		h := Build(config.SecurityMaximum, false, nil)
		assert.Equal(t, "DENY", h[HeaderFrameOptions])
		assert.Contains(t, h[HeaderCSP], "frame-ancestors 'none'")
	})
}

func scriptSrc(csp string) string {
	for _, directive := range strings.Split(csp, ";") {
		directive = strings.TrimSpace(directive)
		if strings.HasPrefix(directive, "script-src") {
			return directive
		}
	}
	return ""
}

func TestBuild_HSTS(t *testing.T) {
	tests := []struct {
		name          string
		level         config.SecurityLevel
		isDevelopment bool
		wantHSTS      bool
	}{
		{"high in production", config.SecurityHigh, false, true},
		{"maximum in production", config.SecurityMaximum, false, true},
		{"high in development", config.SecurityHigh, true, false},
		{"maximum in development", config.SecurityMaximum, true, false},
		{"medium in production", config.SecurityMedium, false, false},
		{"low in production", config.SecurityLow, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Build(tt.level, tt.isDevelopment, nil)
			_, present := h[HeaderHSTS]
			assert.Equal(t, tt.wantHSTS, present)
		})
	}
}

func TestBuild_Overrides(t *testing.T) {
	t.Run("override replaces a computed value", func(t *testing.T) {
		h := Build(config.SecurityMedium, false, map[string]string{
			HeaderFrameOptions: "DENY",
		})
		assert.Equal(t, "DENY", h[HeaderFrameOptions])
	})

	t.Run("empty override removes the header", func(t *testing.T) {
		h := Build(config.SecurityMedium, false, map[string]string{
			HeaderCSP: "",
		})
		_, present := h[HeaderCSP]
		assert.False(t, present)
	})

	t.Run("override can add a header the policy does not compute", func(t *testing.T) {
		h := Build(config.SecurityLow, false, map[string]string{
			"X-Custom-Portal": "reseller",
		})
		assert.Equal(t, "reseller", h["X-Custom-Portal"])
	})
}

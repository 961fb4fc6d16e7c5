// Package config holds the immutable runtime configuration for the
// gatekeeper: server settings, auth verification settings, and the
// per-portal security profiles. Configuration is loaded once at startup
// and never mutated afterwards.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment identifies the deployment environment. Anything that is not
// explicitly development or staging is treated as production, so a missing
// or misspelled environment can never silently enable development-only
// trust paths.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ParseEnvironment maps a raw string onto an Environment. Unknown values
// resolve to production.
func ParseEnvironment(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "development", "dev", "local":
		return EnvDevelopment
	case "staging", "stage":
		return EnvStaging
	default:
		return EnvProduction
	}
}

// IsProduction reports whether the environment must be treated as production.
func (e Environment) IsProduction() bool {
	return e != EnvDevelopment && e != EnvStaging
}

// SecurityLevel selects a response header hardening profile.
type SecurityLevel string

const (
	SecurityLow     SecurityLevel = "low"
	SecurityMedium  SecurityLevel = "medium"
	SecurityHigh    SecurityLevel = "high"
	SecurityMaximum SecurityLevel = "maximum"
)

// AuditLevel controls audit record verbosity.
type AuditLevel string

const (
	AuditMinimal       AuditLevel = "minimal"
	AuditStandard      AuditLevel = "standard"
	AuditComprehensive AuditLevel = "comprehensive"
)

// RateBudget is a request budget over a rolling window.
type RateBudget struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// PortalConfig is the per-portal security profile. One instance exists per
// portal and is shared read-only by every request.
type PortalConfig struct {
	ID string `mapstructure:"id"`
	// BasePath is the URL prefix the portal is mounted under. Route
	// patterns and redirects are relative to it.
	BasePath        string            `mapstructure:"base_path"`
	PublicRoutes    []string          `mapstructure:"public_routes"`
	RequireAuth     bool              `mapstructure:"require_auth"`
	SecurityLevel   SecurityLevel     `mapstructure:"security_level"`
	AuditLevel      AuditLevel        `mapstructure:"audit_level"`
	GeneralBudget   RateBudget        `mapstructure:"general_budget"`
	AuthBudget      RateBudget        `mapstructure:"auth_budget"`
	HeaderOverrides map[string]string `mapstructure:"header_overrides"`
	// APIPrefixes mark route subtrees that get JSON errors instead of
	// login redirects.
	APIPrefixes []string `mapstructure:"api_prefixes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	// VerifyURL is the base URL of the identity service that owns token
	// verification (POST {VerifyURL}/auth/validate-token).
	VerifyURL     string        `mapstructure:"verify_url"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	// RefreshThreshold is the remaining-lifetime window below which a
	// still-valid token triggers the refresh-required signal.
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	// TrustLocalDecode allows a structure+expiry-only decode when the
	// verification service is unreachable. Never honored in production.
	TrustLocalDecode bool   `mapstructure:"trust_local_decode"`
	SessionCookie    string `mapstructure:"session_cookie"`
	RefreshCookie    string `mapstructure:"refresh_cookie"`
	LoginPath        string `mapstructure:"login_path"`
}

// RedisConfig holds optional Redis settings for distributed rate limiting
// and the streams audit sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config is the root configuration.
type Config struct {
	Environment Environment    `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Portals     []PortalConfig `mapstructure:"portals"`
}

// Defaults that apply when the config file or environment leaves a value
// unset.
const (
	DefaultAddress          = ":8443"
	DefaultVerifyTimeout    = 5 * time.Second
	DefaultRefreshThreshold = 300 * time.Second
	DefaultSessionCookie    = "dotmac_session"
	DefaultRefreshCookie    = "dotmac_refresh"
	DefaultLoginPath        = "/login"
	DefaultAuthBudgetMax    = 5
	DefaultAuthBudgetWindow = 15 * time.Minute
)

// Load reads configuration from the given file (optional) and from
// DOTMAC_-prefixed environment variables, applies defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOTMAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults double as key registrations: AutomaticEnv only surfaces
	// variables for keys viper knows about.
	v.SetDefault("environment", string(EnvProduction))
	v.SetDefault("server.address", DefaultAddress)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("auth.verify_url", "")
	v.SetDefault("auth.verify_timeout", DefaultVerifyTimeout)
	v.SetDefault("auth.refresh_threshold", DefaultRefreshThreshold)
	v.SetDefault("auth.session_cookie", DefaultSessionCookie)
	v.SetDefault("auth.refresh_cookie", DefaultRefreshCookie)
	v.SetDefault("auth.login_path", DefaultLoginPath)
	v.SetDefault("auth.trust_local_decode", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Environment = ParseEnvironment(string(cfg.Environment))
	if len(cfg.Portals) == 0 {
		cfg.Portals = DefaultPortals()
	}
	for i := range cfg.Portals {
		applyPortalDefaults(&cfg.Portals[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would weaken the
// gatekeeper at runtime.
func (c *Config) Validate() error {
	if c.Environment.IsProduction() && c.Auth.TrustLocalDecode {
		return fmt.Errorf("auth.trust_local_decode must not be enabled in production")
	}
	if c.Auth.VerifyURL == "" {
		return fmt.Errorf("auth.verify_url is required")
	}
	if c.Auth.VerifyTimeout <= 0 {
		return fmt.Errorf("auth.verify_timeout must be positive")
	}
	if c.Auth.RefreshThreshold <= 0 {
		return fmt.Errorf("auth.refresh_threshold must be positive")
	}
	if len(c.Portals) == 0 {
		return fmt.Errorf("at least one portal must be configured")
	}
	seen := make(map[string]bool, len(c.Portals))
	for i := range c.Portals {
		p := &c.Portals[i]
		if p.ID == "" {
			return fmt.Errorf("portal %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("portal %q: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if err := validateSecurityLevel(p.SecurityLevel); err != nil {
			return fmt.Errorf("portal %q: %w", p.ID, err)
		}
		if err := validateAuditLevel(p.AuditLevel); err != nil {
			return fmt.Errorf("portal %q: %w", p.ID, err)
		}
		if p.GeneralBudget.Max <= 0 || p.GeneralBudget.Window <= 0 {
			return fmt.Errorf("portal %q: general_budget must have positive max and window", p.ID)
		}
		if p.AuthBudget.Max <= 0 || p.AuthBudget.Window <= 0 {
			return fmt.Errorf("portal %q: auth_budget must have positive max and window", p.ID)
		}
	}
	return nil
}

func validateSecurityLevel(l SecurityLevel) error {
	switch l {
	case SecurityLow, SecurityMedium, SecurityHigh, SecurityMaximum:
		return nil
	}
	return fmt.Errorf("invalid security_level %q", l)
}

func validateAuditLevel(l AuditLevel) error {
	switch l {
	case AuditMinimal, AuditStandard, AuditComprehensive:
		return nil
	}
	return fmt.Errorf("invalid audit_level %q", l)
}

func applyPortalDefaults(p *PortalConfig) {
	if p.BasePath == "" && p.ID != "" {
		p.BasePath = "/" + p.ID
	}
	if p.SecurityLevel == "" {
		p.SecurityLevel = SecurityMedium
	}
	if p.AuditLevel == "" {
		p.AuditLevel = AuditStandard
	}
	if p.GeneralBudget.Max == 0 {
		p.GeneralBudget = RateBudget{Max: 300, Window: time.Minute}
	}
	if p.AuthBudget.Max == 0 {
		p.AuthBudget = RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow}
	}
	if len(p.APIPrefixes) == 0 {
		p.APIPrefixes = []string{"/api/**"}
	}
}

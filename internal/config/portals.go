package config

import "time"

// Portal identifiers for the six browser-facing applications.
const (
	PortalCustomer   = "customer"
	PortalAdmin      = "admin"
	PortalReseller   = "reseller"
	PortalTechnician = "technician"
	PortalTenant     = "tenant"
	PortalManagement = "management"
)

// DefaultPortals returns the built-in security profiles for the six
// portals. Deployments override individual portals through the config
// file; anything not overridden keeps these values.
func DefaultPortals() []PortalConfig {
	return []PortalConfig{
		{
			ID:            PortalCustomer,
			RequireAuth:   true,
			SecurityLevel: SecurityMedium,
			AuditLevel:    AuditStandard,
			PublicRoutes: []string{
				"/login", "/register", "/forgot-password", "/reset-password/**",
				"/api/auth/**", "/api/public/**",
			},
			GeneralBudget: RateBudget{Max: 300, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
		{
			ID:            PortalAdmin,
			RequireAuth:   true,
			SecurityLevel: SecurityHigh,
			AuditLevel:    AuditComprehensive,
			PublicRoutes:  []string{"/login", "/api/auth/**"},
			GeneralBudget: RateBudget{Max: 600, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
		{
			ID:            PortalReseller,
			RequireAuth:   true,
			SecurityLevel: SecurityMedium,
			AuditLevel:    AuditStandard,
			PublicRoutes:  []string{"/login", "/register", "/api/auth/**"},
			GeneralBudget: RateBudget{Max: 300, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
		{
			ID:            PortalTechnician,
			RequireAuth:   true,
			SecurityLevel: SecurityMedium,
			AuditLevel:    AuditStandard,
			PublicRoutes:  []string{"/login", "/api/auth/**"},
			// Field technicians sync work orders in bursts from mobile
			// clients, so the general budget is wider.
			GeneralBudget: RateBudget{Max: 600, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
		{
			ID:            PortalTenant,
			RequireAuth:   true,
			SecurityLevel: SecurityHigh,
			AuditLevel:    AuditStandard,
			PublicRoutes:  []string{"/login", "/api/auth/**"},
			GeneralBudget: RateBudget{Max: 300, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
		{
			ID:            PortalManagement,
			RequireAuth:   true,
			SecurityLevel: SecurityMaximum,
			AuditLevel:    AuditComprehensive,
			PublicRoutes:  []string{"/login", "/api/auth/**"},
			GeneralBudget: RateBudget{Max: 120, Window: time.Minute},
			AuthBudget:    RateBudget{Max: DefaultAuthBudgetMax, Window: DefaultAuthBudgetWindow},
			APIPrefixes:   []string{"/api/**"},
		},
	}
}

// Portal returns the configuration for the given portal id, or nil when it
// is not configured.
func (c *Config) Portal(id string) *PortalConfig {
	for i := range c.Portals {
		if c.Portals[i].ID == id {
			return &c.Portals[i]
		}
	}
	return nil
}

package middleware

import (
	"net/http"
	"strings"

	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/jwtutil"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantHeader and TenantQueryParam are the explicit tenant identifiers
const (
	TenantHeader     = "X-Tenant-ID"
	TenantQueryParam = "tenant_id"
)

// Endpoints that never carry a tenant: authentication entry points, health,
// metrics, and the whole management namespace.
var tenantExemptPrefixes = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh-token",
	"/health",
	"/metrics",
	"/management/",
}

func tenantExempt(path string) bool {
	for _, prefix := range tenantExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TenantResolver derives the active tenant for the request and attaches it to
// the context. Resolution order, first match wins:
//  1. X-Tenant-ID header
//  2. tenant_id query parameter
//  3. subdomain of the request host
//  4. tenant claim of a verified bearer token
//  5. tenant bound to a verified API key
//
// An explicit identifier that does not resolve to an active tenant is a hard
// 404; a request with no tenant signal at all proceeds without one.
func TenantResolver(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if tenantExempt(c.Request().URL.Path) {
			return next(c)
		}

		log := logger.FromContext(c)
		db := database.GetDB().WithContext(c.Request().Context())

		// 1+2: explicit identifier
		identifier := c.Request().Header.Get(TenantHeader)
		if identifier == "" {
			identifier = c.QueryParam(TenantQueryParam)
		}
		if identifier != "" {
			tenant, err := service.ResolveTenantByIdentifier(db, identifier)
			if err != nil {
				log.Warn("Explicit tenant identifier did not resolve",
					zap.String("identifier", identifier), zap.Error(err))
				prometheus.RecordAuthError("tenant_not_found")
				return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
			}
			setTenant(c, tenant)
			return next(c)
		}

		// 3: subdomain lookup
		if sub := subdomainOf(c.Request().Host); sub != "" {
			tenant, err := service.ResolveTenantBySubdomain(db, sub)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
			}
			if tenant != nil {
				setTenant(c, tenant)
				return next(c)
			}
		}

		// 4: tenant claim of a verified session token
		if claims, ok := c.Get("claims").(*jwtutil.UserClaims); ok && claims.TenantID != nil {
			tenant, err := service.GetTenantByID(db, *claims.TenantID)
			if err == nil {
				setTenant(c, tenant)
				return next(c)
			}
			log.Warn("Token tenant claim no longer resolves",
				zap.Uint("tenant_id", *claims.TenantID), zap.Error(err))
		}

		// 5: tenant bound to a verified API key
		if key, ok := c.Get("api_key").(*model.ApiKey); ok && key.TenantID != nil {
			tenant, err := service.GetTenantByID(db, *key.TenantID)
			if err == nil {
				setTenant(c, tenant)
				return next(c)
			}
		}

		return next(c)
	}
}

// RequireTenantContext rejects requests that reached a tenant-scoped endpoint
// without a resolved tenant.
func RequireTenantContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := c.Get("tenant").(*model.Tenant); !ok {
			logger.FromContext(c).Warn("Tenant context required but none resolved")
			prometheus.RecordAuthError("tenant_required")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant is required"})
		}
		return next(c)
	}
}

func setTenant(c echo.Context, tenant *model.Tenant) {
	c.Set("tenant", tenant)
	c.Set("tenant_id", tenant.ID)
}

// subdomainOf extracts the leftmost label of a multi-label host. Bare
// domains, IPs, and localhost yield no subdomain.
func subdomainOf(host string) string {
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	sub := parts[0]
	if sub == "www" {
		return ""
	}
	return sub
}

// TenantFromContext returns the resolved tenant, if any
func TenantFromContext(c echo.Context) *model.Tenant {
	if tenant, ok := c.Get("tenant").(*model.Tenant); ok {
		return tenant
	}
	return nil
}

package middleware

import (
	"net/http"

	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequirePermission guards a route behind a service:resource:action
// permission check against the authenticated user's effective roles in the
// resolved tenant. API-key callers are checked against the key's scopes
// instead.
func RequirePermission(svc, resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)
			db := database.GetDB().WithContext(c.Request().Context())

			// API-key bearers authorize through scopes
			if secret := ExtractApiKeySecret(c); secret != "" {
				_, err := service.VerifyApiKey(db, secret, &service.ScopeTriple{
					Service:  svc,
					Resource: resource,
					Action:   action,
				})
				if err != nil {
					log.Warn("API key scope check failed", zap.Error(err))
					prometheus.RecordPermissionCheck(false)
					return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient scope"})
				}
				prometheus.RecordPermissionCheck(true)
				return next(c)
			}

			userID, ok := c.Get("user_id").(uint)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			var tenantID *uint
			if tenant := TenantFromContext(c); tenant != nil {
				tenantID = &tenant.ID
			}

			granted, err := service.HasPermission(db, userID, tenantID, svc, resource, action)
			if err != nil {
				log.Error("Permission check failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "authorization check failed"})
			}
			prometheus.RecordPermissionCheck(granted)
			if !granted {
				log.Warn("Permission denied",
					zap.Uint("user_id", userID),
					zap.String("permission", svc+":"+resource+":"+action))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
			}
			return next(c)
		}
	}
}

package middleware

import (
	"net/http"
	"strings"

	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-Api-Key"

// ExtractApiKeySecret pulls a presented API key secret from the request:
// "Authorization: ApiKey <secret>" or "Bearer <secret>" (when the value
// carries the key tag), the X-Api-Key header, or the api_key query parameter.
func ExtractApiKeySecret(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 {
			scheme := strings.ToLower(parts[0])
			if scheme == "apikey" {
				return parts[1]
			}
			if scheme == "bearer" && strings.HasPrefix(parts[1], "idk_") {
				return parts[1]
			}
		}
	}
	if key := c.Request().Header.Get(apiKeyHeader); key != "" {
		return key
	}
	return c.QueryParam("api_key")
}

// ApiKeyAuthMiddleware authenticates requests that present an API key instead
// of a session token. Every authenticated key call is appended to the usage
// log after the handler runs; the log write never fails the request.
func ApiKeyAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		secret := ExtractApiKeySecret(c)
		if secret == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing api key"})
		}

		db := database.GetDB().WithContext(c.Request().Context())
		key, err := service.VerifyApiKey(db, secret, nil)
		if err != nil {
			log.Warn("API key verification failed", zap.Error(err))
			prometheus.RecordApiKeyVerification("invalid")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid api key"})
		}
		prometheus.RecordApiKeyVerification("ok")

		c.Set("api_key", key)
		if key.UserID != nil {
			c.Set("user_id", *key.UserID)
		}

		err = next(c)

		requestID, _ := c.Get(RequestIDKey).(string)
		service.LogApiKeyUsage(database.GetDB(), model.ApiKeyUsageLog{
			ApiKeyID:   key.ID,
			TenantID:   key.TenantID,
			Path:       c.Request().URL.Path,
			Method:     c.Request().Method,
			StatusCode: c.Response().Status,
			ClientIP:   c.RealIP(),
			RequestID:  requestID,
		})

		return err
	}
}

package handler

import (
	"net/http"
	"time"

	"identity-service/internal/middleware"
	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GenerateApiKey creates a new API key. The plaintext secret appears in this
// response and nowhere else, ever.
func GenerateApiKey(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApiKeyOperation("generate")

	var req struct {
		KeyType   string                `json:"key_type"`
		Name      string                `json:"name"`
		TenantID  *uint                 `json:"tenant_id,omitempty"`
		UserID    *uint                 `json:"user_id,omitempty"`
		ExpiresAt *time.Time            `json:"expires_at,omitempty"`
		Scopes    []service.ScopeTriple `json:"scopes,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// Default the owner from the caller's own context
	var owner model.KeyOwner
	switch req.KeyType {
	case model.KeyTypeSystem:
		tenantID := req.TenantID
		if tenantID == nil {
			if tenant := middleware.TenantFromContext(c); tenant != nil {
				tenantID = &tenant.ID
			}
		}
		if tenantID == nil {
			return errorResponse(c, service.ErrInvalidKeyRequest)
		}
		owner = model.SystemOwner(*tenantID)
	case model.KeyTypeUser, "":
		userID := req.UserID
		if userID == nil {
			if id, ok := c.Get("user_id").(uint); ok {
				userID = &id
			}
		}
		if userID == nil {
			return errorResponse(c, service.ErrInvalidKeyRequest)
		}
		owner = model.UserOwner(*userID)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key_type must be 'system' or 'user'"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("insert")(time.Now())
	generated, err := service.GenerateApiKey(db, owner, req.Name, req.ExpiresAt, req.Scopes, service.SettingsQuota{})
	if err != nil {
		log.Warn("API key generation failed", zap.String("name", req.Name), zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("API key generated",
		zap.Uint("api_key_id", generated.Key.ID),
		zap.String("prefix", generated.Key.Prefix),
		zap.String("key_type", generated.Key.KeyType))

	return c.JSON(http.StatusCreated, echo.Map{
		"key":    generated.Key,
		"secret": generated.Secret,
	})
}

// ListApiKeys lists the keys visible to the caller: the resolved tenant's
// keys, or the caller's own user keys outside a tenant context.
func ListApiKeys(c echo.Context) error {
	log := logger.FromContext(c)

	var tenantID, userID *uint
	if tenant := middleware.TenantFromContext(c); tenant != nil {
		tenantID = &tenant.ID
	} else if id, ok := c.Get("user_id").(uint); ok {
		userID = &id
	}

	db := database.GetDB().WithContext(c.Request().Context())
	keys, err := service.ListApiKeys(db, tenantID, userID)
	if err != nil {
		log.Error("Failed to list api keys", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list api keys"})
	}
	return c.JSON(http.StatusOK, echo.Map{"keys": keys})
}

// UpdateApiKey mutates name, active flag, expiry, and optionally replaces
// the scope set. key_type, hash and prefix never change.
func UpdateApiKey(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApiKeyOperation("update")

	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid api key id"})
	}

	var update service.ApiKeyUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("update")(time.Now())
	key, err := service.UpdateApiKey(db, id, update)
	if err != nil {
		log.Warn("API key update failed", zap.Uint("api_key_id", id), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"key": key})
}

// ApiKeyWhoami returns the identity behind the presenting API key
func ApiKeyWhoami(c echo.Context) error {
	key, ok := c.Get("api_key").(*model.ApiKey)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "api key required"})
	}
	response := echo.Map{
		"id":        key.ID,
		"key_type":  key.KeyType,
		"name":      key.Name,
		"prefix":    key.Prefix,
		"tenant_id": key.TenantID,
		"user_id":   key.UserID,
	}
	if tenant := middleware.TenantFromContext(c); tenant != nil {
		response["tenant"] = tenant
	}
	return c.JSON(http.StatusOK, response)
}

// DeleteApiKey hard-deletes a key with its scopes and usage logs
func DeleteApiKey(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApiKeyOperation("delete")

	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid api key id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := service.DeleteApiKey(db, id); err != nil {
		log.Warn("API key deletion failed", zap.Uint("api_key_id", id), zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("API key deleted", zap.Uint("api_key_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "api key deleted"})
}

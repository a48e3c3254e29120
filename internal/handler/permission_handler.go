package handler

import (
	"net/http"

	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CreatePermission creates a permission. The classification rules run before
// the write: a permission cannot be both system and tenant-level, system
// permissions carry no tenant, tenant-level permissions require one.
func CreatePermission(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Service       string `json:"service"`
		Resource      string `json:"resource"`
		Action        string `json:"action"`
		Code          string `json:"code,omitempty"`
		Description   string `json:"description,omitempty"`
		IsSystem      bool   `json:"is_system"`
		IsTenantLevel bool   `json:"is_tenant_level"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	perm := model.Permission{
		Service:       req.Service,
		Resource:      req.Resource,
		Action:        req.Action,
		Code:          req.Code,
		Description:   req.Description,
		IsSystem:      req.IsSystem,
		IsTenantLevel: req.IsTenantLevel,
		TenantID:      tenantScope(c),
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.CreatePermission(db, &perm); err != nil {
		log.Warn("Permission creation failed",
			zap.String("service", req.Service),
			zap.String("resource", req.Resource),
			zap.String("action", req.Action),
			zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("Permission created", zap.Uint("permission_id", perm.ID), zap.String("code", perm.Code))
	return c.JSON(http.StatusCreated, echo.Map{"permission": perm})
}

// ListPermissions lists system permissions plus the resolved tenant's own
func ListPermissions(c echo.Context) error {
	db := database.GetDB().WithContext(c.Request().Context())
	perms, err := service.ListPermissions(db, tenantScope(c))
	if err != nil {
		logger.FromContext(c).Error("Failed to list permissions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list permissions"})
	}
	return c.JSON(http.StatusOK, echo.Map{"permissions": perms})
}

// GetPermission returns one permission
func GetPermission(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permission id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	perm, err := service.GetPermission(db, id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"permission": perm})
}

// UpdatePermission mutates a permission, re-validating its classification
func UpdatePermission(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permission id"})
	}

	var req struct {
		Description   *string `json:"description,omitempty"`
		IsSystem      *bool   `json:"is_system,omitempty"`
		IsTenantLevel *bool   `json:"is_tenant_level,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsSystem != nil {
		updates["is_system"] = *req.IsSystem
	}
	if req.IsTenantLevel != nil {
		updates["is_tenant_level"] = *req.IsTenantLevel
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	perm, err := service.UpdatePermission(db, id, updates)
	if err != nil {
		log.Warn("Permission update failed", zap.Uint("permission_id", id), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"permission": perm})
}

// DeletePermission removes a permission and its role assignments
func DeletePermission(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permission id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.DeletePermission(db, id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "permission deleted"})
}

package handler

import (
	"net/http"
	"strconv"

	"identity-service/internal/middleware"
	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func tenantScope(c echo.Context) *uint {
	if tenant := middleware.TenantFromContext(c); tenant != nil {
		return &tenant.ID
	}
	return nil
}

func pathID(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// CreateRole creates a role in the resolved tenant's scope, or a global role
// when no tenant is resolved.
func CreateRole(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
		IsDefault   bool   `json:"is_default"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	role := model.Role{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		TenantID:    tenantScope(c),
		IsDefault:   req.IsDefault,
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.CreateRole(db, &role); err != nil {
		log.Warn("Role creation failed", zap.String("code", req.Code), zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("Role created", zap.Uint("role_id", role.ID), zap.String("code", role.Code))
	return c.JSON(http.StatusCreated, echo.Map{"role": role})
}

// ListRoles lists global roles plus the resolved tenant's roles
func ListRoles(c echo.Context) error {
	db := database.GetDB().WithContext(c.Request().Context())
	roles, err := service.ListRoles(db, tenantScope(c))
	if err != nil {
		logger.FromContext(c).Error("Failed to list roles", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list roles"})
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

// GetRole returns one role with its permissions
func GetRole(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	role, err := service.GetRole(db, id)
	if err != nil {
		return errorResponse(c, err)
	}
	perms, err := service.ListRolePermissions(db, role.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list role permissions"})
	}
	return c.JSON(http.StatusOK, echo.Map{"role": role, "permissions": perms})
}

// UpdateRole mutates a role; system roles reject key-field changes
func UpdateRole(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	var req struct {
		Code        *string `json:"code,omitempty"`
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.Code != nil {
		updates["code"] = *req.Code
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	role, err := service.UpdateRole(db, id, updates)
	if err != nil {
		log.Warn("Role update failed", zap.Uint("role_id", id), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"role": role})
}

// SetDefaultRole makes the role the single default in its scope
func SetDefaultRole(c echo.Context) error {
	log := logger.FromContext(c)

	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.SetDefaultRole(db, id); err != nil {
		log.Warn("Failed to set default role", zap.Uint("role_id", id), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "default role updated"})
}

// DeleteRole removes a non-system role with its assignments
func DeleteRole(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.DeleteRole(db, id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role deleted"})
}

// AssignPermission attaches a permission to a role, idempotently
func AssignPermission(c echo.Context) error {
	roleID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	var req struct {
		PermissionID uint `json:"permission_id"`
	}
	if err := c.Bind(&req); err != nil || req.PermissionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "permission_id is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.AssignPermissionToRole(db, roleID, req.PermissionID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "permission assigned"})
}

// RemovePermission detaches a permission from a role; a no-op when not held
func RemovePermission(c echo.Context) error {
	roleID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}
	permID, ok := pathID(c, "permission_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid permission id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.RemovePermissionFromRole(db, roleID, permID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "permission removed"})
}

// AssignRole attaches a role to a user, idempotently
func AssignRole(c echo.Context) error {
	var req struct {
		UserID uint `json:"user_id"`
		RoleID uint `json:"role_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 || req.RoleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and role_id are required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.AssignRoleToUser(db, req.UserID, req.RoleID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role assigned"})
}

// RemoveRole detaches a role from a user; a no-op when not held
func RemoveRole(c echo.Context) error {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	roleID, ok := pathID(c, "role_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.RemoveRoleFromUser(db, userID, roleID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role removed"})
}

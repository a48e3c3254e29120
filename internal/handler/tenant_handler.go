package handler

import (
	"net/http"
	"strconv"
	"time"

	"identity-service/internal/middleware"
	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/database"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CreateTenant handles tenant provisioning. The creator becomes the tenant's
// owner in the same transaction.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_tenant_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name        string         `json:"name"`
		Slug        string         `json:"slug"`
		Subdomain   string         `json:"subdomain"`
		Description string         `json:"description"`
		Settings    datatypes.JSON `json:"settings,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("insert")(time.Now())
	tenant := model.Tenant{
		Name:        req.Name,
		Slug:        req.Slug,
		Subdomain:   req.Subdomain,
		Description: req.Description,
		Settings:    req.Settings,
	}
	if err := service.CreateTenant(db, &tenant, userID); err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		prometheus.RecordAuthError("tenant_creation_failed")
		return errorResponse(c, err)
	}

	log.Info("Tenant created",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.Uint("owner_id", userID))
	return c.JSON(http.StatusCreated, echo.Map{"tenant": tenant})
}

// ListUserTenants returns the tenants the authenticated user belongs to
func ListUserTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("query")(time.Now())
	memberships, err := service.ListUserTenants(db, userID)
	if err != nil {
		log.Error("Failed to list tenants", zap.Uint("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list tenants"})
	}

	return c.JSON(http.StatusOK, echo.Map{"memberships": memberships})
}

// GetTenant returns one tenant; the caller must have it as resolved context
func GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	tenant, err := service.GetTenantByID(db, uint(id))
	if err != nil {
		log.Warn("Tenant lookup failed", zap.Uint64("tenant_id", id), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"tenant": tenant})
}

// AddTenantMember associates a user with the resolved tenant
func AddTenantMember(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("add_member")

	tenant := middleware.TenantFromContext(c)
	if tenant == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant is required"})
	}

	var req struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())

	defer prometheus.TrackDBOperation("insert")(time.Now())
	membership, err := service.AddTenantMember(db, tenant.ID, req.UserID, req.Role, service.SettingsQuota{})
	if err != nil {
		log.Warn("Failed to add tenant member",
			zap.Uint("tenant_id", tenant.ID),
			zap.Uint("user_id", req.UserID),
			zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("User added to tenant",
		zap.Uint("tenant_id", tenant.ID),
		zap.Uint("user_id", req.UserID),
		zap.String("role", membership.Role))
	return c.JSON(http.StatusCreated, echo.Map{"membership": membership})
}

// RemoveTenantMember deactivates a user's membership in the resolved tenant
func RemoveTenantMember(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("remove_member")

	tenant := middleware.TenantFromContext(c)
	if tenant == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant is required"})
	}

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.RemoveTenantMember(db, tenant.ID, uint(userID)); err != nil {
		log.Warn("Failed to remove tenant member", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "member removed"})
}

// TransferOwnership moves tenant ownership to another active member
func TransferOwnership(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("transfer_ownership")

	tenant := middleware.TenantFromContext(c)
	if tenant == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant is required"})
	}

	var req struct {
		NewOwnerID uint `json:"new_owner_id"`
	}
	if err := c.Bind(&req); err != nil || req.NewOwnerID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new_owner_id is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.TransferOwnership(db, tenant.ID, req.NewOwnerID); err != nil {
		log.Warn("Ownership transfer failed",
			zap.Uint("tenant_id", tenant.ID),
			zap.Uint("new_owner_id", req.NewOwnerID),
			zap.Error(err))
		return errorResponse(c, err)
	}

	log.Info("Tenant ownership transferred",
		zap.Uint("tenant_id", tenant.ID),
		zap.Uint("new_owner_id", req.NewOwnerID))
	return c.JSON(http.StatusOK, echo.Map{"message": "ownership transferred"})
}

// SetDefaultTenant marks the resolved tenant as the user's default
func SetDefaultTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("set_default")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil || req.TenantID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.SetDefaultTenant(db, userID, req.TenantID); err != nil {
		log.Warn("Failed to set default tenant", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "default tenant updated"})
}

package handler

import (
	"errors"
	"net/http"

	"identity-service/internal/service"

	"github.com/labstack/echo/v4"
)

// errorResponse maps the service error taxonomy to HTTP statuses.
// Authentication failures are 401, authorization failures 403, integrity and
// validation problems 400, and brute-force blocks 429.
func errorResponse(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message, "field": ve.Field})
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrTokenRevoked):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotTenantMember),
		errors.Is(err, service.ErrInsufficientScope),
		errors.Is(err, service.ErrKeyExpiredOrInactive),
		errors.Is(err, service.ErrQuotaExceeded),
		errors.Is(err, service.ErrAdminRequired):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrLoginBlocked):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrTenantRequired),
		errors.Is(err, service.ErrInvalidPermissionClassification),
		errors.Is(err, service.ErrDuplicateRoleCode),
		errors.Is(err, service.ErrInvalidKeyRequest),
		errors.Is(err, service.ErrSystemRoleImmutable),
		errors.Is(err, service.ErrOwnershipTransferTargetNotMember):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

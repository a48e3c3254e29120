package handler

import (
	"errors"
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

var lockoutPolicy = service.DefaultLockoutPolicy

// SetLockoutPolicy configures the brute-force guard used by the login handlers
func SetLockoutPolicy(policy service.LockoutPolicy) {
	lockoutPolicy = policy
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user by password and returns a token pair. When the
// tenant resolver attached a tenant, the session is bound to it and the user
// must hold an active membership.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.With(map[string]string{"kind": "user"}).Inc()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	tenant := middleware.TenantFromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	result, err := service.Authenticate(db, req.Username, req.Password, c.RealIP(), tenant, lockoutPolicy)
	if err != nil {
		log.Warn("Login failed", zap.String("username", req.Username), zap.Error(err))
		if errors.Is(err, service.ErrLoginBlocked) {
			prometheus.BlockedLoginCounter.Inc()
		}
		prometheus.RecordAuthError("login_failed")
		return errorResponse(c, err)
	}

	prometheus.RecordTokenOperation("issue")
	prometheus.IncreaseActiveTokens()
	log.Info("User logged in", zap.String("email", result.User.Email))

	response := echo.Map{
		"user":          result.User,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	}
	if result.Tenant != nil {
		response["tenant"] = map[string]interface{}{
			"id":   result.Tenant.ID,
			"name": result.Tenant.Name,
			"role": result.Membership.Role,
		}
	}
	return c.JSON(http.StatusOK, response)
}

// AdminLogin is the management login: staff or superuser only, and the
// issued tokens carry the admin claims.
func AdminLogin(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.With(map[string]string{"kind": "admin"}).Inc()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse admin login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	result, err := service.AuthenticateAdmin(db, req.Username, req.Password, c.RealIP(), lockoutPolicy)
	if err != nil {
		log.Warn("Admin login failed", zap.String("username", req.Username), zap.Error(err))
		if errors.Is(err, service.ErrLoginBlocked) {
			prometheus.BlockedLoginCounter.Inc()
		}
		prometheus.RecordAuthError("admin_login_failed")
		return errorResponse(c, err)
	}

	prometheus.RecordTokenOperation("issue")
	prometheus.IncreaseActiveTokens()
	log.Info("Admin logged in", zap.String("email", result.User.Email))

	return c.JSON(http.StatusOK, echo.Map{
		"user":          result.User,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	})
}

// RefreshToken exchanges a refresh token for a fresh pair. Claims, including
// admin and tenant claims, are carried forward unchanged.
func RefreshToken(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	pair, err := service.Refresh(db, req.Refresh)
	if err != nil {
		log.Warn("Token refresh failed", zap.Error(err))
		prometheus.RecordAuthError("refresh_failed")
		return errorResponse(c, err)
	}

	prometheus.RecordTokenOperation("refresh")
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Logout blacklists the presented refresh token
func Logout(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token is required"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	if err := service.Logout(db, req.Refresh); err != nil {
		log.Warn("Logout failed", zap.Error(err))
		return errorResponse(c, err)
	}

	prometheus.RecordTokenOperation("revoke")
	prometheus.DecreaseActiveTokens()
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Register creates a new user account. Under a tenant context the tenant's
// user quota applies and a membership is created.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db := database.GetDB().WithContext(c.Request().Context())
	tenant := middleware.TenantFromContext(c)

	defer prometheus.TrackDBOperation("insert")(time.Now())
	user, err := service.Register(db, req.Email, req.Username, req.Password, tenant, service.SettingsQuota{})
	if err != nil {
		log.Warn("Registration failed", zap.String("email", req.Email), zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return errorResponse(c, err)
	}

	log.Info("User registered", zap.String("email", user.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

// VerifyApiKey checks a presented key secret and, when a scope triple is
// supplied, that the key holds the scope. Responses never distinguish a
// missing key from an inactive or expired one.
func VerifyApiKey(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Key      string `json:"key"`
		Service  string `json:"service,omitempty"`
		Resource string `json:"resource,omitempty"`
		Action   string `json:"action,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Key == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key is required"})
	}

	var scope *service.ScopeTriple
	if req.Service != "" || req.Resource != "" || req.Action != "" {
		scope = &service.ScopeTriple{Service: req.Service, Resource: req.Resource, Action: req.Action}
	}

	db := database.GetDB().WithContext(c.Request().Context())
	key, err := service.VerifyApiKey(db, req.Key, scope)
	if err != nil {
		log.Warn("API key verification failed", zap.Error(err))
		if errors.Is(err, service.ErrInsufficientScope) {
			prometheus.RecordApiKeyVerification("insufficient_scope")
		} else {
			prometheus.RecordApiKeyVerification("invalid")
		}
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid api key or insufficient scope"})
	}

	prometheus.RecordApiKeyVerification("ok")

	requestID, _ := c.Get(middleware.RequestIDKey).(string)
	service.LogApiKeyUsage(database.GetDB(), model.ApiKeyUsageLog{
		ApiKeyID:   key.ID,
		TenantID:   key.TenantID,
		Path:       c.Request().URL.Path,
		Method:     c.Request().Method,
		StatusCode: http.StatusOK,
		ClientIP:   c.RealIP(),
		RequestID:  requestID,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"id":           key.ID,
		"key_type":     key.KeyType,
		"name":         key.Name,
		"prefix":       key.Prefix,
		"tenant_id":    key.TenantID,
		"user_id":      key.UserID,
		"expires_at":   key.ExpiresAt,
		"last_used_at": key.LastUsedAt,
	})
}

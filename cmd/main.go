package main

import (
	"identity-service/internal/handler"
	"identity-service/internal/middleware"
	"identity-service/internal/service"
	"identity-service/pkg/config"
	"identity-service/pkg/database"
	"identity-service/pkg/jwtutil"
	"identity-service/pkg/logger"
	"identity-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting identity service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Configure the brute-force guard
	handler.SetLockoutPolicy(service.LockoutPolicy{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Window:      cfg.Lockout.Window,
	})

	// Configure API key generation
	service.ConfigureKeyGeneration(cfg.APIKey.SecretBytes, cfg.APIKey.PrefixLength)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	auth := e.Group("/auth", middleware.TenantResolver)
	auth.POST("/login", handler.Login)
	auth.POST("/register", handler.Register)
	auth.POST("/refresh-token", handler.RefreshToken)
	auth.POST("/logout", handler.Logout)
	auth.POST("/verify-api-key", handler.VerifyApiKey)

	// Management namespace - admin tokens only, bypasses tenant resolution
	management := e.Group("/management")
	management.POST("/auth/login", handler.AdminLogin)
	managementAPI := management.Group("", middleware.AuthMiddleware, middleware.RequireAdmin)
	managementAPI.POST("/roles", handler.CreateRole)
	managementAPI.POST("/permissions", handler.CreatePermission)
	managementAPI.POST("/user-roles", handler.AssignRole)
	managementAPI.DELETE("/user-roles/:user_id/:role_id", handler.RemoveRole)

	// API routes - all require authentication and pass the tenant resolver
	api := e.Group("/api", middleware.AuthMiddleware, middleware.TenantResolver)

	// User management
	users := api.Group("/users")
	users.GET("/profile", handler.GetProfile)
	users.PATCH("/profile", handler.UpdateProfile)
	users.POST("/change-password", handler.ChangePassword)

	// Tenant management - doesn't require tenant context
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant)
	tenants.GET("", handler.ListUserTenants)
	tenants.POST("/default", handler.SetDefaultTenant)

	// Tenant-specific operations - require tenant context
	tenantSpecific := api.Group("/tenants", middleware.RequireTenantContext)
	tenantSpecific.GET("/:id", handler.GetTenant)
	tenantSpecific.POST("/members", handler.AddTenantMember)
	tenantSpecific.DELETE("/members/:user_id", handler.RemoveTenantMember)
	tenantSpecific.POST("/transfer-ownership", handler.TransferOwnership)

	// Role management
	roles := api.Group("/roles")
	roles.POST("", handler.CreateRole, middleware.RequirePermission("auth", "roles", "create"))
	roles.GET("", handler.ListRoles)
	roles.GET("/:id", handler.GetRole)
	roles.PATCH("/:id", handler.UpdateRole, middleware.RequirePermission("auth", "roles", "update"))
	roles.DELETE("/:id", handler.DeleteRole, middleware.RequirePermission("auth", "roles", "delete"))
	roles.POST("/:id/default", handler.SetDefaultRole, middleware.RequirePermission("auth", "roles", "update"))
	roles.POST("/:id/permissions", handler.AssignPermission, middleware.RequirePermission("auth", "roles", "update"))
	roles.DELETE("/:id/permissions/:permission_id", handler.RemovePermission, middleware.RequirePermission("auth", "roles", "update"))

	// Permission management
	permissions := api.Group("/permissions")
	permissions.POST("", handler.CreatePermission, middleware.RequirePermission("auth", "permissions", "create"))
	permissions.GET("", handler.ListPermissions)
	permissions.GET("/:id", handler.GetPermission)
	permissions.PATCH("/:id", handler.UpdatePermission, middleware.RequirePermission("auth", "permissions", "update"))
	permissions.DELETE("/:id", handler.DeletePermission, middleware.RequirePermission("auth", "permissions", "delete"))

	// API key management
	apiKeys := api.Group("/api-keys")
	apiKeys.POST("", handler.GenerateApiKey)
	apiKeys.GET("", handler.ListApiKeys)
	apiKeys.PATCH("/:id", handler.UpdateApiKey)
	apiKeys.DELETE("/:id", handler.DeleteApiKey)

	// Machine callers present an API key instead of a session token
	machine := e.Group("/machine", middleware.ApiKeyAuthMiddleware, middleware.TenantResolver)
	machine.GET("/whoami", handler.ApiKeyWhoami)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

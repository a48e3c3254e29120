package database

import (
	"identity-service/internal/model"
	"identity-service/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB initializes the database connection with the provided configuration
func InitDB(cfg *config.Config) error {
	var err error

	// Set default log level if not specified
	logLevel := cfg.DB.LogLevel
	if logLevel == 0 {
		logLevel = logger.Warn
	}

	// Connect with PreferSimpleProtocol to prevent "prepared statement already
	// exists" errors behind connection poolers
	pgConfig := postgres.Config{
		DSN:                  cfg.DB.GetDSN(),
		PreferSimpleProtocol: true,
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return err
	}

	// Configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	if cfg.DB.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}

	if cfg.DB.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}

	if cfg.DB.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	}

	return Migrate(DB)
}

// Migrate creates or updates the table structure for all models. Uniqueness
// constraints declared on the models are the primary defense against races
// between concurrent create requests, so they must exist at the store level.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Tenant{},
		&model.TenantMembership{},
		&model.Role{},
		&model.Permission{},
		&model.RolePermission{},
		&model.UserRole{},
		&model.ApiKey{},
		&model.ApiKeyScope{},
		&model.ApiKeyUsageLog{},
		&model.LoginAttempt{},
		&model.RevokedToken{},
	); err != nil {
		return err
	}

	// The composite (code, tenant_id) index does not constrain global roles
	// because SQL treats NULL tenant ids as distinct values. A partial index
	// over the NULL partition closes that gap.
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_role_code_global ON roles (code) WHERE tenant_id IS NULL",
	).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

package service

import (
	"testing"

	"identity-service/internal/model"
	"identity-service/pkg/database"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory database per test and migrates the
// full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email, username, password string) *model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := model.User{
		Email:    email,
		Username: username,
		Password: string(hashed),
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createTestTenant(t *testing.T, db *gorm.DB, slug string) *model.Tenant {
	t.Helper()
	tenant := model.Tenant{
		Name:      slug,
		Slug:      slug,
		Subdomain: slug,
		Active:    true,
	}
	require.NoError(t, db.Create(&tenant).Error)
	return &tenant
}

func addMembership(t *testing.T, db *gorm.DB, userID, tenantID uint, role string) {
	t.Helper()
	membership := model.TenantMembership{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Active:   true,
	}
	require.NoError(t, db.Create(&membership).Error)
}

package service

import (
	"testing"

	"identity-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSystemPermission(t *testing.T) {
	db := setupTestDB(t)

	perm := model.Permission{
		Service:  "auth",
		Resource: "users",
		Action:   "read",
		IsSystem: true,
	}
	require.NoError(t, CreatePermission(db, &perm))
	assert.Equal(t, "auth:users:read", perm.Code)
}

func TestSystemPermissionWithTenantRejected(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	perm := model.Permission{
		Service:  "auth",
		Resource: "users",
		Action:   "read",
		IsSystem: true,
		TenantID: &tenant.ID,
	}
	err := CreatePermission(db, &perm)
	assert.ErrorIs(t, err, ErrInvalidPermissionClassification)

	var count int64
	require.NoError(t, db.Model(&model.Permission{}).Count(&count).Error)
	assert.Zero(t, count, "rejected permission must not be written")
}

func TestSystemAndTenantLevelMutuallyExclusive(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	perm := model.Permission{
		Service:       "billing",
		Resource:      "orders",
		Action:        "read",
		IsSystem:      true,
		IsTenantLevel: true,
		TenantID:      &tenant.ID,
	}
	assert.ErrorIs(t, CreatePermission(db, &perm), ErrInvalidPermissionClassification)
}

func TestTenantLevelPermissionRequiresTenant(t *testing.T) {
	db := setupTestDB(t)

	perm := model.Permission{
		Service:       "billing",
		Resource:      "orders",
		Action:        "read",
		IsTenantLevel: true,
	}
	assert.ErrorIs(t, CreatePermission(db, &perm), ErrInvalidPermissionClassification)
}

func TestUpdatePermissionIntoInvalidClassification(t *testing.T) {
	db := setupTestDB(t)

	perm := model.Permission{
		Service:  "auth",
		Resource: "users",
		Action:   "read",
		IsSystem: true,
	}
	require.NoError(t, CreatePermission(db, &perm))

	// Making a system permission tenant-level in one update must fail
	_, err := UpdatePermission(db, perm.ID, map[string]interface{}{
		"is_tenant_level": true,
	})
	assert.ErrorIs(t, err, ErrInvalidPermissionClassification)

	got, err := GetPermission(db, perm.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSystem)
	assert.False(t, got.IsTenantLevel)
}

func TestListPermissionsScoping(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")
	other := createTestTenant(t, db, "globex")

	require.NoError(t, CreatePermission(db, &model.Permission{
		Service: "auth", Resource: "users", Action: "read", IsSystem: true,
	}))
	require.NoError(t, CreatePermission(db, &model.Permission{
		Service: "billing", Resource: "orders", Action: "read",
		IsTenantLevel: true, TenantID: &tenant.ID,
	}))
	require.NoError(t, CreatePermission(db, &model.Permission{
		Service: "billing", Resource: "invoices", Action: "read",
		IsTenantLevel: true, TenantID: &other.ID,
	}))

	perms, err := ListPermissions(db, &tenant.ID)
	require.NoError(t, err)
	require.Len(t, perms, 2)

	global, err := ListPermissions(db, nil)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "auth:users:read", global[0].Code)
}

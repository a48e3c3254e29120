package service

import (
	"testing"

	"identity-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateRoleCodeWithinScope(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	require.NoError(t, CreateRole(db, &model.Role{Code: "editor", Name: "Editor", TenantID: &tenant.ID}))
	err := CreateRole(db, &model.Role{Code: "editor", Name: "Editor again", TenantID: &tenant.ID})
	assert.ErrorIs(t, err, ErrDuplicateRoleCode)

	// The same code in another scope is a different partition
	require.NoError(t, CreateRole(db, &model.Role{Code: "editor", Name: "Global editor"}))
}

func TestRoleCodeUniquenessHeldByStore(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	// Two concurrent creates can both pass the application-level count check,
	// so the store itself must reject the second insert in either scope.
	require.NoError(t, db.Create(&model.Role{Code: "editor", Name: "Editor"}).Error)
	err := db.Create(&model.Role{Code: "editor", Name: "Editor racer"}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	require.NoError(t, db.Create(&model.Role{Code: "editor", Name: "Tenant editor", TenantID: &tenant.ID}).Error)
	err = db.Create(&model.Role{Code: "editor", Name: "Tenant racer", TenantID: &tenant.ID}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	// The service surfaces the duplicate as its own error
	assert.ErrorIs(t, CreateRole(db, &model.Role{Code: "editor", Name: "Another"}), ErrDuplicateRoleCode)
}

func TestSetDefaultRoleKeepsSingleDefaultPerScope(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	first := model.Role{Code: "member", Name: "Member", TenantID: &tenant.ID, IsDefault: true}
	require.NoError(t, CreateRole(db, &first))
	second := model.Role{Code: "viewer", Name: "Viewer", TenantID: &tenant.ID}
	require.NoError(t, CreateRole(db, &second))

	// A global default lives in an independent partition
	global := model.Role{Code: "basic", Name: "Basic", IsDefault: true}
	require.NoError(t, CreateRole(db, &global))

	require.NoError(t, SetDefaultRole(db, second.ID))

	var defaults []model.Role
	require.NoError(t, db.Where("is_default = ? AND tenant_id = ?", true, tenant.ID).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	assert.Equal(t, second.ID, defaults[0].ID)

	// The global default is untouched
	var globalDefaults int64
	require.NoError(t, db.Model(&model.Role{}).
		Where("is_default = ? AND tenant_id IS NULL", true).Count(&globalDefaults).Error)
	assert.EqualValues(t, 1, globalDefaults)
}

func TestCreateDefaultRoleDemotesPrevious(t *testing.T) {
	db := setupTestDB(t)

	first := model.Role{Code: "basic", Name: "Basic", IsDefault: true}
	require.NoError(t, CreateRole(db, &first))
	second := model.Role{Code: "starter", Name: "Starter", IsDefault: true}
	require.NoError(t, CreateRole(db, &second))

	var defaults []model.Role
	require.NoError(t, db.Where("is_default = ? AND tenant_id IS NULL", true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	assert.Equal(t, second.ID, defaults[0].ID)
}

func TestSystemRoleKeyFieldsImmutable(t *testing.T) {
	db := setupTestDB(t)

	role := model.Role{Code: "superadmin", Name: "Super Admin", IsSystem: true}
	require.NoError(t, db.Create(&role).Error)

	_, err := UpdateRole(db, role.ID, map[string]interface{}{"code": "other"})
	assert.ErrorIs(t, err, ErrSystemRoleImmutable)
	_, err = UpdateRole(db, role.ID, map[string]interface{}{"is_system": false})
	assert.ErrorIs(t, err, ErrSystemRoleImmutable)

	// Non-key fields stay mutable
	updated, err := UpdateRole(db, role.ID, map[string]interface{}{"name": "Root"})
	require.NoError(t, err)
	assert.Equal(t, "Root", updated.Name)

	assert.ErrorIs(t, DeleteRole(db, role.ID), ErrSystemRoleImmutable)
}

func TestAssignPermissionIdempotent(t *testing.T) {
	db := setupTestDB(t)

	role := model.Role{Code: "editor", Name: "Editor"}
	require.NoError(t, CreateRole(db, &role))
	perm := model.Permission{Service: "auth", Resource: "users", Action: "read", IsSystem: true}
	require.NoError(t, CreatePermission(db, &perm))

	require.NoError(t, AssignPermissionToRole(db, role.ID, perm.ID))
	require.NoError(t, AssignPermissionToRole(db, role.ID, perm.ID))

	var count int64
	require.NoError(t, db.Model(&model.RolePermission{}).
		Where("role_id = ?", role.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Removing twice is also a no-op, not an error
	require.NoError(t, RemovePermissionFromRole(db, role.ID, perm.ID))
	require.NoError(t, RemovePermissionFromRole(db, role.ID, perm.ID))
}

func TestAssignRoleToUserIdempotent(t *testing.T) {
	db := setupTestDB(t)

	user := createTestUser(t, db, "bob@example.com", "bob", "secret")
	role := model.Role{Code: "editor", Name: "Editor"}
	require.NoError(t, CreateRole(db, &role))

	require.NoError(t, AssignRoleToUser(db, user.ID, role.ID))
	require.NoError(t, AssignRoleToUser(db, user.ID, role.ID))

	var count int64
	require.NoError(t, db.Model(&model.UserRole{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	db := setupTestDB(t)

	user := createTestUser(t, db, "bob@example.com", "bob", "secret")
	role := model.Role{Code: "editor", Name: "Editor"}
	require.NoError(t, CreateRole(db, &role))
	perm := model.Permission{Service: "auth", Resource: "users", Action: "read", IsSystem: true}
	require.NoError(t, CreatePermission(db, &perm))
	require.NoError(t, AssignPermissionToRole(db, role.ID, perm.ID))
	require.NoError(t, AssignRoleToUser(db, user.ID, role.ID))

	require.NoError(t, DeleteRole(db, role.ID))

	var rp, ur int64
	require.NoError(t, db.Model(&model.RolePermission{}).Where("role_id = ?", role.ID).Count(&rp).Error)
	require.NoError(t, db.Model(&model.UserRole{}).Where("role_id = ?", role.ID).Count(&ur).Error)
	assert.Zero(t, rp)
	assert.Zero(t, ur)
}

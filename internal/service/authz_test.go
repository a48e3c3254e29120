package service

import (
	"testing"

	"identity-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePermissionsUnionAndDedup(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	readUsers := model.Permission{Service: "auth", Resource: "users", Action: "read", IsSystem: true}
	require.NoError(t, CreatePermission(db, &readUsers))
	readOrders := model.Permission{
		Service: "billing", Resource: "orders", Action: "read",
		IsTenantLevel: true, TenantID: &tenant.ID,
	}
	require.NoError(t, CreatePermission(db, &readOrders))

	globalRole := model.Role{Code: "reader", Name: "Reader"}
	require.NoError(t, CreateRole(db, &globalRole))
	tenantRole := model.Role{Code: "billing", Name: "Billing", TenantID: &tenant.ID}
	require.NoError(t, CreateRole(db, &tenantRole))

	// Both roles grant readUsers; the union must not duplicate it
	require.NoError(t, AssignPermissionToRole(db, globalRole.ID, readUsers.ID))
	require.NoError(t, AssignPermissionToRole(db, tenantRole.ID, readUsers.ID))
	require.NoError(t, AssignPermissionToRole(db, tenantRole.ID, readOrders.ID))

	require.NoError(t, AssignRoleToUser(db, user.ID, globalRole.ID))
	require.NoError(t, AssignRoleToUser(db, user.ID, tenantRole.ID))

	perms, err := EffectivePermissions(db, user.ID, &tenant.ID)
	require.NoError(t, err)
	codes := make(map[string]bool, len(perms))
	for _, p := range perms {
		codes[p.Code] = true
	}
	assert.Len(t, perms, 2)
	assert.True(t, codes["auth:users:read"])
	assert.True(t, codes["billing:orders:read"])

	// Outside the tenant only the global role applies
	perms, err = EffectivePermissions(db, user.ID, nil)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "auth:users:read", perms[0].Code)
}

func TestHasPermissionScoping(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")
	other := createTestTenant(t, db, "globex")
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	perm := model.Permission{
		Service: "billing", Resource: "orders", Action: "write",
		IsTenantLevel: true, TenantID: &tenant.ID,
	}
	require.NoError(t, CreatePermission(db, &perm))

	role := model.Role{Code: "billing-writer", Name: "Billing Writer", TenantID: &tenant.ID}
	require.NoError(t, CreateRole(db, &role))
	require.NoError(t, AssignPermissionToRole(db, role.ID, perm.ID))
	require.NoError(t, AssignRoleToUser(db, user.ID, role.ID))

	granted, err := HasPermission(db, user.ID, &tenant.ID, "billing", "orders", "write")
	require.NoError(t, err)
	assert.True(t, granted)

	// The tenant-scoped role does not leak into another tenant
	granted, err = HasPermission(db, user.ID, &other.ID, "billing", "orders", "write")
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = HasPermission(db, user.ID, &tenant.ID, "billing", "orders", "delete")
	require.NoError(t, err)
	assert.False(t, granted)
}

package service

import (
	"testing"

	"identity-service/internal/model"
	"identity-service/pkg/jwtutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateSuccess(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "alice@example.com", "alice", "opensesame")

	result, err := Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", result.User.Email)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.NotNil(t, result.User.LastLoginAt)

	claims, err := jwtutil.ValidateAccessToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
	assert.Nil(t, claims.TenantID)
	assert.False(t, claims.IsAdmin)

	// Username works as the login identifier too
	_, err = Authenticate(db, "alice", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.NoError(t, err)
}

func TestAuthenticateFailures(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "alice@example.com", "alice", "opensesame")

	_, err := Authenticate(db, "alice@example.com", "wrong", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Authenticate(db, "nobody@example.com", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, err = Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthenticateTenantBinding(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "alice@example.com", "alice", "opensesame")
	tenant := createTestTenant(t, db, "acme")

	_, err := Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", tenant, DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrNotTenantMember)

	addMembership(t, db, user.ID, tenant.ID, model.MembershipRoleAdmin)

	result, err := Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", tenant, DefaultLockoutPolicy)
	require.NoError(t, err)

	claims, err := jwtutil.ValidateAccessToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, tenant.ID, *claims.TenantID)
	assert.Equal(t, model.MembershipRoleAdmin, claims.Role)
}

func TestAdminLoginRequiresStaff(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "alice@example.com", "alice", "opensesame")

	_, err := AuthenticateAdmin(db, "alice@example.com", "opensesame", "10.0.0.1", DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrAdminRequired)

	require.NoError(t, db.Model(user).Update("is_staff", true).Error)
	result, err := AuthenticateAdmin(db, "alice@example.com", "opensesame", "10.0.0.1", DefaultLockoutPolicy)
	require.NoError(t, err)

	claims, err := jwtutil.ValidateAccessToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.True(t, claims.IsStaff)
	assert.False(t, claims.IsSuperuser)
}

func TestRefreshPreservesAdminClaims(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "alice@example.com", "alice", "opensesame")
	require.NoError(t, db.Model(user).Update("is_superuser", true).Error)

	result, err := AuthenticateAdmin(db, "alice@example.com", "opensesame", "10.0.0.1", DefaultLockoutPolicy)
	require.NoError(t, err)

	// Two refreshes in a row: the admin claims must survive both unchanged
	pair := result.Tokens
	for i := 0; i < 2; i++ {
		pair, err = Refresh(db, pair.RefreshToken)
		require.NoError(t, err)

		claims, err := jwtutil.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.True(t, claims.IsAdmin)
		assert.True(t, claims.IsSuperuser)
		assert.Equal(t, user.ID, claims.UserID)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "alice@example.com", "alice", "opensesame")

	result, err := Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	require.NoError(t, err)

	_, err = Refresh(db, result.Tokens.RefreshToken)
	require.NoError(t, err)

	// The consumed refresh token is blacklisted by its JTI
	_, err = Refresh(db, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "alice@example.com", "alice", "opensesame")

	result, err := Authenticate(db, "alice@example.com", "opensesame", "10.0.0.1", nil, DefaultLockoutPolicy)
	require.NoError(t, err)

	require.NoError(t, Logout(db, result.Tokens.RefreshToken))
	// Logging out twice is fine
	require.NoError(t, Logout(db, result.Tokens.RefreshToken))

	_, err = Refresh(db, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// An access token is never accepted on the refresh path
	_, err = Refresh(db, result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRegisterAssignsDefaultRole(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")

	role := model.Role{Name: "Member", Code: "member", TenantID: &tenant.ID, IsDefault: true}
	require.NoError(t, CreateRole(db, &role))

	user, err := Register(db, "new@example.com", "newbie", "pw123456", tenant, SettingsQuota{})
	require.NoError(t, err)

	membership, err := GetMembership(db, user.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipRoleMember, membership.Role)

	var userRoles int64
	require.NoError(t, db.Model(&model.UserRole{}).
		Where("user_id = ? AND role_id = ?", user.ID, role.ID).Count(&userRoles).Error)
	assert.EqualValues(t, 1, userRoles)

	// The login credentials registered actually work
	_, err = Authenticate(db, "new@example.com", "pw123456", "10.0.0.1", tenant, DefaultLockoutPolicy)
	assert.NoError(t, err)
}

func TestRegisterDuplicateCredentialIsValidationError(t *testing.T) {
	db := setupTestDB(t)

	_, err := Register(db, "dup@example.com", "dup", "pw123456", nil, nil)
	require.NoError(t, err)

	_, err = Register(db, "dup@example.com", "other", "pw123456", nil, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	_, err = Register(db, "other@example.com", "dup", "pw123456", nil, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)
}

func TestUpdateProfileConflicts(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "taken@example.com", "taken", "pw")
	user := createTestUser(t, db, "alice@example.com", "alice", "pw")

	updated, err := UpdateProfile(db, user.ID, map[string]interface{}{"username": "alice2"})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)

	_, err = UpdateProfile(db, user.ID, map[string]interface{}{"email": "taken@example.com"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	_, err = UpdateProfile(db, user.ID, map[string]interface{}{"username": "taken"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)
}

func TestRegisterEnforcesUserQuota(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")
	require.NoError(t, db.Model(tenant).Update("settings", []byte(`{"max_users":1}`)).Error)
	require.NoError(t, db.First(tenant, tenant.ID).Error)

	_, err := Register(db, "first@example.com", "first", "pw123456", tenant, SettingsQuota{})
	require.NoError(t, err)

	_, err = Register(db, "second@example.com", "second", "pw123456", tenant, SettingsQuota{})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestChangePassword(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "alice@example.com", "alice", "old-password")

	err := ChangePassword(db, user.ID, "wrong", "new-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, ChangePassword(db, user.ID, "old-password", "new-password"))

	_, err = Authenticate(db, "alice@example.com", "old-password", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = Authenticate(db, "alice@example.com", "new-password", "10.0.0.1", nil, DefaultLockoutPolicy)
	assert.NoError(t, err)

	var reloaded model.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.NotNil(t, reloaded.PasswordChangedAt)
}

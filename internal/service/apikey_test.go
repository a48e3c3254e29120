package service

import (
	"strings"
	"testing"
	"time"

	"identity-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyApiKey(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "ci key", nil, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, generated.Secret)
	assert.True(t, strings.HasPrefix(generated.Secret, "idk_"))
	assert.Equal(t, generated.Secret[:8], generated.Key.Prefix)
	assert.Equal(t, HashKeySecret(generated.Secret), generated.Key.KeyHash)
	assert.Equal(t, model.KeyTypeUser, generated.Key.KeyType)

	// The plaintext never lands in the store
	var stored model.ApiKey
	require.NoError(t, db.First(&stored, generated.Key.ID).Error)
	assert.NotContains(t, stored.KeyHash, generated.Secret)

	key, err := VerifyApiKey(db, generated.Secret, nil)
	require.NoError(t, err)
	assert.Equal(t, generated.Key.ID, key.ID)
	assert.NotNil(t, key.LastUsedAt)

	_, err = VerifyApiKey(db, "idk_not-a-real-secret", nil)
	assert.ErrorIs(t, err, ErrKeyExpiredOrInactive)
}

func TestVerifyDeactivatedKeyFails(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "ci key", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, DeactivateApiKey(db, generated.Key.ID))

	// The failure is indistinguishable from a missing key
	_, err = VerifyApiKey(db, generated.Secret, nil)
	assert.ErrorIs(t, err, ErrKeyExpiredOrInactive)
}

func TestVerifyExpiredKeyFails(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	past := time.Now().Add(-time.Hour)
	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "old key", &past, nil, nil)
	require.NoError(t, err)

	_, err = VerifyApiKey(db, generated.Secret, nil)
	assert.ErrorIs(t, err, ErrKeyExpiredOrInactive)
}

func TestVerifyScopeEnforcement(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "scoped key", nil,
		[]ScopeTriple{{Service: "auth", Resource: "users", Action: "read"}}, nil)
	require.NoError(t, err)

	scope := ScopeTriple{Service: "billing", Resource: "orders", Action: "read"}
	_, err = VerifyApiKey(db, generated.Secret, &scope)
	assert.ErrorIs(t, err, ErrInsufficientScope)

	require.NoError(t, AddApiKeyScope(db, generated.Key.ID, scope))
	_, err = VerifyApiKey(db, generated.Secret, &scope)
	assert.NoError(t, err)

	// Appending an already-present scope is a no-op
	require.NoError(t, AddApiKeyScope(db, generated.Key.ID, scope))
	var count int64
	require.NoError(t, db.Model(&model.ApiKeyScope{}).
		Where("api_key_id = ?", generated.Key.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestSystemKeyRequiresTenant(t *testing.T) {
	db := setupTestDB(t)

	_, err := GenerateApiKey(db, model.KeyOwner{}, "broken", nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidKeyRequest)

	tenant := createTestTenant(t, db, "acme")
	generated, err := GenerateApiKey(db, model.SystemOwner(tenant.ID), "svc key", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.KeyTypeSystem, generated.Key.KeyType)
	require.NotNil(t, generated.Key.TenantID)
	assert.Equal(t, tenant.ID, *generated.Key.TenantID)
	assert.Nil(t, generated.Key.UserID)
}

func TestUpdateApiKeyReplacesScopes(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "key", nil,
		[]ScopeTriple{
			{Service: "auth", Resource: "users", Action: "read"},
			{Service: "auth", Resource: "users", Action: "write"},
		}, nil)
	require.NoError(t, err)

	name := "renamed"
	key, err := UpdateApiKey(db, generated.Key.ID, ApiKeyUpdate{
		Name:   &name,
		Scopes: []ScopeTriple{{Service: "billing", Resource: "orders", Action: "read"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", key.Name)
	require.Len(t, key.Scopes, 1)
	assert.Equal(t, "billing", key.Scopes[0].Service)

	// The hash and prefix survive every update
	assert.Equal(t, generated.Key.KeyHash, key.KeyHash)
	assert.Equal(t, generated.Key.Prefix, key.Prefix)
}

func TestDeleteApiKeyCascades(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "key", nil,
		[]ScopeTriple{{Service: "auth", Resource: "users", Action: "read"}}, nil)
	require.NoError(t, err)

	LogApiKeyUsage(db, model.ApiKeyUsageLog{
		ApiKeyID: generated.Key.ID,
		Path:     "/api/users/profile",
		Method:   "GET",
	})

	require.NoError(t, DeleteApiKey(db, generated.Key.ID))

	var scopes, logs, keys int64
	require.NoError(t, db.Model(&model.ApiKeyScope{}).Where("api_key_id = ?", generated.Key.ID).Count(&scopes).Error)
	require.NoError(t, db.Model(&model.ApiKeyUsageLog{}).Where("api_key_id = ?", generated.Key.ID).Count(&logs).Error)
	require.NoError(t, db.Unscoped().Model(&model.ApiKey{}).Where("id = ?", generated.Key.ID).Count(&keys).Error)
	assert.Zero(t, scopes)
	assert.Zero(t, logs)
	assert.Zero(t, keys)

	_, err = VerifyApiKey(db, generated.Secret, nil)
	assert.ErrorIs(t, err, ErrKeyExpiredOrInactive)
}

func TestConfigureKeyGeneration(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "bob@example.com", "bob", "secret")

	ConfigureKeyGeneration(48, 12)
	t.Cleanup(func() { ConfigureKeyGeneration(32, 8) })

	generated, err := GenerateApiKey(db, model.UserOwner(user.ID), "long key", nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, generated.Key.Prefix, 12)
	assert.Equal(t, generated.Secret[:12], generated.Key.Prefix)
	// idk_ tag plus 48 url-encoded bytes
	assert.Len(t, generated.Secret, 4+64)

	// Out-of-range values are ignored rather than weakening the keys
	ConfigureKeyGeneration(4, 100)
	generated, err = GenerateApiKey(db, model.UserOwner(user.ID), "guarded key", nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, generated.Key.Prefix, 12)
	assert.Len(t, generated.Secret, 4+64)
}

func TestApiKeyQuota(t *testing.T) {
	db := setupTestDB(t)
	tenant := createTestTenant(t, db, "acme")
	require.NoError(t, db.Model(tenant).Update("settings", []byte(`{"max_api_keys":1}`)).Error)
	require.NoError(t, db.First(tenant, tenant.ID).Error)

	_, err := GenerateApiKey(db, model.SystemOwner(tenant.ID), "first", nil, nil, SettingsQuota{})
	require.NoError(t, err)

	_, err = GenerateApiKey(db, model.SystemOwner(tenant.ID), "second", nil, nil, SettingsQuota{})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

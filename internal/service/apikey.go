package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"identity-service/internal/model"
	"identity-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKeyTag = "idk_"

var (
	apiKeySecretBytes  = 32 // 256 bits of entropy
	apiKeyPrefixLength = 8
)

// ConfigureKeyGeneration sets the secret entropy and display-prefix length.
// The prefix must retain the key tag, and the secret must stay long enough
// that the prefix never reveals a meaningful share of it.
func ConfigureKeyGeneration(secretBytes, prefixLength int) {
	if secretBytes >= 16 {
		apiKeySecretBytes = secretBytes
	}
	if prefixLength >= len(apiKeyTag) && prefixLength <= 16 {
		apiKeyPrefixLength = prefixLength
	}
}

// ScopeTriple names one (service, resource, action) an API key may use
type ScopeTriple struct {
	Service  string `json:"service"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// GeneratedKey is returned from GenerateApiKey. Secret is the only copy of
// the plaintext that will ever exist; it is not persisted.
type GeneratedKey struct {
	Key    model.ApiKey
	Secret string
}

// HashKeySecret computes the stored one-way hash of a key secret
func HashKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newKeySecret() string {
	b := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return apiKeyTag + base64.RawURLEncoding.EncodeToString(b)
}

// GenerateApiKey creates a key for the given owner and returns the plaintext
// secret exactly once. System keys must carry a tenant, user keys a user; the
// KeyOwner constructors enforce that shape. A key_hash uniqueness collision
// is retried with a fresh secret rather than surfaced.
func GenerateApiKey(db *gorm.DB, owner model.KeyOwner, name string, expiresAt *time.Time, scopes []ScopeTriple, quota QuotaChecker) (*GeneratedKey, error) {
	key := model.NewApiKey(owner, name)
	switch key.KeyType {
	case model.KeyTypeSystem:
		if key.TenantID == nil {
			return nil, ErrInvalidKeyRequest
		}
	case model.KeyTypeUser:
		if key.UserID == nil {
			return nil, ErrInvalidKeyRequest
		}
	default:
		return nil, ErrInvalidKeyRequest
	}
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}

	if key.TenantID != nil && quota != nil {
		var tenant model.Tenant
		if err := db.First(&tenant, *key.TenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTenantNotFound
			}
			return nil, err
		}
		ok, err := quota.CheckAPIKeyQuota(db, &tenant)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrQuotaExceeded
		}
	}

	key.ExpiresAt = expiresAt

	// Retry on key_hash collision. With 256 bits of entropy this never fires
	// in practice, but a uniqueness violation must not crash key creation.
	var secret string
	for attempt := 0; attempt < 3; attempt++ {
		secret = newKeySecret()
		key.ID = 0
		key.KeyHash = HashKeySecret(secret)
		key.Prefix = secret[:apiKeyPrefixLength]

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&key).Error; err != nil {
				return err
			}
			for _, s := range scopes {
				scope := model.ApiKeyScope{
					ApiKeyID: key.ID,
					Service:  s.Service,
					Resource: s.Resource,
					Action:   s.Action,
				}
				if err := tx.Create(&scope).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return &GeneratedKey{Key: key, Secret: secret}, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, errors.New("failed to generate a unique api key")
}

// isUniqueViolation matches uniqueness-constraint errors from the drivers we
// run against (pgx and sqlite) without importing either driver's error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// VerifyApiKey resolves a presented secret to its key. The failure mode is
// deliberately opaque: a missing key, an inactive key, and an expired key all
// return ErrKeyExpiredOrInactive so callers cannot probe for existence. When
// a scope triple is supplied the key must additionally hold that scope.
func VerifyApiKey(db *gorm.DB, secret string, scope *ScopeTriple) (*model.ApiKey, error) {
	var key model.ApiKey
	err := db.Where("key_hash = ?", HashKeySecret(secret)).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyExpiredOrInactive
		}
		return nil, err
	}

	if !key.IsValid() {
		return nil, ErrKeyExpiredOrInactive
	}

	if scope != nil {
		var count int64
		err := db.Model(&model.ApiKeyScope{}).
			Where("api_key_id = ? AND service = ? AND resource = ? AND action = ?",
				key.ID, scope.Service, scope.Resource, scope.Action).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrInsufficientScope
		}
	}

	// last_used_at is advisory telemetry. A lost update under concurrent
	// verification is acceptable, so no locking and no error propagation.
	now := time.Now()
	if err := db.Model(&model.ApiKey{}).Where("id = ?", key.ID).
		Update("last_used_at", now).Error; err != nil {
		logger.GetLogger().Warn("failed to update api key last_used_at",
			zap.Uint("api_key_id", key.ID), zap.Error(err))
	} else {
		key.LastUsedAt = &now
	}

	return &key, nil
}

// ApiKeyUpdate carries the mutable fields of a key. key_type, key_hash and
// prefix are immutable after creation and have no place here.
type ApiKeyUpdate struct {
	Name      *string       `json:"name,omitempty"`
	IsActive  *bool         `json:"is_active,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Scopes    []ScopeTriple `json:"scopes,omitempty"` // nil keeps the scope set, non-nil replaces it
}

// UpdateApiKey applies the mutable fields. A non-nil scope set replaces the
// existing scopes all-or-nothing inside one transaction.
func UpdateApiKey(db *gorm.DB, id uint, update ApiKeyUpdate) (*model.ApiKey, error) {
	var key model.ApiKey
	if err := db.First(&key, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if update.Name != nil {
			updates["name"] = *update.Name
		}
		if update.IsActive != nil {
			updates["is_active"] = *update.IsActive
		}
		if update.ExpiresAt != nil {
			updates["expires_at"] = *update.ExpiresAt
		}
		if len(updates) > 0 {
			if err := tx.Model(&key).Updates(updates).Error; err != nil {
				return err
			}
		}

		if update.Scopes != nil {
			if err := tx.Where("api_key_id = ?", key.ID).Delete(&model.ApiKeyScope{}).Error; err != nil {
				return err
			}
			for _, s := range update.Scopes {
				scope := model.ApiKeyScope{
					ApiKeyID: key.ID,
					Service:  s.Service,
					Resource: s.Resource,
					Action:   s.Action,
				}
				if err := tx.Create(&scope).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := db.Preload("Scopes").First(&key, id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// AddApiKeyScope appends one scope to a key, idempotently
func AddApiKeyScope(db *gorm.DB, keyID uint, scope ScopeTriple) error {
	var count int64
	if err := db.Model(&model.ApiKeyScope{}).
		Where("api_key_id = ? AND service = ? AND resource = ? AND action = ?",
			keyID, scope.Service, scope.Resource, scope.Action).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&model.ApiKeyScope{
		ApiKeyID: keyID,
		Service:  scope.Service,
		Resource: scope.Resource,
		Action:   scope.Action,
	}).Error
}

// DeactivateApiKey turns the key off without deleting its audit trail
func DeactivateApiKey(db *gorm.DB, id uint) error {
	result := db.Model(&model.ApiKey{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApiKey hard-deletes a key together with its scopes and usage logs
func DeleteApiKey(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("api_key_id = ?", id).Delete(&model.ApiKeyScope{}).Error; err != nil {
			return err
		}
		if err := tx.Where("api_key_id = ?", id).Delete(&model.ApiKeyUsageLog{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&model.ApiKey{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListApiKeys lists keys visible in a tenant, or a user's own keys
func ListApiKeys(db *gorm.DB, tenantID, userID *uint) ([]model.ApiKey, error) {
	var keys []model.ApiKey
	q := db.Preload("Scopes").Order("created_at DESC")
	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if err := q.Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// LogApiKeyUsage appends one usage row. This runs after the primary request
// and must never fail it: errors go to the operational log only.
func LogApiKeyUsage(db *gorm.DB, entry model.ApiKeyUsageLog) {
	if err := db.Create(&entry).Error; err != nil {
		logger.GetLogger().Warn("failed to record api key usage",
			zap.Uint("api_key_id", entry.ApiKeyID), zap.Error(err))
	}
}

package model

import (
	"time"

	"gorm.io/gorm"
)

// API key types
const (
	KeyTypeSystem = "system"
	KeyTypeUser   = "user"
)

// ApiKey represents a bearer API key. The plaintext secret is never stored;
// only its SHA-256 hash and a short display prefix are persisted.
type ApiKey struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	KeyType        string         `json:"key_type" gorm:"type:varchar(10);not null"`
	KeyHash        string         `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Prefix         string         `json:"prefix" gorm:"type:varchar(16);not null;index"`
	Name           string         `json:"name" gorm:"type:varchar(100);not null"`
	TenantID       *uint          `json:"tenant_id,omitempty" gorm:"index"`
	UserID         *uint          `json:"user_id,omitempty" gorm:"index"`
	CreatedByKeyID *uint          `json:"created_by_key_id,omitempty"`
	IsActive       bool           `json:"is_active" gorm:"default:true"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	LastUsedAt     *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	Scopes []ApiKeyScope `json:"scopes,omitempty" gorm:"foreignKey:ApiKeyID"`
}

// KeyOwner is the tagged owner of an API key: a tenant for system keys, a
// user for user keys. Constructing keys through SystemOwner/UserOwner keeps
// the two foreign keys mutually exclusive.
type KeyOwner struct {
	keyType  string
	tenantID *uint
	userID   *uint
}

// SystemOwner binds a key to a tenant as a machine/service credential
func SystemOwner(tenantID uint) KeyOwner {
	return KeyOwner{keyType: KeyTypeSystem, tenantID: &tenantID}
}

// UserOwner binds a key to an individual user
func UserOwner(userID uint) KeyOwner {
	return KeyOwner{keyType: KeyTypeUser, userID: &userID}
}

// NewApiKey builds a key shell for the given owner; hash and prefix are
// filled in by the key manager.
func NewApiKey(owner KeyOwner, name string) ApiKey {
	return ApiKey{
		KeyType:  owner.keyType,
		TenantID: owner.tenantID,
		UserID:   owner.userID,
		Name:     name,
		IsActive: true,
	}
}

// IsExpired checks if the key is past its expiry date
func (k *ApiKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IsValid checks if the key is usable (active and not expired)
func (k *ApiKey) IsValid() bool {
	return k.IsActive && !k.IsExpired()
}

// ApiKeyScope grants a key one (service, resource, action) triple
type ApiKeyScope struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ApiKeyID  uint      `json:"api_key_id" gorm:"not null;uniqueIndex:idx_key_scope"`
	Service   string    `json:"service" gorm:"type:varchar(50);not null;uniqueIndex:idx_key_scope"`
	Resource  string    `json:"resource" gorm:"type:varchar(50);not null;uniqueIndex:idx_key_scope"`
	Action    string    `json:"action" gorm:"type:varchar(50);not null;uniqueIndex:idx_key_scope"`
	CreatedAt time.Time `json:"created_at"`
}

// ApiKeyUsageLog is an append-only audit row written for every authenticated
// API-key call. Rows are never updated after creation.
type ApiKeyUsageLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ApiKeyID   uint      `json:"api_key_id" gorm:"not null;index"`
	TenantID   *uint     `json:"tenant_id,omitempty" gorm:"index"`
	Path       string    `json:"path" gorm:"type:varchar(255)"`
	Method     string    `json:"method" gorm:"type:varchar(10)"`
	StatusCode int       `json:"status_code"`
	ClientIP   string    `json:"client_ip" gorm:"type:varchar(45)"`
	RequestID  string    `json:"request_id" gorm:"type:varchar(64)"`
	CreatedAt  time.Time `json:"created_at"`
}

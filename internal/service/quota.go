package service

import (
	"encoding/json"

	"identity-service/internal/model"

	"gorm.io/gorm"
)

// QuotaChecker is the tenant quota collaborator consulted before creating a
// user or API key under a tenant. A false answer aborts creation with
// ErrQuotaExceeded.
type QuotaChecker interface {
	CheckUserQuota(db *gorm.DB, tenant *model.Tenant) (bool, error)
	CheckAPIKeyQuota(db *gorm.DB, tenant *model.Tenant) (bool, error)
}

type tenantSettings struct {
	MaxUsers   int `json:"max_users,omitempty"`
	MaxAPIKeys int `json:"max_api_keys,omitempty"`
}

// SettingsQuota reads per-tenant limits from the tenant settings blob.
// A missing or zero limit means unlimited.
type SettingsQuota struct{}

func (SettingsQuota) limits(tenant *model.Tenant) tenantSettings {
	var s tenantSettings
	if len(tenant.Settings) > 0 {
		// Malformed settings fall back to unlimited rather than blocking signups
		_ = json.Unmarshal(tenant.Settings, &s)
	}
	return s
}

func (q SettingsQuota) CheckUserQuota(db *gorm.DB, tenant *model.Tenant) (bool, error) {
	limit := q.limits(tenant).MaxUsers
	if limit <= 0 {
		return true, nil
	}
	var count int64
	err := db.Model(&model.TenantMembership{}).
		Where("tenant_id = ? AND active = ?", tenant.ID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count < int64(limit), nil
}

func (q SettingsQuota) CheckAPIKeyQuota(db *gorm.DB, tenant *model.Tenant) (bool, error) {
	limit := q.limits(tenant).MaxAPIKeys
	if limit <= 0 {
		return true, nil
	}
	var count int64
	err := db.Model(&model.ApiKey{}).
		Where("tenant_id = ? AND is_active = ?", tenant.ID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count < int64(limit), nil
}

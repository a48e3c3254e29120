package service

import (
	"errors"

	"identity-service/internal/model"

	"gorm.io/gorm"
)

// ValidatePermissionClassification enforces the system/tenant-level
// exclusivity rules. It runs before every permission write, not just at the
// HTTP boundary:
//   - is_system and is_tenant_level must never both be set
//   - is_system forbids a tenant
//   - is_tenant_level requires a tenant
func ValidatePermissionClassification(p *model.Permission) error {
	if p.IsSystem && p.IsTenantLevel {
		return ErrInvalidPermissionClassification
	}
	if p.IsSystem && p.TenantID != nil {
		return ErrInvalidPermissionClassification
	}
	if p.IsTenantLevel && p.TenantID == nil {
		return ErrInvalidPermissionClassification
	}
	return nil
}

// CreatePermission validates and persists a permission. The code is derived
// from the service/resource/action triple when not supplied.
func CreatePermission(db *gorm.DB, p *model.Permission) error {
	if p.Service == "" || p.Resource == "" || p.Action == "" {
		return NewValidationError("permission", "service, resource and action are required")
	}
	if err := ValidatePermissionClassification(p); err != nil {
		return err
	}
	if p.Code == "" {
		p.Code = model.PermissionCode(p.Service, p.Resource, p.Action)
	}
	return db.Create(p).Error
}

// UpdatePermission applies mutable fields and re-validates the classification
// before writing. An update that would put the permission into an impossible
// classification is rejected without touching the row.
func UpdatePermission(db *gorm.DB, id uint, updates map[string]interface{}) (*model.Permission, error) {
	var perm model.Permission
	if err := db.First(&perm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Apply the proposed changes to a copy and validate the result
	next := perm
	if v, ok := updates["is_system"].(bool); ok {
		next.IsSystem = v
	}
	if v, ok := updates["is_tenant_level"].(bool); ok {
		next.IsTenantLevel = v
	}
	if v, present := updates["tenant_id"]; present {
		switch tid := v.(type) {
		case nil:
			next.TenantID = nil
		case *uint:
			next.TenantID = tid
		case uint:
			next.TenantID = &tid
		}
	}
	if v, ok := updates["description"].(string); ok {
		next.Description = v
	}
	if err := ValidatePermissionClassification(&next); err != nil {
		return nil, err
	}

	if err := db.Model(&perm).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &next, nil
}

// GetPermission loads a single permission by id
func GetPermission(db *gorm.DB, id uint) (*model.Permission, error) {
	var perm model.Permission
	if err := db.First(&perm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &perm, nil
}

// ListPermissions returns system permissions plus the ones custom to the
// given tenant; with a nil tenant only system permissions are returned.
func ListPermissions(db *gorm.DB, tenantID *uint) ([]model.Permission, error) {
	var perms []model.Permission
	q := db.Order("service, resource, action")
	if tenantID != nil {
		q = q.Where("is_system = ? OR tenant_id = ?", true, *tenantID)
	} else {
		q = q.Where("is_system = ?", true)
	}
	if err := q.Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// DeletePermission removes a permission and its role assignments
func DeletePermission(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Permission{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

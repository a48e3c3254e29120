package service

import (
	"errors"

	"identity-service/internal/model"

	"gorm.io/gorm"
)

// CreateRole persists a role after checking code uniqueness within its scope.
// The global scope (nil tenant) and each tenant scope are independent
// partitions for both the code and the default flag.
func CreateRole(db *gorm.DB, role *model.Role) error {
	if role.Code == "" || role.Name == "" {
		return NewValidationError("role", "code and name are required")
	}

	var count int64
	q := db.Model(&model.Role{}).Where("code = ?", role.Code)
	if role.TenantID != nil {
		q = q.Where("tenant_id = ?", *role.TenantID)
	} else {
		q = q.Where("tenant_id IS NULL")
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateRoleCode
	}

	if role.IsDefault {
		// Creating a role as default demotes any existing default in scope
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := clearDefaultRoles(tx, role.TenantID); err != nil {
				return err
			}
			return tx.Create(role).Error
		})
		if isUniqueViolation(err) {
			return ErrDuplicateRoleCode
		}
		return err
	}
	// Concurrent creates can both pass the count check; the unique indexes on
	// (code, tenant_id) and on global codes settle the race at the store.
	if err := db.Create(role).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRoleCode
		}
		return err
	}
	return nil
}

// UpdateRole mutates a role. System roles reject changes to their code,
// system flag, and tenant.
func UpdateRole(db *gorm.DB, id uint, updates map[string]interface{}) (*model.Role, error) {
	var role model.Role
	if err := db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if role.IsSystem {
		for _, field := range []string{"code", "is_system", "tenant_id"} {
			if _, present := updates[field]; present {
				return nil, ErrSystemRoleImmutable
			}
		}
	}

	if code, ok := updates["code"].(string); ok && code != role.Code {
		var count int64
		q := db.Model(&model.Role{}).Where("code = ? AND id <> ?", code, role.ID)
		if role.TenantID != nil {
			q = q.Where("tenant_id = ?", *role.TenantID)
		} else {
			q = q.Where("tenant_id IS NULL")
		}
		if err := q.Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrDuplicateRoleCode
		}
	}

	if err := db.Model(&role).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := db.First(&role, id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// SetDefaultRole makes the role the single default within its scope. The
// clear-then-set runs in one transaction so readers never observe zero or two
// defaults in a scope.
func SetDefaultRole(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var role model.Role
		if err := tx.First(&role, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := clearDefaultRoles(tx, role.TenantID); err != nil {
			return err
		}
		return tx.Model(&role).Update("is_default", true).Error
	})
}

func clearDefaultRoles(tx *gorm.DB, tenantID *uint) error {
	q := tx.Model(&model.Role{}).Where("is_default = ?", true)
	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	} else {
		q = q.Where("tenant_id IS NULL")
	}
	return q.Update("is_default", false).Error
}

// GetRole loads a role by id
func GetRole(db *gorm.DB, id uint) (*model.Role, error) {
	var role model.Role
	if err := db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// ListRoles returns global roles plus the ones scoped to the given tenant
func ListRoles(db *gorm.DB, tenantID *uint) ([]model.Role, error) {
	var roles []model.Role
	q := db.Order("code")
	if tenantID != nil {
		q = q.Where("tenant_id IS NULL OR tenant_id = ?", *tenantID)
	} else {
		q = q.Where("tenant_id IS NULL")
	}
	if err := q.Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// DeleteRole removes a role together with its permission and user assignments
func DeleteRole(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var role model.Role
		if err := tx.First(&role, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if role.IsSystem {
			return ErrSystemRoleImmutable
		}
		if err := tx.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&model.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
}

// AssignPermissionToRole attaches a permission to a role. Assigning an
// already-held permission is a no-op, not an error.
func AssignPermissionToRole(db *gorm.DB, roleID, permissionID uint) error {
	var count int64
	if err := db.Model(&model.RolePermission{}).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&model.RolePermission{RoleID: roleID, PermissionID: permissionID}).Error
}

// RemovePermissionFromRole detaches a permission; removing a permission the
// role does not hold is a no-op.
func RemovePermissionFromRole(db *gorm.DB, roleID, permissionID uint) error {
	return db.Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&model.RolePermission{}).Error
}

// ListRolePermissions returns the permissions attached to a role
func ListRolePermissions(db *gorm.DB, roleID uint) ([]model.Permission, error) {
	var perms []model.Permission
	err := db.
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.service, permissions.resource, permissions.action").
		Find(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// AssignRoleToUser attaches a role to a user, idempotently
func AssignRoleToUser(db *gorm.DB, userID, roleID uint) error {
	var count int64
	if err := db.Model(&model.UserRole{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&model.UserRole{UserID: userID, RoleID: roleID}).Error
}

// RemoveRoleFromUser detaches a role from a user; a no-op when not held
func RemoveRoleFromUser(db *gorm.DB, userID, roleID uint) error {
	return db.Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&model.UserRole{}).Error
}

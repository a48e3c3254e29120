package service

import (
	"identity-service/internal/model"

	"gorm.io/gorm"
)

// EffectivePermissions resolves the union of permissions attached to every
// role the user holds: global roles plus roles scoped to the active tenant,
// deduplicated by permission code.
func EffectivePermissions(db *gorm.DB, userID uint, tenantID *uint) ([]model.Permission, error) {
	roleQuery := db.Model(&model.UserRole{}).
		Select("user_roles.role_id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID)
	if tenantID != nil {
		roleQuery = roleQuery.Where("roles.tenant_id IS NULL OR roles.tenant_id = ?", *tenantID)
	} else {
		roleQuery = roleQuery.Where("roles.tenant_id IS NULL")
	}

	var perms []model.Permission
	err := db.
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id IN (?)", roleQuery).
		Find(&perms).Error
	if err != nil {
		return nil, err
	}

	// Deduplicate by code: the same permission may arrive via several roles
	seen := make(map[string]bool, len(perms))
	out := perms[:0]
	for _, p := range perms {
		if seen[p.Code] {
			continue
		}
		seen[p.Code] = true
		out = append(out, p)
	}
	return out, nil
}

// HasPermission answers whether the user holds the service:resource:action
// permission in the given tenant scope, through any of their roles.
func HasPermission(db *gorm.DB, userID uint, tenantID *uint, svc, resource, action string) (bool, error) {
	roleQuery := db.Model(&model.UserRole{}).
		Select("user_roles.role_id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID)
	if tenantID != nil {
		roleQuery = roleQuery.Where("roles.tenant_id IS NULL OR roles.tenant_id = ?", *tenantID)
	} else {
		roleQuery = roleQuery.Where("roles.tenant_id IS NULL")
	}

	var count int64
	err := db.Model(&model.Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id IN (?)", roleQuery).
		Where("permissions.service = ? AND permissions.resource = ? AND permissions.action = ?",
			svc, resource, action).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

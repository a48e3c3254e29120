package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Role represents a named bundle of permissions. A nil TenantID means the
// role is global; otherwise it is custom to one tenant.
type Role struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Code        string         `json:"code" gorm:"type:varchar(100);not null;uniqueIndex:idx_role_code_tenant"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Description string         `json:"description" gorm:"type:text"`
	TenantID    *uint          `json:"tenant_id,omitempty" gorm:"uniqueIndex:idx_role_code_tenant"`
	IsSystem    bool           `json:"is_system" gorm:"default:false"`
	IsDefault   bool           `json:"is_default" gorm:"default:false"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Permission represents a single grantable action, identified by the
// service:resource:action triple. IsSystem and IsTenantLevel are mutually
// exclusive: system permissions apply across all tenants and must not carry a
// tenant, tenant-level permissions are custom to exactly one tenant.
type Permission struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Code          string         `json:"code" gorm:"type:varchar(150);not null;index"`
	Service       string         `json:"service" gorm:"type:varchar(50);not null;uniqueIndex:idx_perm_sra"`
	Resource      string         `json:"resource" gorm:"type:varchar(50);not null;uniqueIndex:idx_perm_sra"`
	Action        string         `json:"action" gorm:"type:varchar(50);not null;uniqueIndex:idx_perm_sra"`
	Description   string         `json:"description" gorm:"type:text"`
	IsSystem      bool           `json:"is_system" gorm:"default:false"`
	IsTenantLevel bool           `json:"is_tenant_level" gorm:"default:false"`
	TenantID      *uint          `json:"tenant_id,omitempty" gorm:"index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeSave derives the code from the triple when it was not supplied
func (p *Permission) BeforeSave(tx *gorm.DB) error {
	if p.Code == "" {
		p.Code = PermissionCode(p.Service, p.Resource, p.Action)
	}
	return nil
}

// PermissionCode builds the canonical service:resource:action code
func PermissionCode(service, resource, action string) string {
	return fmt.Sprintf("%s:%s:%s", service, resource, action)
}

// RolePermission is the explicit join between roles and permissions
type RolePermission struct {
	RoleID       uint      `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint      `json:"permission_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRole is the explicit join between users and roles
type UserRole struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	RoleID    uint      `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
}

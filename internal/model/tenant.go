package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant represents the tenant model stored in the database
// This is the core of our multi-tenant architecture
type Tenant struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100)"`
	Slug        string         `json:"slug" gorm:"type:varchar(100);uniqueIndex"`
	Subdomain   string         `json:"subdomain" gorm:"type:varchar(100);uniqueIndex"`
	Description string         `json:"description" gorm:"type:text"`
	Active      bool           `json:"active" gorm:"default:true"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Settings    datatypes.JSON `json:"settings,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsExpired checks whether the tenant has passed its expiry date
func (t *Tenant) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// IsUsable reports whether the tenant can serve requests
func (t *Tenant) IsUsable() bool {
	return t.Active && !t.IsExpired()
}

// Tenant membership roles
const (
	MembershipRoleOwner  = "owner"
	MembershipRoleAdmin  = "admin"
	MembershipRoleMember = "member"
)

// TenantMembership represents the association between users and tenants
// This enables multi-tenancy by allowing users to belong to multiple tenants
type TenantMembership struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	TenantID  uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	Role      string         `json:"role" gorm:"type:varchar(50);not null;default:'member'"` // Role within tenant: 'owner', 'admin', 'member'
	IsDefault bool           `json:"is_default" gorm:"default:false"`                        // Whether this is the user's default tenant
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents the user model stored in the database
type User struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	Email             string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Username          string         `json:"username" gorm:"type:varchar(100);uniqueIndex"`
	Password          string         `json:"-" gorm:"type:varchar(255)"`
	IsActive          bool           `json:"is_active" gorm:"default:true"`
	IsStaff           bool           `json:"is_staff" gorm:"default:false"`
	IsSuperuser       bool           `json:"is_superuser" gorm:"default:false"`
	EmailVerified     bool           `json:"email_verified" gorm:"default:false"`
	PasswordChangedAt *time.Time     `json:"password_changed_at,omitempty"`
	LastLoginAt       *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsAdmin reports whether the user is allowed to use the management login
func (u *User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

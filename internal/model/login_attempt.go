package model

import "time"

// Login attempt statuses
const (
	AttemptSuccess = "success"
	AttemptFailed  = "failed"
	AttemptBlocked = "blocked"
)

// LoginAttempt is the append-only audit trail of authentication attempts.
// The same rows drive the brute-force lockout decision: there is no separate
// counter table.
type LoginAttempt struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(100);index:idx_attempt_window"`
	IP           string    `json:"ip" gorm:"type:varchar(45);index:idx_attempt_window"`
	Status       string    `json:"status" gorm:"type:varchar(10);not null"`
	IsAdminLogin bool      `json:"is_admin_login" gorm:"index:idx_attempt_window"`
	UserID       *uint     `json:"user_id,omitempty"`
	TenantID     *uint     `json:"tenant_id,omitempty"`
	Reason       string    `json:"reason" gorm:"type:varchar(100)"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_attempt_window"`
}

package model

import "time"

// RevokedToken is the refresh-token blacklist. A refresh token whose JTI has
// a row here must no longer be honored. Rows can be purged once ExpiresAt has
// passed since the token would be rejected on expiry anyway.
type RevokedToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	JTI       string    `json:"jti" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    uint      `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	RevokedAt time.Time `json:"revoked_at"`
}

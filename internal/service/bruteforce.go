package service

import (
	"time"

	"identity-service/internal/model"
	"identity-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LockoutPolicy is the sliding-window brute-force threshold
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultLockoutPolicy matches the shipped configuration defaults
var DefaultLockoutPolicy = LockoutPolicy{MaxAttempts: 5, Window: 30 * time.Minute}

// LoginAllowed reports whether a new attempt for (email, ip) may proceed.
// There is no counter table: the decision counts failed LoginAttempt rows in
// the window. Admin and non-admin attempts are independent partitions of the
// same (email, ip) key space, and the email is matched exactly as presented.
func LoginAllowed(db *gorm.DB, email, ip string, isAdmin bool, policy LockoutPolicy) (bool, error) {
	since := time.Now().Add(-policy.Window)
	var count int64
	err := db.Model(&model.LoginAttempt{}).
		Where("email = ? AND ip = ? AND is_admin_login = ? AND status = ? AND created_at >= ?",
			email, ip, isAdmin, model.AttemptFailed, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count < int64(policy.MaxAttempts), nil
}

// RecordLoginAttempt appends one audit row. Every attempt is recorded,
// including blocked ones; the write is best-effort and never fails the login
// path itself.
func RecordLoginAttempt(db *gorm.DB, attempt model.LoginAttempt) {
	if err := db.Create(&attempt).Error; err != nil {
		logger.GetLogger().Warn("failed to record login attempt",
			zap.String("email", attempt.Email),
			zap.String("status", attempt.Status),
			zap.Error(err))
	}
}

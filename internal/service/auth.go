package service

import (
	"errors"
	"time"

	"identity-service/internal/model"
	"identity-service/pkg/jwtutil"
	"identity-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthResult is the outcome of a successful authentication
type AuthResult struct {
	User       *model.User
	Tenant     *model.Tenant
	Membership *model.TenantMembership
	Tokens     jwtutil.TokenPair
}

// Authenticate verifies a password login for a normal user, optionally bound
// to a tenant, and issues a token pair. Every attempt lands in the audit
// trail regardless of outcome.
func Authenticate(db *gorm.DB, login, password, ip string, tenant *model.Tenant, policy LockoutPolicy) (*AuthResult, error) {
	return authenticate(db, login, password, ip, tenant, false, policy)
}

// AuthenticateAdmin is the management login. It additionally requires a
// staff or superuser account, and the issued tokens carry the admin claims.
func AuthenticateAdmin(db *gorm.DB, login, password, ip string, policy LockoutPolicy) (*AuthResult, error) {
	return authenticate(db, login, password, ip, nil, true, policy)
}

func authenticate(db *gorm.DB, login, password, ip string, tenant *model.Tenant, isAdmin bool, policy LockoutPolicy) (*AuthResult, error) {
	var tenantID *uint
	if tenant != nil {
		tenantID = &tenant.ID
	}

	// Brute-force guard first: once the threshold is reached the attempt is
	// classified blocked and no password verification happens at all.
	allowed, err := LoginAllowed(db, login, ip, isAdmin, policy)
	if err != nil {
		return nil, err
	}
	if !allowed {
		RecordLoginAttempt(db, model.LoginAttempt{
			Email:        login,
			IP:           ip,
			Status:       model.AttemptBlocked,
			IsAdminLogin: isAdmin,
			TenantID:     tenantID,
			Reason:       "too_many_failed_attempts",
		})
		return nil, ErrLoginBlocked
	}

	recordFailure := func(userID *uint, reason string) {
		RecordLoginAttempt(db, model.LoginAttempt{
			Email:        login,
			IP:           ip,
			Status:       model.AttemptFailed,
			IsAdminLogin: isAdmin,
			UserID:       userID,
			TenantID:     tenantID,
			Reason:       reason,
		})
	}

	var user model.User
	err = db.Where("email = ? OR username = ?", login, login).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			recordFailure(nil, "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		recordFailure(&user.ID, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		recordFailure(&user.ID, "account_inactive")
		return nil, ErrAccountInactive
	}

	if isAdmin && !user.IsAdmin() {
		recordFailure(&user.ID, "not_staff")
		return nil, ErrAdminRequired
	}

	claims := jwtutil.UserClaims{
		Email:  user.Email,
		UserID: user.ID,
	}

	var membership *model.TenantMembership
	if tenant != nil {
		membership, err = GetMembership(db, user.ID, tenant.ID)
		if err != nil {
			if errors.Is(err, ErrNotTenantMember) {
				recordFailure(&user.ID, "not_tenant_member")
				return nil, ErrNotTenantMember
			}
			return nil, err
		}
		claims.TenantID = &tenant.ID
		claims.TenantName = tenant.Name
		claims.Role = membership.Role
	}

	if isAdmin {
		claims.IsAdmin = true
		claims.IsStaff = user.IsStaff
		claims.IsSuperuser = user.IsSuperuser
	}

	tokens, err := jwtutil.GenerateTokenPair(claims)
	if err != nil {
		return nil, err
	}

	RecordLoginAttempt(db, model.LoginAttempt{
		Email:        login,
		IP:           ip,
		Status:       model.AttemptSuccess,
		IsAdminLogin: isAdmin,
		UserID:       &user.ID,
		TenantID:     tenantID,
	})

	// last_login is advisory; losing it under concurrent logins is fine
	now := time.Now()
	if err := db.Model(&user).Update("last_login_at", now).Error; err != nil {
		logger.GetLogger().Warn("failed to update last_login_at",
			zap.Uint("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	return &AuthResult{User: &user, Tenant: tenant, Membership: membership, Tokens: tokens}, nil
}

// Refresh exchanges a valid, non-revoked refresh token for a new token pair.
// The subject claims, including the tenant and admin claims, are carried
// forward unchanged: a refresh must never widen or drop them. The presented
// refresh token is rotated out by blacklisting its JTI.
func Refresh(db *gorm.DB, refreshToken string) (jwtutil.TokenPair, error) {
	claims, err := jwtutil.ValidateRefreshToken(refreshToken)
	if err != nil {
		return jwtutil.TokenPair{}, ErrTokenInvalid
	}

	var count int64
	if err := db.Model(&model.RevokedToken{}).
		Where("jti = ?", claims.ID).Count(&count).Error; err != nil {
		return jwtutil.TokenPair{}, err
	}
	if count > 0 {
		return jwtutil.TokenPair{}, ErrTokenRevoked
	}

	next := jwtutil.UserClaims{
		Email:       claims.Email,
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		TenantName:  claims.TenantName,
		Role:        claims.Role,
		IsAdmin:     claims.IsAdmin,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
	}
	pair, err := jwtutil.GenerateTokenPair(next)
	if err != nil {
		return jwtutil.TokenPair{}, err
	}

	if err := revokeJTI(db, claims); err != nil {
		return jwtutil.TokenPair{}, err
	}
	return pair, nil
}

// Logout blacklists the refresh token so it can never be refreshed again.
// Revoking an already-revoked token succeeds.
func Logout(db *gorm.DB, refreshToken string) error {
	claims, err := jwtutil.ValidateRefreshToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}
	return revokeJTI(db, claims)
}

func revokeJTI(db *gorm.DB, claims *jwtutil.UserClaims) error {
	entry := model.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// Register creates a user. When a tenant context is present the tenant's
// user quota is consulted and a member row is created, and the scope's
// default role (if any) is assigned.
func Register(db *gorm.DB, email, username, password string, tenant *model.Tenant, quota QuotaChecker) (*model.User, error) {
	if email == "" || username == "" || password == "" {
		return nil, NewValidationError("registration", "email, username and password are required")
	}

	if tenant != nil && quota != nil {
		ok, err := quota.CheckUserQuota(db, tenant)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrQuotaExceeded
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := model.User{
		Email:    email,
		Username: username,
		Password: string(hashed),
		IsActive: true,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		var tenantID *uint
		if tenant != nil {
			tenantID = &tenant.ID
			membership := model.TenantMembership{
				UserID:   user.ID,
				TenantID: tenant.ID,
				Role:     model.MembershipRoleMember,
				Active:   true,
			}
			if err := tx.Create(&membership).Error; err != nil {
				return err
			}
		}

		// New users pick up the default role of their scope when one exists
		var defaultRole model.Role
		q := tx.Where("is_default = ?", true)
		if tenantID != nil {
			q = q.Where("tenant_id = ?", *tenantID)
		} else {
			q = q.Where("tenant_id IS NULL")
		}
		if err := q.First(&defaultRole).Error; err == nil {
			return tx.Create(&model.UserRole{UserID: user.ID, RoleID: defaultRole.ID}).Error
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, NewValidationError(takenUserField(db, email), "already in use")
		}
		return nil, err
	}
	return &user, nil
}

// takenUserField names the credential column a unique violation landed on
func takenUserField(db *gorm.DB, email string) string {
	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err == nil && count > 0 {
		return "email"
	}
	return "username"
}

// UpdateProfile applies email/username changes for a user. Uniqueness
// conflicts come back as field-level validation errors, not store errors.
func UpdateProfile(db *gorm.DB, userID uint, updates map[string]interface{}) (*model.User, error) {
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := db.Model(&user).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			field := "username"
			if email, ok := updates["email"].(string); ok {
				var count int64
				if err := db.Model(&model.User{}).
					Where("email = ? AND id <> ?", email, userID).
					Count(&count).Error; err == nil && count > 0 {
					field = "email"
				}
			}
			return nil, NewValidationError(field, "already in use")
		}
		return nil, err
	}

	if err := db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword verifies the current password before setting a new one and
// stamping password_changed_at.
func ChangePassword(db *gorm.DB, userID uint, currentPassword, newPassword string) error {
	if newPassword == "" {
		return NewValidationError("new_password", "new password is required")
	}

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now()
	return db.Model(&user).Updates(map[string]interface{}{
		"password":            string(hashed),
		"password_changed_at": now,
	}).Error
}

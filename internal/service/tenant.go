package service

import (
	"errors"
	"strconv"

	"identity-service/internal/model"

	"gorm.io/gorm"
)

// ResolveTenantByIdentifier looks up an active tenant by numeric id or slug.
// An identifier that does not resolve to a usable tenant is an explicit
// TenantNotFound, never a silent "no tenant".
func ResolveTenantByIdentifier(db *gorm.DB, identifier string) (*model.Tenant, error) {
	var tenant model.Tenant
	var err error
	if id, convErr := strconv.ParseUint(identifier, 10, 32); convErr == nil {
		err = db.First(&tenant, uint(id)).Error
	} else {
		err = db.Where("slug = ?", identifier).First(&tenant).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if !tenant.IsUsable() {
		return nil, ErrTenantNotFound
	}
	return &tenant, nil
}

// ResolveTenantBySubdomain looks up an active tenant by its subdomain. An
// unknown subdomain resolves to "no tenant" rather than an error, since most
// hosts (bare domain, www) carry no tenant at all.
func ResolveTenantBySubdomain(db *gorm.DB, subdomain string) (*model.Tenant, error) {
	if subdomain == "" {
		return nil, nil
	}
	var tenant model.Tenant
	err := db.Where("subdomain = ?", subdomain).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !tenant.IsUsable() {
		return nil, nil
	}
	return &tenant, nil
}

// GetTenantByID loads an active tenant by primary key
func GetTenantByID(db *gorm.DB, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := db.First(&tenant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if !tenant.IsUsable() {
		return nil, ErrTenantNotFound
	}
	return &tenant, nil
}

// CreateTenant provisions a tenant and its owner membership in one
// transaction so there is never a tenant without exactly one owner.
func CreateTenant(db *gorm.DB, tenant *model.Tenant, ownerID uint) error {
	if tenant.Name == "" || tenant.Slug == "" {
		return NewValidationError("tenant", "name and slug are required")
	}
	tenant.Active = true
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		membership := model.TenantMembership{
			UserID:   ownerID,
			TenantID: tenant.ID,
			Role:     model.MembershipRoleOwner,
			Active:   true,
		}
		return tx.Create(&membership).Error
	})
}

// GetMembership loads the active membership joining a user and a tenant
func GetMembership(db *gorm.DB, userID, tenantID uint) (*model.TenantMembership, error) {
	var membership model.TenantMembership
	err := db.Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotTenantMember
		}
		return nil, err
	}
	return &membership, nil
}

// ListUserTenants returns the tenants the user actively belongs to
func ListUserTenants(db *gorm.DB, userID uint) ([]model.TenantMembership, error) {
	var memberships []model.TenantMembership
	err := db.Preload("Tenant").
		Where("user_id = ? AND active = ?", userID, true).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

// AddTenantMember associates a user with a tenant. Creating the owner role
// through this path is rejected; ownership moves only via TransferOwnership.
func AddTenantMember(db *gorm.DB, tenantID, userID uint, role string, quota QuotaChecker) (*model.TenantMembership, error) {
	if role == "" {
		role = model.MembershipRoleMember
	}
	if role == model.MembershipRoleOwner {
		return nil, NewValidationError("role", "ownership is assigned via transfer, not membership creation")
	}

	tenant, err := GetTenantByID(db, tenantID)
	if err != nil {
		return nil, err
	}
	if quota != nil {
		ok, err := quota.CheckUserQuota(db, tenant)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrQuotaExceeded
		}
	}

	membership := model.TenantMembership{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Active:   true,
	}
	if err := db.Create(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

// RemoveTenantMember deactivates a membership. The owner cannot be removed;
// ownership has to be transferred first.
func RemoveTenantMember(db *gorm.DB, tenantID, userID uint) error {
	membership, err := GetMembership(db, userID, tenantID)
	if err != nil {
		return err
	}
	if membership.Role == model.MembershipRoleOwner {
		return NewValidationError("role", "the tenant owner cannot be removed")
	}
	return db.Model(membership).Update("active", false).Error
}

// TransferOwnership reassigns the single owner row to another active member
// and demotes the previous owner to admin, in one transaction so the tenant
// holds exactly one owner at every observable point.
func TransferOwnership(db *gorm.DB, tenantID, newOwnerID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var current model.TenantMembership
		err := tx.Where("tenant_id = ? AND role = ? AND active = ?",
			tenantID, model.MembershipRoleOwner, true).First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTenantNotFound
			}
			return err
		}
		if current.UserID == newOwnerID {
			return nil
		}

		var next model.TenantMembership
		err = tx.Where("tenant_id = ? AND user_id = ? AND active = ?",
			tenantID, newOwnerID, true).First(&next).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOwnershipTransferTargetNotMember
			}
			return err
		}

		if err := tx.Model(&current).Update("role", model.MembershipRoleAdmin).Error; err != nil {
			return err
		}
		return tx.Model(&next).Update("role", model.MembershipRoleOwner).Error
	})
}

// SetDefaultTenant marks one membership as the user's default, clearing any
// previous default in the same transaction.
func SetDefaultTenant(db *gorm.DB, userID, tenantID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		membership, err := GetMembership(tx, userID, tenantID)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.TenantMembership{}).
			Where("user_id = ? AND is_default = ?", userID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(membership).Update("is_default", true).Error
	})
}

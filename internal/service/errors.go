package service

import "errors"

// Error taxonomy shared by all service operations. Handlers map these to HTTP
// statuses; token and key verification failures deliberately carry no detail
// about whether the subject exists.
var (
	ErrInvalidCredentials               = errors.New("invalid credentials")
	ErrAccountInactive                  = errors.New("account inactive")
	ErrNotTenantMember                  = errors.New("user is not a member of the tenant")
	ErrTokenRevoked                     = errors.New("token has been revoked")
	ErrTokenInvalid                     = errors.New("token is invalid")
	ErrTenantNotFound                   = errors.New("tenant not found")
	ErrTenantRequired                   = errors.New("tenant is required")
	ErrInvalidPermissionClassification  = errors.New("invalid permission classification")
	ErrDuplicateRoleCode                = errors.New("role code already in use")
	ErrInsufficientScope                = errors.New("api key lacks the required scope")
	ErrKeyExpiredOrInactive             = errors.New("api key is expired or inactive")
	ErrInvalidKeyRequest                = errors.New("invalid api key request")
	ErrQuotaExceeded                    = errors.New("tenant quota exceeded")
	ErrLoginBlocked                     = errors.New("too many failed login attempts")
	ErrNotFound                         = errors.New("record not found")
	ErrSystemRoleImmutable              = errors.New("system role fields cannot be modified")
	ErrAdminRequired                    = errors.New("staff or superuser account required")
	ErrOwnershipTransferTargetNotMember = errors.New("new owner must be an active tenant member")
)

// ValidationError reports a malformed input with a field-level message
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError builds a field-level validation error
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

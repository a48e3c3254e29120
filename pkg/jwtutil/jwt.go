package jwtutil

import (
	"errors"
	"time"

	"identity-service/pkg/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	secret          = []byte("secret-key")
	accessLifetime  = 1 * time.Hour
	refreshLifetime = 7 * 24 * time.Hour
)

// ErrWrongTokenType is returned when an access token is presented where a
// refresh token is expected, or vice versa
var ErrWrongTokenType = errors.New("wrong token type")

// Initialize configures the signing key and token lifetimes
func Initialize(cfg *config.JWTConfig) {
	secret = []byte(cfg.SigningKey)
	if cfg.AccessTokenLifetime > 0 {
		accessLifetime = cfg.AccessTokenLifetime
	}
	if cfg.RefreshTokenLifetime > 0 {
		refreshLifetime = cfg.RefreshTokenLifetime
	}
}

// UserClaims represents the JWT claims for user authentication.
// The admin flags are set only by the management login and must survive every
// refresh of the token family unchanged.
type UserClaims struct {
	Email       string `json:"email"`
	UserID      uint   `json:"user_id"`
	TenantID    *uint  `json:"tenant_id,omitempty"`   // Tenant the session is bound to
	TenantName  string `json:"tenant_name,omitempty"` // Tenant name for convenience
	Role        string `json:"role,omitempty"`        // User's role in the current tenant
	TokenType   string `json:"token_type"`
	IsAdmin     bool   `json:"is_admin,omitempty"`
	IsStaff     bool   `json:"is_staff,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an access token plus the refresh token that renews it
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// GenerateTokenPair creates an access/refresh token pair carrying the given
// claims. The refresh token gets its own JTI so it can be blacklisted, and
// both tokens carry the same subject claims.
func GenerateTokenPair(claims UserClaims) (TokenPair, error) {
	now := time.Now()

	access := claims
	access.TokenType = TokenTypeAccess
	access.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(accessLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(secret)
	if err != nil {
		return TokenPair{}, err
	}

	refresh := claims
	refresh.TokenType = TokenTypeRefresh
	refresh.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(refreshLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(secret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ValidateToken validates and parses a JWT token of either type
func ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// ValidateAccessToken validates a token and requires it to be an access token
func ValidateAccessToken(tokenString string) (*UserClaims, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ValidateRefreshToken validates a token and requires it to be a refresh token
func ValidateRefreshToken(tokenString string) (*UserClaims, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

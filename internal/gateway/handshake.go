package gateway

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identified from the handshake token.
type Claims struct {
	TenantID string
	UserID   string
}

var errInvalidClaims = errors.New("gateway: token missing tenant_id or user_id claim")

// TokenValidator verifies a handshake token and extracts tenant/user
// identity. It is an interface so tests can swap in a deterministic
// fake instead of signing real JWTs.
type TokenValidator interface {
	Validate(token string) (Claims, error)
}

// JWTValidator validates HS256 handshake tokens signed with a shared
// secret.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator builds a validator over secret.
func NewJWTValidator(secret []byte) *JWTValidator {
	return &JWTValidator{secret: secret}
}

// Validate implements TokenValidator.
func (v *JWTValidator) Validate(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("gateway: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("gateway: parse token: %w", err)
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("gateway: token not valid")
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errInvalidClaims
	}

	tenantID, _ := mapClaims["tenant_id"].(string)
	userID, _ := mapClaims["user_id"].(string)
	if tenantID == "" || userID == "" {
		return Claims{}, errInvalidClaims
	}
	return Claims{TenantID: tenantID, UserID: userID}, nil
}

package gateway

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestJWTValidatorAcceptsValidToken(t *testing.T) {
	secret := []byte("shared-secret")
	v := NewJWTValidator(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"tenant_id": "org-1",
		"user_id":   "user-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.TenantID != "org-1" || claims.UserID != "user-1" {
		t.Errorf("Validate() = %+v, want tenant_id=org-1 user_id=user-1", claims)
	}
}

func TestJWTValidatorRejectsWrongSecret(t *testing.T) {
	v := NewJWTValidator([]byte("real-secret"))
	token := signToken(t, []byte("wrong-secret"), jwt.MapClaims{
		"tenant_id": "org-1",
		"user_id":   "user-1",
	})

	if _, err := v.Validate(token); err == nil {
		t.Error("expected Validate to reject a token signed with a different secret")
	}
}

func TestJWTValidatorRejectsMissingClaims(t *testing.T) {
	secret := []byte("shared-secret")
	v := NewJWTValidator(secret)

	token := signToken(t, secret, jwt.MapClaims{"tenant_id": "org-1"})
	if _, err := v.Validate(token); err == nil {
		t.Error("expected Validate to reject a token missing user_id")
	}
}

func TestJWTValidatorRejectsUnexpectedSigningMethod(t *testing.T) {
	v := NewJWTValidator([]byte("secret"))
	// none-alg token, unsigned
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"tenant_id": "org-1",
		"user_id":   "user-1",
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := v.Validate(signed); err == nil {
		t.Error("expected Validate to reject a non-HMAC signing method")
	}
}

func TestJWTValidatorRejectsMalformedToken(t *testing.T) {
	v := NewJWTValidator([]byte("secret"))
	if _, err := v.Validate("not-a-jwt"); err == nil {
		t.Error("expected Validate to reject a malformed token")
	}
}

// Package crypto implements envelope encryption for tenant transcript
// data: a per-deployment master key (KEK) wraps a random per-tenant data
// key (DEK), and the DEK in turn encrypts transcript payloads at rest.
//
// Both layers use AES-256-GCM. There is no actively-maintained
// third-party AEAD package in the dependency set this module draws
// from, and crypto/cipher's GCM mode is the standard, audited way to do
// authenticated encryption in Go; reaching for a third-party wrapper
// here would add a dependency without adding capability.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sentinel-voice/core/internal/apperr"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // standard GCM nonce length
)

// ErrCorruptCiphertext is returned when a blob is too short to contain a
// nonce, or authentication fails during decryption.
var ErrCorruptCiphertext = errors.New("crypto: corrupt or tampered ciphertext")

// TenantKeyManager wraps and unwraps per-tenant data-encryption keys
// under a single master key-encryption key. The KEK never touches disk
// and never encrypts transcript data directly.
type TenantKeyManager struct {
	kek cipher.AEAD
}

// NewTenantKeyManager builds a manager from a raw 32-byte master key.
// Startup must fail fast on a malformed key: a running service with no
// usable KEK cannot recover any tenant DEK, so this is reported as a
// fatal configuration error rather than deferred to first use.
func NewTenantKeyManager(masterKey []byte) (*TenantKeyManager, error) {
	aead, err := newAEAD(masterKey)
	if err != nil {
		return nil, apperr.Config("crypto.new_tenant_key_manager", err)
	}
	return &TenantKeyManager{kek: aead}, nil
}

// GenerateTenantKey creates a new random AES-256 DEK for a tenant and
// returns both the raw key (kept in memory only) and the KEK-wrapped
// blob to persist in the relational store.
func (m *TenantKeyManager) GenerateTenantKey() (dekRaw []byte, dekWrapped string, err error) {
	dekRaw = make([]byte, keySize)
	if _, err = rand.Read(dekRaw); err != nil {
		return nil, "", fmt.Errorf("crypto: generate dek: %w", err)
	}
	wrapped, err := seal(m.kek, dekRaw)
	if err != nil {
		return nil, "", err
	}
	return dekRaw, wrapped, nil
}

// UnwrapTenantKey decrypts a persisted DEK blob back to its raw bytes.
// Any failure here (wrong KEK, corrupted blob, cross-tenant mixup) is an
// integrity violation: the caller must halt rather than silently operate
// on a zero-value key.
func (m *TenantKeyManager) UnwrapTenantKey(dekWrapped string) ([]byte, error) {
	raw, err := open(m.kek, dekWrapped)
	if err != nil {
		return nil, apperr.Integrity("crypto.unwrap_tenant_key", ErrCorruptCiphertext)
	}
	return raw, nil
}

// DataEncryptor encrypts and decrypts transcript payloads for a single
// tenant's raw DEK.
type DataEncryptor struct {
	aead cipher.AEAD
}

// NewDataEncryptor builds an encryptor bound to a tenant's raw DEK.
func NewDataEncryptor(dekRaw []byte) (*DataEncryptor, error) {
	aead, err := newAEAD(dekRaw)
	if err != nil {
		return nil, apperr.Integrity("crypto.new_data_encryptor", err)
	}
	return &DataEncryptor{aead: aead}, nil
}

// Encrypt returns the base64 encoding of nonce||ciphertext||tag. An
// empty plaintext encrypts to an empty string, matching the no-op
// behaviour callers rely on for optional fields.
func (e *DataEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return seal(e.aead, []byte(plaintext))
}

// Decrypt reverses Encrypt. An empty blob decrypts to an empty string.
func (e *DataEncryptor) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := open(e.aead, blob)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt: %w", ErrCorruptCiphertext)
	}
	return string(raw), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return cipher.NewGCM(block)
}

func seal(aead cipher.AEAD, plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func open(aead cipher.AEAD, blob string) ([]byte, error) {
	combined, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	if len(combined) < nonceSize {
		return nil, ErrCorruptCiphertext
	}
	nonce, ciphertext := combined[:nonceSize], combined[nonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}

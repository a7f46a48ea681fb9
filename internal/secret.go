// Package internal holds the secret-material helpers shared by the engine:
// opaque token generation and one-way digests. Nothing here is exported
// outside the module.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SecretSize is the byte length of opaque refresh, verification, and reset
// secrets: 32 bytes = 256 bits of entropy.
const SecretSize = 32

// NewSecret returns a fresh opaque secret from crypto/rand.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// DigestSecret returns the sha256 digest stored in place of the secret.
func DigestSecret(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeSecret renders a secret in the form handed to clients.
func EncodeSecret(secret [SecretSize]byte) string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeSecret parses a client-presented token back into secret bytes.
func DecodeSecret(token string) ([SecretSize]byte, error) {
	var secret [SecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return secret, err
	}
	if len(raw) != SecretSize {
		return secret, errors.New("invalid secret size")
	}

	copy(secret[:], raw)
	return secret, nil
}

// DigestToken decodes and digests a client-presented token in one step.
func DigestToken(token string) ([32]byte, error) {
	secret, err := DecodeSecret(token)
	if err != nil {
		return [32]byte{}, err
	}
	return DigestSecret(secret), nil
}

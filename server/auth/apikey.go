// apikey.go implements API key and session token atoms.
//
// An API key has the form cfk_<id>_<secret>: a recognizable prefix, a
// public lookup ID, and a random secret of which only a bcrypt digest is
// stored. The raw key is shown once at mint time.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix marks CharacterForge API keys.
const APIKeyPrefix = "cfk"

// ErrMalformedAPIKey is returned when a presented key does not have the
// cfk_<id>_<secret> shape.
var ErrMalformedAPIKey = errors.New("malformed API key")

// MintedKey is a freshly created API key.
type MintedKey struct {
	// ID is the public lookup identifier, stored in plaintext.
	ID string

	// Raw is the full key to hand to the user, never stored.
	Raw string

	// SecretHash is the bcrypt digest of the secret part, for storage.
	SecretHash string
}

// MintAPIKey creates a new API key with a random ID and secret.
func MintAPIKey() (*MintedKey, error) {
	id, err := randomHex(8)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to generate key ID: %w", err)
	}
	secret, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to generate key secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), APIKeyCost)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to hash key secret: %w", err)
	}

	return &MintedKey{
		ID:         id,
		Raw:        fmt.Sprintf("%s_%s_%s", APIKeyPrefix, id, secret),
		SecretHash: string(hash),
	}, nil
}

// ParseAPIKey splits a presented key into its lookup ID and secret.
func ParseAPIKey(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, "_")
	if len(parts) != 3 || parts[0] != APIKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrMalformedAPIKey
	}
	return parts[1], parts[2], nil
}

// IsAPIKey reports whether a bearer token looks like an API key rather
// than a session token.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix+"_")
}

// VerifyAPIKeySecret checks a presented secret against the stored digest.
func VerifyAPIKeySecret(secretHash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// NewSessionToken generates a random opaque session token.
func NewSessionToken() (string, error) {
	token, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("auth: failed to generate session token: %w", err)
	}
	return token, nil
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

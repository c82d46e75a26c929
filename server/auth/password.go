// Package auth provides credential atoms for the HTTP server: password
// hashing, API key minting and parsing, and session token generation.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt cost factor for password hashing.
	DefaultCost = 12

	// APIKeyCost is the bcrypt cost for API key secrets. Keys are random
	// 128-bit values, not human-chosen passwords, so a lower cost keeps
	// per-request verification fast without weakening the digest.
	APIKeyCost = 6
)

var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordMismatch is returned when verification fails. It does not
	// reveal whether the stored hash was valid.
	ErrPasswordMismatch = errors.New("password does not match")
)

// HashPassword creates a bcrypt hash of password, safe for direct storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored bcrypt hash.
// Returns ErrPasswordMismatch for any failure.
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

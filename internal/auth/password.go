package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordService compares the access password against a bcrypt hash.
// Only the hash is ever configured; the plaintext lives with the user.
type PasswordService struct {
	hash []byte
}

// NewPasswordService creates a PasswordService from a bcrypt hash string
// (the output of HashPassword, typically set via KERNEL_PASSWORD_HASH).
func NewPasswordService(hash string) (*PasswordService, error) {
	if hash == "" {
		return nil, errors.New("auth: password hash is required")
	}
	// Validate the hash shape up front so a mangled env var fails at
	// startup instead of locking everyone out silently.
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: invalid bcrypt hash: %w", err)
	}
	return &PasswordService{hash: []byte(hash)}, nil
}

// Verify reports whether the given plaintext matches the configured hash.
func (s *PasswordService) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
}

// HashPassword produces a bcrypt hash suitable for NewPasswordService.
// Exposed for the gen-hash helper command and for tests.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}

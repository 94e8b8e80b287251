// Package auth provides token-based access control for the kernel API.
//
// The kernel serves a local notebook application, not a public web site,
// so the flow is deliberately small: the front end exchanges the
// configured password for a JWT once (POST /auth/token), then presents it
// as a Bearer token on every API call. When no secret is configured the
// whole layer is disabled and the API is open — the same opt-in posture
// the server takes for the history store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "luna-kernel"

// TokenTTL is how long an issued token stays valid. Long-lived by web
// standards; the caller is a desktop application holding the token for
// the length of a working session.
const TokenTTL = 12 * time.Hour

// TokenService handles JWT creation and validation. It holds the HMAC
// secret used to sign and verify tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: KERNEL_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims embeds jwt.RegisteredClaims; the subject identifies the caller.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a new access token for the given subject.
func (s *TokenService) Generate(subject string) (string, error) {
	return s.GenerateWithDuration(subject, TokenTTL)
}

// GenerateWithDuration creates a token with a custom expiry. Used by
// tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(subject string, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string, returning the subject.
//
// The method check rejects algorithm-confusion attacks: a token signed
// with anything but HMAC is refused before the signature is examined.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return "", fmt.Errorf("auth: parsing token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid token")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}

// Package auth issues and verifies bearer tokens, hashes passwords, and talks
// to GitHub for the optional OAuth sign-in.
//
// AUTHENTICATION FLOW:
//  1. POST /api/register or /api/login returns {"token": "<jwt>", "user": {...}}
//  2. The client keeps the token and sends it on every API call as
//     "Authorization: Bearer <jwt>"
//  3. RequireAuth validates the token and stores the user ID in the request
//     context; handlers read it with UserIDFromContext
//
// Tokens are stateless: nothing is stored server-side. A token is valid until
// it expires or the signing secret changes.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","iss":"journal","exp":1234567890,"iat":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/journal/internal/apperror"
)

const (
	// Issuer is written into every token and required on validation.
	Issuer = "journal"

	// DefaultTTL is how long a token stays valid when no TTL is configured.
	DefaultTTL = 7 * 24 * time.Hour

	minSecretLen = 16
)

// TokenService handles JWT creation and validation with a single HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A ttl of zero means DefaultTTL.
//
// The secret should be at least 32 bytes of random data in production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a new token whose subject is userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. A negative d
// yields an already expired token, which the tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := s.now()

	c := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns its subject.
//
// The jwt library checks the signature, the expiry, the issuer, and that the
// algorithm is HS256. Pinning the method with WithValidMethods stops a token
// signed with "none" (or with RS256 using the HMAC secret as a public key)
// from being accepted.
//
// A string that does not even parse as a JWT is apperror.Unauthenticated,
// the same as no token at all. Every other failure is an
// apperror.InvalidToken with the jwt error kept as Cause for logs.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return "", apperror.Unauthenticated()
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.InvalidToken(errors.New("token expired"))
		}
		return "", apperror.InvalidToken(err)
	}
	if !token.Valid {
		return "", apperror.InvalidToken(errors.New("token not valid"))
	}
	if c.Subject == "" {
		return "", apperror.InvalidToken(errors.New("token has no subject"))
	}

	return c.Subject, nil
}

// Package auth establishes who is calling. It issues and verifies the signed
// session token that carries an authenticated user name, hashes principal
// secrets, and talks to GitHub for external identities.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user logs in with a password, or through /auth/github/login and
//     the GitHub callback
//  2. The account service checks the credentials and asks TokenService for
//     a token naming the user and the account generation
//  3. The token goes into an HttpOnly cookie
//  4. On later requests the middleware validates the cookie and stores the
//     Identity in the request context
//
// The account flows never parse credentials themselves: they read the
// Identity this package placed in the request context (see middleware.go).
//
// WHY A GENERATION CLAIM?
// A JWT is stateless, so a user name alone is not enough: once an account
// is closed the name is free, and a token minted for the old owner would
// otherwise act on behalf of whoever registers the name next. Every token
// therefore also carries the creation time (Unix milliseconds) of the
// principal it was issued for. The service compares it against the stored
// principal before acting, and a mismatch means the token belongs to an
// account that no longer exists.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"alice","gen":1760000000000,"exp":...,"iss":"accountkeeper"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "accountkeeper"

	// DefaultTokenTTL is used when NewTokenService is given a zero TTL.
	DefaultTokenTTL = 12 * time.Hour
)

// Identity is who a validated token speaks for.
type Identity struct {
	UserName string
	// Generation is the creation time of the principal the token was issued
	// for, in Unix milliseconds. It tells apart two accounts that held the
	// same name at different times.
	Generation int64
}

// TokenService signs and verifies HS256 session tokens.
//
// It holds the HMAC secret used for both operations; keep it out of source
// control and rotate it in production.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long a freshly generated token stays valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" holds the user name and "gen" the
// account generation.
type claims struct {
	Generation int64 `json:"gen"`
	jwt.RegisteredClaims
}

// Generate signs a token for id.
//
// Signing algorithm: HS256 (HMAC-SHA256). It is symmetric, so the same key
// signs and verifies; that is enough for a single service.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime.
// Tests use a negative duration to get an already-expired token.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Generation: id.Generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserName,
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

// Validate verifies signature, algorithm, issuer and expiry, and returns
// the identity the token was issued for.
//
// It does not consult the store: whether the account still exists with
// that generation is for the caller to check.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject anything that is not HMAC, or an attacker could send
			// "alg":"none" and skip the signature check entirely.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("auth: token expired")
		}
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return Identity{}, fmt.Errorf("auth: token has no subject")
	}
	if c.Generation <= 0 {
		return Identity{}, fmt.Errorf("auth: token has no account generation")
	}

	return Identity{UserName: c.Subject, Generation: c.Generation}, nil
}

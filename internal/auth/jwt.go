// Package auth issues and checks session tokens, hashes passwords, talks to
// GitHub for OAuth sign-in and resolves the session of every request.
//
// SESSION FLOW OVERVIEW
//
//  1. The user signs in with email and password, or finishes the GitHub flow.
//  2. The server signs a JWT whose "sub" claim is the account ID.
//  3. The token is set as the HttpOnly "token" cookie (see SetSessionCookie).
//  4. The browser sends the cookie with every request.
//  5. SessionResolver verifies the signature and expiry, then loads the
//     account named by "sub". The loaded record decides the session, not the
//     token.
//  6. Sign-out expires the cookie.
//
// WHY A COOKIE?
//
// The web client calls the API from the same origin. The browser sends an
// HttpOnly cookie on its own and page scripts cannot read it, so an injected
// script cannot copy the token out.
// SameSite=Lax keeps it off cross-site POSTs while still allowing the
// top-level GET that lands on the OAuth callback.
//
// WHY ONLY "sub"?
//
// Roles and profile fields change: an admin list is edited, a username is
// renamed, an account is deleted. A token that copied them would keep the old
// values until it expires, up to DefaultTokenTTL later. Keeping only the ID
// costs one indexed read per request and makes every change take effect on
// the next request.
//
// TOKEN FORMAT
//
//	header.payload.signature
//	{"alg":"HS256","typ":"JWT"} . {"sub":"<account id>","iss":"pisure","iat":...,"exp":...} . HMAC-SHA256
//
// The payload is only base64url encoded. Anyone holding the token can read
// it, so nothing secret goes into claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "pisure"

	// DefaultTokenTTL is how long a sign-in stays valid.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// TokenService signs and verifies session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A ttl of zero selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens made by Generate. The session cookie uses it
// as its MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for userID that expires after the service TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to get an expired token.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry and returns the
// account ID from the "sub" claim.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
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
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}

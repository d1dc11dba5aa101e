// Package token issues and verifies the signed session credential handed out
// after a successful one-time-password login. Tokens are HS256 JWTs carrying
// only registered claims; the subject is the chat identity.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any token that does not verify, whatever
// the underlying reason. Callers must not surface finer detail to clients.
var ErrUnauthorized = errors.New("invalid or expired session token")

// Service signs and verifies session tokens with a shared HMAC key.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewService constructs a token Service. The signing key must be non-empty;
// ttl bounds how long an issued session stays valid.
func NewService(key []byte, ttl time.Duration) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("token: signing key must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be positive")
	}
	return &Service{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed session token for the given identity and returns it
// with its expiry time.
func (s *Service) Issue(identity string) (string, time.Time, error) {
	if identity == "" {
		return "", time.Time{}, errors.New("token: empty identity")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of a session token and returns the
// identity it was issued to. Every failure mode collapses to ErrUnauthorized.
func (s *Service) Verify(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			// Pin the signing method; an attacker-chosen "none" or RS256
			// header must not reach key material.
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

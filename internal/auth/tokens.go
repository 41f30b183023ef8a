// Package auth issues and verifies the signed bearer tokens that protect the
// relay endpoints. Tokens are stateless HS256 JWTs; expiry is the only
// termination mechanism, there is no server-side revocation list.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"seolens/internal/models"
)

// DefaultTokenTTL bounds how long an issued token remains valid.
const DefaultTokenTTL = time.Hour

var (
	// ErrMissingToken indicates that no bearer credential was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken indicates a malformed token or a failed signature check.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a well-formed token past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Identity is the verified subject carried by a valid token.
type Identity struct {
	UserID   string
	Username string
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenOption configures a token Service.
type TokenOption func(*Service)

// WithTTL overrides the default token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source used when stamping claims. Tests use this
// to issue tokens in the past.
func WithClock(now func() time.Time) TokenOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service signs and verifies bearer tokens with a process-wide secret loaded
// once at startup.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a token service from the signing secret.
func NewService(secret string, opts ...TokenOption) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	svc := &Service{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Issue signs a token embedding the user's identity, expiring after the
// configured TTL.
func (s *Service) Issue(user models.User) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: user.Username,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of the presented token and returns
// the embedded identity. Failures map onto the package sentinel errors so
// callers can distinguish absent, invalid, and expired credentials.
func (s *Service) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}
	parsed := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid || parsed.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: parsed.Subject, Username: parsed.Username}, nil
}

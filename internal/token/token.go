// Package token issues and verifies the signed, time-limited session tokens
// handed out by the credential service.
package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/pkg/utilities"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevoked wraps ErrInvalidToken so callers can treat both the same.
	ErrRevoked = fmt.Errorf("%w: revoked", ErrInvalidToken)
)

const DefaultTTL = 24 * time.Hour

type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// ConfigFromEnv reads JWT_SECRET, TOKEN_TTL (Go duration) and TOKEN_ISSUER.
func ConfigFromEnv() Config {
	ttl := DefaultTTL
	if v, err := time.ParseDuration(os.Getenv("TOKEN_TTL")); err == nil && v > 0 {
		ttl = v
	}
	iss := os.Getenv("TOKEN_ISSUER")
	if iss == "" {
		iss = "ewaste-auth"
	}
	return Config{Secret: []byte(os.Getenv("JWT_SECRET")), TTL: ttl, Issuer: iss}
}

// Claims carried by every session token. Subject is the account id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (c *Claims) AccountID() string { return c.Subject }

// Service signs tokens with HS256 and checks them against the revocation store.
type Service struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoked RevocationStore
	now     func() time.Time
}

func NewService(cfg Config, revoked RevocationStore) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: JWT_SECRET is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if revoked == nil {
		revoked = NoopRevocationStore{}
	}
	return &Service{secret: cfg.Secret, ttl: cfg.TTL, issuer: cfg.Issuer, revoked: revoked, now: time.Now}, nil
}

// TTL is the validity window of freshly issued tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a new token for the account. Each call gets its own jti.
func (s *Service) Issue(accountID, role string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utilities.NewKSUID(),
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, expiry and revocation.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke blocks the token's jti until the token would have expired anyway.
// Already-invalid tokens are reported as such and nothing is stored.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, remaining)
}

func (s *Service) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// Any other form yields "".
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

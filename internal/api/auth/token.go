// Package auth validates the tenant JWTs presented to the API and the
// recognition stream.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
)

// Sentinel errors for authentication failures.
var (
	ErrInvalidToken = errors.NewStd("invalid or expired token")
	ErrMissingToken = errors.NewStd("missing token")
)

// Claims is the token payload. ID is the tenant the bearer acts for.
type Claims struct {
	TenantID uint `json:"id"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 tenant tokens
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a service from the security.jwt settings
func NewTokenService(cfg conf.JWTSettings) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.Newf("jwt secret is not configured").
			Component("auth").
			Category(errors.CategoryConfiguration).
			Context("setting", "security.jwt.secret").
			Build()
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Issue mints a token for tenantID. A zero TTL mints a token without expiry.
func (s *TokenService) Issue(tenantID uint) (string, error) {
	now := s.now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.New(err).
			Component("auth").
			Category(errors.CategoryAuth).
			Context("operation", "sign_token").
			Build()
	}
	return signed, nil
}

// Validate checks signature, algorithm, expiry and issuer and returns the tenant id
func (s *TokenService) Validate(raw string) (uint, error) {
	if raw == "" {
		return 0, authError(ErrMissingToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return 0, authError(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}
	if claims.TenantID == 0 {
		return 0, authError(fmt.Errorf("%w: token carries no tenant id", ErrInvalidToken))
	}
	return claims.TenantID, nil
}

func authError(err error) error {
	return errors.New(err).
		Component("auth").
		Category(errors.CategoryAuth).
		Priority(errors.PriorityLow).
		Build()
}

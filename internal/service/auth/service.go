// Package auth implements the operator REST surface's bearer-token
// validation (§6 collaborator). Token issuance and credential storage
// are out of scope for the CSMS core; this package only verifies a
// token presented by a caller and resolves it to a User.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ports"
)

type claims struct {
	jwt.RegisteredClaims
}

type Service struct {
	users     ports.UserRepository
	cache     ports.Cache
	jwtSecret []byte
	log       *zap.Logger
}

func NewService(users ports.UserRepository, cache ports.Cache, jwtSecret string, log *zap.Logger) ports.AuthService {
	return &Service{
		users:     users,
		cache:     cache,
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
}

var _ ports.AuthService = (*Service)(nil)

// Login and RefreshToken are out of scope: operator credentials and
// their storage schema are named as external collaborators, not part
// of the CSMS core.
func (s *Service) Login(ctx context.Context, email, password string) (string, string, error) {
	return "", "", errors.New("auth: token issuance is handled outside the CSMS core")
}

func (s *Service) RefreshToken(ctx context.Context, token string) (string, error) {
	return "", errors.New("auth: token issuance is handled outside the CSMS core")
}

func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*domain.User, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, errors.New("invalid token claims")
	}

	if s.cache != nil && c.ID != "" {
		if _, cacheErr := s.cache.Get(ctx, revokedJTIKey(c.ID)); cacheErr == nil {
			return nil, errors.New("token revoked")
		}
	}

	user, err := s.users.FindByID(ctx, c.Subject)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if user == nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// Revoke blacklists a token's jti for the remainder of its lifetime,
// consulted by ValidateToken above.
func (s *Service) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, revokedJTIKey(jti), "1", ttl)
}

func revokedJTIKey(jti string) string { return "auth:revoked:" + jti }

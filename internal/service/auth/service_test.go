package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// errNotFound mimics the miss error a real ports.Cache implementation
// (e.g. redis.Nil) returns for an absent key, for tests that stub
// GetFunc explicitly on the not-revoked path.
var errNotFound = errors.New("not found")

func signToken(t *testing.T, secret, subject, jti string, expiresIn time.Duration) string {
	t.Helper()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestValidateToken_Success(t *testing.T) {
	ctx := context.Background()
	secret := "test-secret"
	users := &mocks.MockUserRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.User, error) {
			return &domain.User{ID: id, Name: "Operator"}, nil
		},
	}
	cache := &mocks.MockCache{GetFunc: func(ctx context.Context, key string) (string, error) { return "", errNotFound }}
	svc := NewService(users, cache, secret, newTestLogger())

	token := signToken(t, secret, "user-1", "jti-1", time.Hour)
	user, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("expected user-1, got %s", user.ID)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	ctx := context.Background()
	secret := "test-secret"
	svc := NewService(&mocks.MockUserRepository{}, mocks.NewMockCache(), secret, newTestLogger())

	token := signToken(t, secret, "user-1", "jti-1", -time.Hour)
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&mocks.MockUserRepository{}, mocks.NewMockCache(), "real-secret", newTestLogger())

	token := signToken(t, "wrong-secret", "user-1", "jti-1", time.Hour)
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Error("expected error for token signed with the wrong secret")
	}
}

func TestValidateToken_UnknownUser(t *testing.T) {
	ctx := context.Background()
	secret := "test-secret"
	users := &mocks.MockUserRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.User, error) {
			return nil, nil
		},
	}
	cache := &mocks.MockCache{GetFunc: func(ctx context.Context, key string) (string, error) { return "", errNotFound }}
	svc := NewService(users, cache, secret, newTestLogger())

	token := signToken(t, secret, "ghost", "jti-1", time.Hour)
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Error("expected error for a token whose subject has no user")
	}
}

// TestValidateToken_Revoked exercises Revoke's interaction with
// ValidateToken: a jti blacklisted via Revoke must fail subsequent
// validation even though the JWT signature and expiry are still valid.
func TestValidateToken_Revoked(t *testing.T) {
	ctx := context.Background()
	secret := "test-secret"
	users := &mocks.MockUserRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.User, error) {
			t.Error("repository should not be consulted for a revoked token")
			return nil, nil
		},
	}
	cache := mocks.NewMockCache()
	svc := NewService(users, cache, secret, newTestLogger())

	token := signToken(t, secret, "user-1", "jti-revoked", time.Hour)

	impl := svc.(*Service)
	if err := impl.Revoke(ctx, "jti-revoked", time.Hour); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Error("expected error for a revoked token")
	}
}

func TestLogin_OutOfScope(t *testing.T) {
	svc := NewService(&mocks.MockUserRepository{}, mocks.NewMockCache(), "secret", newTestLogger())
	if _, _, err := svc.Login(context.Background(), "a@b.com", "pw"); err == nil {
		t.Error("expected Login to report it is out of scope")
	}
}

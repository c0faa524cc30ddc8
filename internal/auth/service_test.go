package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/feeledger/internal/config"
	"github.com/congo-pay/feeledger/internal/identity"
)

func newTestService(t *testing.T) (*Service, *identity.Service, identity.Repository) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	cfg := config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewService(cfg, repo), identity.NewService(repo, nil, nil), repo
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	svc, ids, _ := newTestService(t)
	ctx := context.Background()
	user, err := ids.Register(ctx, identity.Credentials{Phone: "100", PIN: "1234", DeviceID: "d"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	principal, err := svc.Principal(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if principal != user.ID {
		t.Fatalf("expected principal %s, got %s", user.ID, principal)
	}
	if _, err := svc.Principal(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify as access token, got %v", err)
	}

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := svc.Principal(ctx, access); err != nil {
		t.Fatalf("refreshed token rejected: %v", err)
	}
}

func TestLogoutInvalidatesTokens(t *testing.T) {
	svc, ids, _ := newTestService(t)
	ctx := context.Background()
	user, _ := ids.Register(ctx, identity.Credentials{Phone: "200", PIN: "1234", DeviceID: "d"})
	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Principal(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalidated token, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail after logout")
	}
}

func TestVerifyRejectsExpiredAndTampered(t *testing.T) {
	secret := []byte("k")
	expired, err := Sign(newClaims(UseAccess, "u1", 0, -time.Minute, time.Now()), secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Verify(expired, secret, UseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	valid, _ := Sign(newClaims(UseAccess, "u1", 0, time.Minute, time.Now()), secret)
	if _, err := Verify(valid, []byte("other"), UseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}
	if _, err := Verify("not.a.token", secret, UseAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage to fail")
	}
}

func TestRefreshTokenIsNotAnAccessTokenWithSharedSecret(t *testing.T) {
	repo := identity.NewMemoryRepository()
	cfg := config.Config{
		JWTSecret:       "shared",
		RefreshSecret:   "shared",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	svc := NewService(cfg, repo)
	ctx := context.Background()
	user, err := identity.NewService(repo, nil, nil).Register(ctx, identity.Credentials{Phone: "300", PIN: "1234", DeviceID: "d"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Principal(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

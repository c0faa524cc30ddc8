package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/feeledger/internal/config"
	"github.com/congo-pay/feeledger/internal/identity"
)

// ErrRevoked is returned for tokens issued before the user's last logout.
var ErrRevoked = errors.New("token revoked")

// Service issues and verifies the bearer tokens that carry the principal.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	users         identity.Repository
	now           func() time.Time
}

func NewService(cfg config.Config, users identity.Repository) *Service {
	return &Service{
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		users:         users,
		now:           time.Now,
	}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for a user already authenticated by identity.Service.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	now := s.now()
	access := newClaims(UseAccess, user.ID, user.TokenVersion, s.accessTTL, now)
	access.Phone = user.Phone
	access.Tier = user.Tier
	accessToken, err := Sign(access, s.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := Sign(newClaims(UseRefresh, user.ID, user.TokenVersion, s.refreshTTL, now), s.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := Verify(refreshToken, s.refreshSecret, UseRefresh)
	if err != nil {
		return "", 0, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}

	access := newClaims(UseAccess, user.ID, user.TokenVersion, s.accessTTL, s.now())
	access.Phone = user.Phone
	access.Tier = user.Tier
	signed, err := Sign(access, s.accessSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.accessTTL.Seconds()), nil
}

// Principal verifies an access token and returns its subject.
func (s *Service) Principal(ctx context.Context, accessToken string) (string, error) {
	claims, err := Verify(accessToken, s.accessSecret, UseAccess)
	if err != nil {
		return "", err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1); err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	return nil
}

func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, ErrInvalidToken
		}
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrRevoked)
	}
	return user, nil
}

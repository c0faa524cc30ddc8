package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/feeledger/internal/logging"
)

const (
	tierZero = "tier0"
	tierOne  = "tier1"
)

var (
	ErrWeakPIN               = errors.New("PIN must be at least 4 digits")
	ErrInvalidCredentials    = errors.New("invalid phone or PIN")
	ErrDeviceBindingRequired = errors.New("device binding required")
	ErrDeviceMismatch        = errors.New("device mismatch")
)

// AccountListener is notified once a user account has been created.
type AccountListener interface {
	OnAccountCreate(ctx context.Context, accountID string) error
}

// Service manages identity lifecycle.
type Service struct {
	repo     Repository
	listener AccountListener
	logger   *slog.Logger
}

// NewService creates a new identity service. listener may be nil.
func NewService(repo Repository, listener AccountListener, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, listener: listener, logger: logger}
}

// Register creates a new Tier0 user, stores a hashed PIN and announces the
// account so its wallet gets provisioned. A failed announcement is logged;
// the wallet is then created lazily by the first deposit.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if len(creds.PIN) < 4 {
		return User{}, ErrWeakPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash pin: %w", err)
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     creds.Phone,
		Tier:      tierZero,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	if s.listener != nil {
		if err := s.listener.OnAccountCreate(ctx, user.ID); err != nil {
			s.logger.WarnContext(ctx, "account created without wallet",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))

	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, creds.Phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	switch {
	case user.DeviceID == "" && creds.DeviceID == "":
		return User{}, ErrDeviceBindingRequired
	case user.DeviceID == "":
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, fmt.Errorf("bind device: %w", err)
		}
		user.DeviceID = creds.DeviceID
	case creds.DeviceID != "" && user.DeviceID != creds.DeviceID:
		return User{}, ErrDeviceMismatch
	}

	if user.Tier == tierZero {
		user.Tier = tierOne
	}

	return user, nil
}

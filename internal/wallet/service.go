package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/store"
)

// ErrWalletExists is returned when provisioning an account that already has a wallet.
var ErrWalletExists = errors.New("wallet exists")

// Service provisions and reads user wallets.
type Service struct {
	store    store.Store
	currency string
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(s store.Store, currency string) *Service {
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	return &Service{store: s, currency: currency, now: time.Now}
}

// Provision creates an empty wallet for a newly registered account. An
// existing wallet is never overwritten.
func (s *Service) Provision(ctx context.Context, accountID string) (ledger.Wallet, error) {
	if accountID == "" {
		return ledger.Wallet{}, fmt.Errorf("%w: account id is required", ledger.ErrMalformedInput)
	}
	if accountID == ledger.PlatformWalletID {
		return ledger.Wallet{}, fmt.Errorf("%w: account id %q is reserved", ledger.ErrMalformedInput, accountID)
	}
	w := ledger.NewWallet(accountID, s.currency, s.now())
	if err := s.store.CreateWallet(ctx, ledger.UserWallet(accountID), w); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ledger.Wallet{}, ErrWalletExists
		}
		return ledger.Wallet{}, fmt.Errorf("provision wallet %s: %w", accountID, err)
	}
	return w, nil
}

// Get retrieves the wallet of an account.
func (s *Service) Get(ctx context.Context, accountID string) (ledger.Wallet, error) {
	w, err := s.store.Wallet(ctx, ledger.UserWallet(accountID))
	if errors.Is(err, store.ErrNotFound) {
		return ledger.Wallet{}, &ledger.WalletNotFoundError{AccountID: accountID}
	}
	return w, err
}

// Entries lists the ledger entries of an account, oldest first.
func (s *Service) Entries(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	return s.store.Entries(ctx, accountID)
}

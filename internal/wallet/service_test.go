package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/store"
)

func TestProvisionCreatesEmptyWallet(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s, "EGP")
	ctx := context.Background()

	w, err := svc.Provision(ctx, "user-1")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !w.Balance.IsZero() || w.Currency != "EGP" {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	fetched, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.AccountID != "user-1" || !fetched.TotalDeposited.IsZero() {
		t.Fatalf("unexpected stored wallet: %+v", fetched)
	}
}

func TestProvisionNeverOverwrites(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s, "")
	ctx := context.Background()

	if err := store.SeedWallet(ctx, s, ledger.UserWallet("user-1"), decimal.NewFromInt(40)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Provision(ctx, "user-1"); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
	w, _ := svc.Get(ctx, "user-1")
	if !w.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("balance overwritten: %s", w.Balance)
	}
}

func TestProvisionRejectsPlatformAccountID(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s, "EGP")
	ctx := context.Background()

	_, err := svc.Provision(ctx, ledger.PlatformWalletID)
	if !errors.Is(err, ledger.ErrMalformedInput) {
		t.Fatalf("provision %q: got %v, want ErrMalformedInput", ledger.PlatformWalletID, err)
	}
	if _, err := s.Wallet(ctx, ledger.UserWallet(ledger.PlatformWalletID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("user wallet %q must not exist, got %v", ledger.PlatformWalletID, err)
	}
}

func TestGetMissingWallet(t *testing.T) {
	svc := NewService(store.NewMemory(), "EGP")
	_, err := svc.Get(context.Background(), "ghost")
	var missing *ledger.WalletNotFoundError
	if !errors.As(err, &missing) || missing.AccountID != "ghost" {
		t.Fatalf("expected WalletNotFoundError, got %v", err)
	}
}

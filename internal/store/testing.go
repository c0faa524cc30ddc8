package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
)

// SeedWallet is a test helper that overwrites a wallet with the given balance,
// booking it as deposited (user wallets) or collected (platform wallet).
func SeedWallet(ctx context.Context, s Store, ref ledger.WalletRef, balance decimal.Decimal) error {
	w := ledger.NewWallet(ref.ID, ledger.DefaultCurrency, time.Now())
	w.Balance = balance
	if ref.Kind == ledger.KindPlatform {
		w.TotalCollected = balance
	} else {
		w.TotalDeposited = balance
	}
	b := NewBatch()
	b.SetWallet(ref, w)
	return s.Commit(ctx, b)
}

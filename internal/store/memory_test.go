package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/feeledger/internal/ledger"
)

func TestMemoryRetriesUnderContention(t *testing.T) {
	const workers = 20
	m := NewMemory(WithMaxAttempts(workers + 1))
	ctx := context.Background()
	ref := ledger.UserWallet("hot")

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				w, err := tx.Wallet(ctx, ref)
				if errors.Is(err, ErrNotFound) {
					w = ledger.NewWallet(ref.ID, ledger.DefaultCurrency, time.Now())
				} else if err != nil {
					return err
				}
				w.Balance = w.Balance.Add(decimal.NewFromInt(1))
				tx.SetWallet(ref, w)
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := m.Wallet(ctx, ref)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(workers)), got.Balance.String())
}

func TestMemoryGivesUpAfterMaxAttempts(t *testing.T) {
	m := NewMemory(WithMaxAttempts(2))
	ctx := context.Background()
	ref := ledger.UserWallet("u1")
	require.NoError(t, SeedWallet(ctx, m, ref, decimal.NewFromInt(1)))

	calls := 0
	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		calls++
		w, err := tx.Wallet(ctx, ref)
		if err != nil {
			return err
		}
		// A competing writer lands between the read and the commit.
		require.NoError(t, m.IncrementWallet(ctx, ref, WalletDelta{Balance: decimal.NewFromInt(1)}))
		tx.SetWallet(ref, w)
		return nil
	})
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, 2, calls)
}

func TestMemoryCommitHonoursCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatch()
	b.IncrementWallet(ledger.PlatformWallet(), WalletDelta{Balance: decimal.NewFromInt(1), CreateIfMissing: true})
	require.ErrorIs(t, m.Commit(ctx, b), context.Canceled)

	_, err := m.Wallet(context.Background(), ledger.PlatformWallet())
	require.ErrorIs(t, err, ErrNotFound)
}

package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/feeledger/internal/ledger"
)

const testDatabaseEnv = "FEELEDGER_TEST_DATABASE_URL"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemoryContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestPostgresContract(t *testing.T) {
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := Migrations.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	runContract(t, func(t *testing.T) Store {
		_, err := pool.Exec(ctx, `TRUNCATE wallets, company_wallet, transactions, wallet_transactions`)
		require.NoError(t, err)
		return NewPostgres(pool)
	})
}

func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("missing documents", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Wallet(ctx, ledger.UserWallet("nobody"))
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Transaction(ctx, "nothing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create wallet once", func(t *testing.T) {
		s := newStore(t)
		ref := ledger.UserWallet("u1")
		w := ledger.NewWallet("u1", ledger.DefaultCurrency, time.Now())
		require.NoError(t, s.CreateWallet(ctx, ref, w))
		require.ErrorIs(t, s.CreateWallet(ctx, ref, w), ErrAlreadyExists)

		got, err := s.Wallet(ctx, ref)
		require.NoError(t, err)
		require.True(t, got.Balance.IsZero())
		require.Equal(t, ledger.DefaultCurrency, got.Currency)
	})

	t.Run("increment creates platform wallet on demand", func(t *testing.T) {
		s := newStore(t)
		ref := ledger.PlatformWallet()
		delta := WalletDelta{Balance: dec("0.006"), TotalCollected: dec("0.006"), CreateIfMissing: true, Currency: "EGP"}
		require.NoError(t, s.IncrementWallet(ctx, ref, delta))
		require.NoError(t, s.IncrementWallet(ctx, ref, delta))

		got, err := s.Wallet(ctx, ref)
		require.NoError(t, err)
		require.True(t, got.Balance.Equal(dec("0.012")), got.Balance.String())
		require.True(t, got.TotalCollected.Equal(dec("0.012")))
	})

	t.Run("increment without create fails on missing wallet", func(t *testing.T) {
		s := newStore(t)
		err := s.IncrementWallet(ctx, ledger.UserWallet("ghost"), WalletDelta{Balance: dec("1")})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		s := newStore(t)
		ref := ledger.UserWallet("u1")
		require.NoError(t, SeedWallet(ctx, s, ref, dec("1")))

		b := NewBatch()
		b.IncrementWallet(ref, WalletDelta{Balance: dec("-0.5"), TotalSpent: dec("0.5")})
		b.CreateEntry(ledger.Entry{ID: "8b7c2a53-4a4e-4d0c-9d2c-6d7f0f4b1a01", AccountID: "u1", Type: ledger.EntryFeeDeduction,
			Amount: dec("-0.5"), BalanceBefore: dec("1"), BalanceAfter: dec("0.5")})
		b.IncrementWallet(ledger.UserWallet("ghost"), WalletDelta{Balance: dec("-0.5")})
		require.Equal(t, 3, b.Len())

		require.ErrorIs(t, s.Commit(ctx, b), ErrNotFound)

		got, err := s.Wallet(ctx, ref)
		require.NoError(t, err)
		require.True(t, got.Balance.Equal(dec("1")), got.Balance.String())
		entries, err := s.Entries(ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("conditional settlement update", func(t *testing.T) {
		s := newStore(t)
		now := time.Now().UTC()
		require.NoError(t, s.CreateTransaction(ctx, ledger.Transaction{
			ID: "tx1", PayerID: "a", CounterpartyID: "b", Status: ledger.StatusAccepted, CreatedAt: now, UpdatedAt: now,
		}))
		settled := true
		update := TransactionUpdate{Status: ledger.StatusCompleted, FeeDeducted: &settled, CompletedAt: &now, RequireUnsettled: true}

		require.NoError(t, s.UpdateTransaction(ctx, "tx1", update))
		require.ErrorIs(t, s.UpdateTransaction(ctx, "tx1", update), ErrAlreadySettled)
		require.ErrorIs(t, s.UpdateTransaction(ctx, "missing", update), ErrNotFound)

		got, err := s.Transaction(ctx, "tx1")
		require.NoError(t, err)
		require.Equal(t, ledger.StatusCompleted, got.Status)
		require.True(t, got.FeeDeducted)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("transactions serialize concurrent read-modify-write", func(t *testing.T) {
		s := newStore(t)
		ref := ledger.UserWallet("u1")
		require.NoError(t, SeedWallet(ctx, s, ref, dec("10")))

		const workers = 4
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				amount := decimal.NewFromInt(int64(i + 1))
				errs <- s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
					w, err := tx.Wallet(ctx, ref)
					if err != nil {
						return err
					}
					w.Balance = w.Balance.Add(amount)
					w.TotalDeposited = w.TotalDeposited.Add(amount)
					tx.SetWallet(ref, w)
					tx.CreateEntry(ledger.Entry{
						ID: fmt.Sprintf("00000000-0000-0000-0000-%012d", i+1), AccountID: "u1", Type: ledger.EntryDeposit,
						Amount: amount, BalanceBefore: w.Balance.Sub(amount), BalanceAfter: w.Balance,
					})
					return nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Wallet(ctx, ref)
		require.NoError(t, err)
		require.True(t, got.Balance.Equal(dec("20")), got.Balance.String())
		entries, err := s.Entries(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, entries, workers)
	})

	t.Run("transaction error discards writes", func(t *testing.T) {
		s := newStore(t)
		ref := ledger.UserWallet("u1")
		boom := fmt.Errorf("boom")
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			tx.SetWallet(ref, ledger.NewWallet("u1", "EGP", time.Now()))
			return boom
		})
		require.ErrorIs(t, err, boom)
		_, err = s.Wallet(ctx, ref)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reads must precede writes", func(t *testing.T) {
		s := newStore(t)
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			tx.SetWallet(ledger.UserWallet("u1"), ledger.NewWallet("u1", "EGP", time.Now()))
			_, err := tx.Wallet(ctx, ledger.UserWallet("u1"))
			return err
		})
		require.ErrorIs(t, err, ErrReadAfterWrite)
	})
}

// Package settlement debits the per-transaction fee from both parties of an
// accepted transaction and credits the platform wallet in one atomic write.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/logging"
	"github.com/congo-pay/feeledger/internal/store"
)

// Mode selects how balances are read before the fee is applied.
type Mode string

const (
	// ModeSerialized reads and writes inside one store transaction, so a
	// concurrent writer forces a retry instead of a stale check.
	ModeSerialized Mode = "serialized"
	// ModeBatch reads the three wallets independently and commits one batch.
	ModeBatch Mode = "batch"
)

// ParseMode validates a configured mode string. Empty means ModeSerialized.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSerialized:
		return ModeSerialized, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", fmt.Errorf("unknown settlement mode %q", s)
	}
}

// Input identifies the parties of a transaction being settled.
type Input struct {
	PayerID          string
	CounterpartyID   string
	CounterpartyTxID string
}

// Result reports the balances written by a settlement.
type Result struct {
	TransactionID       string
	Fee                 decimal.Decimal
	PayerBalance        decimal.Decimal
	CounterpartyBalance decimal.Decimal
	PlatformBalance     decimal.Decimal
	AlreadySettled      bool
}

// Engine settles transaction fees against a Store.
type Engine struct {
	store    store.Store
	recorder *ledger.Recorder
	fee      decimal.Decimal
	currency string
	mode     Mode
	logger   *slog.Logger
	now      func() time.Time

	recordPlatformCredit bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFee overrides ledger.DefaultTransactionFee.
func WithFee(fee decimal.Decimal) Option {
	return func(e *Engine) { e.fee = fee }
}

// WithCurrency sets the currency of a platform wallet created on first credit.
func WithCurrency(currency string) Option {
	return func(e *Engine) { e.currency = currency }
}

func WithMode(mode Mode) Option {
	return func(e *Engine) { e.mode = mode }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPlatformCreditEntry also records a credit entry for the platform
// wallet. By default only the two fee deductions are recorded.
func WithPlatformCreditEntry(enabled bool) Option {
	return func(e *Engine) { e.recordPlatformCredit = enabled }
}

// NewEngine constructs a settlement engine.
func NewEngine(s store.Store, recorder *ledger.Recorder, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		recorder: recorder,
		fee:      ledger.DefaultTransactionFee,
		currency: ledger.DefaultCurrency,
		mode:     ModeSerialized,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recorder == nil {
		e.recorder = ledger.NewRecorder()
	}
	return e
}

// Fee returns the flat fee charged to each party.
func (e *Engine) Fee() decimal.Decimal {
	return e.fee
}

// Settle charges the fee to payer and counterparty and credits twice the fee
// to the platform wallet. Either every write lands or none does. Settling a
// transaction whose fee was already deducted returns AlreadySettled and
// changes nothing.
func (e *Engine) Settle(ctx context.Context, transactionID string, in Input) (Result, error) {
	if transactionID == "" || in.PayerID == "" || in.CounterpartyID == "" {
		return Result{}, fmt.Errorf("%w: transaction id, payer and counterparty are required", ledger.ErrMalformedInput)
	}
	if in.PayerID == in.CounterpartyID {
		return Result{}, fmt.Errorf("%w: payer and counterparty must differ", ledger.ErrMalformedInput)
	}

	var (
		res Result
		err error
	)
	switch e.mode {
	case ModeBatch:
		res, err = e.settleBatch(ctx, transactionID, in)
	default:
		res, err = e.settleSerialized(ctx, transactionID, in)
	}
	if errors.Is(err, store.ErrAlreadySettled) {
		e.logger.InfoContext(ctx, "fee already settled", slog.String("transaction_id", transactionID))
		return Result{TransactionID: transactionID, Fee: e.fee, AlreadySettled: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	e.logger.InfoContext(ctx, "fees settled",
		slog.String("transaction_id", transactionID),
		slog.String("mode", string(e.mode)),
		slog.String("fee", e.fee.String()),
		slog.String("payer_balance", res.PayerBalance.String()),
		slog.String("counterparty_balance", res.CounterpartyBalance.String()),
		slog.String("platform_balance", res.PlatformBalance.String()),
	)
	return res, nil
}

func (e *Engine) settleSerialized(ctx context.Context, transactionID string, in Input) (Result, error) {
	var res Result
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		snap, err := e.load(ctx, tx, transactionID, in, false)
		if err != nil {
			return err
		}
		res, err = e.apply(tx, transactionID, in, snap)
		return err
	})
	return res, err
}

func (e *Engine) settleBatch(ctx context.Context, transactionID string, in Input) (Result, error) {
	snap, err := e.load(ctx, e.store, transactionID, in, true)
	if err != nil {
		return Result{}, err
	}
	batch := store.NewBatch()
	res, err := e.apply(batch, transactionID, in, snap)
	if err != nil {
		return Result{}, err
	}
	if err := e.store.Commit(ctx, batch); err != nil {
		return Result{}, fmt.Errorf("commit settlement %s: %w", transactionID, err)
	}
	return res, nil
}

type reader interface {
	Wallet(ctx context.Context, ref ledger.WalletRef) (ledger.Wallet, error)
	Transaction(ctx context.Context, id string) (ledger.Transaction, error)
}

type snapshot struct {
	payer        ledger.Wallet
	counterparty ledger.Wallet
	platform     ledger.Wallet
}

// load reads the primary transaction, the linked one if any, and the three wallets. Concurrent reads
// are only safe outside a store transaction.
func (e *Engine) load(ctx context.Context, r reader, transactionID string, in Input, concurrent bool) (snapshot, error) {
	txn, err := r.Transaction(ctx, transactionID)
	if err != nil {
		return snapshot{}, fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	if txn.FeeDeducted {
		return snapshot{}, store.ErrAlreadySettled
	}
	if in.CounterpartyTxID != "" {
		if err := linkedTransaction(ctx, r, in); err != nil {
			return snapshot{}, err
		}
	}

	var snap snapshot
	reads := []func(context.Context) error{
		func(ctx context.Context) (err error) {
			snap.payer, err = userWallet(ctx, r, in.PayerID)
			return err
		},
		func(ctx context.Context) (err error) {
			snap.counterparty, err = userWallet(ctx, r, in.CounterpartyID)
			return err
		},
		func(ctx context.Context) (err error) {
			snap.platform, err = e.platformWallet(ctx, r)
			return err
		},
	}

	if !concurrent {
		for _, read := range reads {
			if err := read(ctx); err != nil {
				return snapshot{}, err
			}
		}
		return snap, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, read := range reads {
		g.Go(func() error { return read(gctx) })
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// linkedTransaction requires the counterparty's record to exist and to
// mirror the parties of the transaction being settled.
func linkedTransaction(ctx context.Context, r reader, in Input) error {
	linked, err := r.Transaction(ctx, in.CounterpartyTxID)
	if err != nil {
		return fmt.Errorf("load linked transaction %s: %w", in.CounterpartyTxID, err)
	}
	if linked.PayerID != in.CounterpartyID || linked.CounterpartyID != in.PayerID {
		return fmt.Errorf("%w: linked transaction %s does not mirror %s and %s",
			ledger.ErrMalformedInput, in.CounterpartyTxID, in.PayerID, in.CounterpartyID)
	}
	return nil
}

func userWallet(ctx context.Context, r reader, accountID string) (ledger.Wallet, error) {
	w, err := r.Wallet(ctx, ledger.UserWallet(accountID))
	if errors.Is(err, store.ErrNotFound) {
		return ledger.Wallet{}, &ledger.WalletNotFoundError{AccountID: accountID}
	}
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("read wallet %s: %w", accountID, err)
	}
	return w, nil
}

// platformWallet treats a missing platform wallet as empty; it is created by
// the first credit.
func (e *Engine) platformWallet(ctx context.Context, r reader) (ledger.Wallet, error) {
	w, err := r.Wallet(ctx, ledger.PlatformWallet())
	if errors.Is(err, store.ErrNotFound) {
		return ledger.NewWallet(ledger.PlatformWalletID, e.currency, e.now()), nil
	}
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("read platform wallet: %w", err)
	}
	return w, nil
}

// apply validates the snapshot and stages every settlement write on w.
func (e *Engine) apply(w store.Writer, transactionID string, in Input, snap snapshot) (Result, error) {
	fee := e.fee
	for _, party := range []struct {
		id     string
		wallet ledger.Wallet
	}{{in.PayerID, snap.payer}, {in.CounterpartyID, snap.counterparty}} {
		if party.wallet.Balance.LessThan(fee) {
			return Result{}, &ledger.InsufficientBalanceError{
				AccountID: party.id,
				Balance:   party.wallet.Balance,
				Required:  fee,
			}
		}
	}

	now := e.now().UTC()
	collected := fee.Add(fee)
	debit := store.WalletDelta{Balance: fee.Neg(), TotalSpent: fee, At: now}

	w.IncrementWallet(ledger.UserWallet(in.PayerID), debit)
	w.IncrementWallet(ledger.UserWallet(in.CounterpartyID), debit)
	w.IncrementWallet(ledger.PlatformWallet(), store.WalletDelta{
		Balance:         collected,
		TotalCollected:  collected,
		CreateIfMissing: true,
		Currency:        e.currency,
		At:              now,
	})

	settled := true
	w.UpdateTransaction(transactionID, store.TransactionUpdate{
		Status:           ledger.StatusCompleted,
		FeeDeducted:      &settled,
		CompletedAt:      &now,
		At:               now,
		RequireUnsettled: true,
	})
	if in.CounterpartyTxID != "" {
		w.UpdateTransaction(in.CounterpartyTxID, store.TransactionUpdate{
			Status:      ledger.StatusCompleted,
			FeeDeducted: &settled,
			CompletedAt: &now,
			At:          now,
		})
	}

	e.recorder.FeeDeduction(w, in.PayerID, transactionID, fee, snap.payer.Balance)
	e.recorder.FeeDeduction(w, in.CounterpartyID, transactionID, fee, snap.counterparty.Balance)
	if e.recordPlatformCredit {
		e.recorder.PlatformCredit(w, transactionID, collected, snap.platform.Balance)
	}

	return Result{
		TransactionID:       transactionID,
		Fee:                 fee,
		PayerBalance:        snap.payer.Balance.Sub(fee),
		CounterpartyBalance: snap.counterparty.Balance.Sub(fee),
		PlatformBalance:     snap.platform.Balance.Add(collected),
	}, nil
}

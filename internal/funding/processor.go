package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/logging"
	"github.com/congo-pay/feeledger/internal/notification"
	"github.com/congo-pay/feeledger/internal/store"
)

// Result describes a committed deposit.
type Result struct {
	AccountID     string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	EntryID       string
}

// Processor credits confirmed payment-gateway top-ups to the caller's wallet.
type Processor struct {
	store    store.Store
	recorder *ledger.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewProcessor constructs a deposit processor. notifier may be nil.
func NewProcessor(s store.Store, recorder *ledger.Recorder, notifier notification.Notifier, logger *slog.Logger, currency string) *Processor {
	if recorder == nil {
		recorder = ledger.NewRecorder()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	return &Processor{store: s, recorder: recorder, notifier: notifier, logger: logger, currency: currency, now: time.Now}
}

// Deposit adds amount to the principal's wallet, creating the wallet if it
// does not exist yet, and records a deposit entry in the same transaction.
// Concurrent deposits to one wallet serialize through store retries.
func (p *Processor) Deposit(ctx context.Context, principalID string, amount decimal.Decimal, paymentReference string) (Result, error) {
	if principalID == "" {
		return Result{}, ledger.ErrUnauthenticated
	}
	if principalID == ledger.PlatformWalletID {
		return Result{}, fmt.Errorf("%w: account id %q is reserved", ledger.ErrInvalidArgument, principalID)
	}
	if !amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidArgument)
	}
	if err := ledger.CheckAmount(amount); err != nil {
		return Result{}, err
	}

	var res Result
	err := p.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ref := ledger.UserWallet(principalID)
		now := p.now().UTC()

		w, err := tx.Wallet(ctx, ref)
		switch {
		case errors.Is(err, store.ErrNotFound):
			w = ledger.NewWallet(principalID, p.currency, now)
		case err != nil:
			return err
		}

		before := w.Balance
		w.Balance = before.Add(amount)
		w.TotalDeposited = w.TotalDeposited.Add(amount)
		w.LastUpdated = now
		tx.SetWallet(ref, w)

		entry := p.recorder.Deposit(tx, principalID, paymentReference, amount, before)
		res = Result{AccountID: principalID, BalanceBefore: before, BalanceAfter: w.Balance, EntryID: entry.ID}
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "deposit failed",
			slog.String("account_id", principalID),
			slog.String("amount", amount.String()),
			slog.String("payment_reference", paymentReference),
			slog.Any("error", err),
		)
		if p.notifier != nil {
			_ = p.notifier.Send(ctx, notification.Message{
				Kind:    notification.KindDepositFailed,
				Subject: principalID,
				Body:    fmt.Sprintf("deposit of %s (%s) failed: %v", amount.String(), paymentReference, err),
			})
		}
		return Result{}, fmt.Errorf("%w: failed to process deposit", ledger.ErrInternal)
	}

	p.logger.InfoContext(ctx, "deposit processed",
		slog.String("account_id", principalID),
		slog.String("amount", amount.String()),
		slog.String("balance_after", res.BalanceAfter.String()),
	)
	return res, nil
}

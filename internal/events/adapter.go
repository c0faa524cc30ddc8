// Package events turns external triggers into settlement and provisioning
// calls. Payloads are validated here; the core never sees untyped input.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/logging"
	"github.com/congo-pay/feeledger/internal/notification"
	"github.com/congo-pay/feeledger/internal/settlement"
	"github.com/congo-pay/feeledger/internal/store"
	"github.com/congo-pay/feeledger/internal/wallet"
)

// RevertMessage is stored on a transaction whose settlement failed.
const RevertMessage = "Failed to process fees. Please try again."

// TransactionState is the part of a transaction document an event carries.
type TransactionState struct {
	Status           ledger.Status `json:"status"`
	PayerID          string        `json:"payerId"`
	CounterpartyID   string        `json:"counterpartyId"`
	CounterpartyTxID string        `json:"counterpartyTxId,omitempty"`
}

// TransactionChange is a before/after pair for one transaction update.
type TransactionChange struct {
	TransactionID string           `json:"transactionId"`
	Before        TransactionState `json:"before"`
	After         TransactionState `json:"after"`
}

// BecameAccepted reports whether the change moved the transaction into accepted.
func (c TransactionChange) BecameAccepted() bool {
	return c.Before.Status != ledger.StatusAccepted && c.After.Status == ledger.StatusAccepted
}

type settlementPayload struct {
	TransactionID    string `validate:"required,max=128"`
	PayerID          string `validate:"required,max=128"`
	CounterpartyID   string `validate:"required,max=128,nefield=PayerID"`
	CounterpartyTxID string `validate:"omitempty,max=128"`
}

// Outcome describes what the adapter did with a change.
type Outcome struct {
	Triggered bool
	Result    settlement.Result
	// Reverted is set when settlement failed and the transaction was put
	// back to pending. Err holds the settlement failure.
	Reverted bool
	Err      error
}

type Settler interface {
	Settle(ctx context.Context, transactionID string, in settlement.Input) (settlement.Result, error)
}

type Provisioner interface {
	Provision(ctx context.Context, accountID string) (ledger.Wallet, error)
}

type TransactionUpdater interface {
	UpdateTransaction(ctx context.Context, id string, update store.TransactionUpdate) error
}

// Adapter receives transaction and account events.
type Adapter struct {
	settler      Settler
	provisioner  Provisioner
	transactions TransactionUpdater
	notifier     notification.Notifier
	logger       *slog.Logger
	validate     *validator.Validate
}

// NewAdapter wires the adapter. notifier and logger may be nil.
func NewAdapter(settler Settler, provisioner Provisioner, transactions TransactionUpdater, notifier notification.Notifier, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{
		settler:      settler,
		provisioner:  provisioner,
		transactions: transactions,
		notifier:     notifier,
		logger:       logger,
		validate:     validator.New(),
	}
}

// OnTransactionStatusChange settles fees when a transaction becomes accepted
// and ignores every other transition. A failed settlement reverts the
// transaction to pending so the event can be reissued. The returned error is
// non-nil only when that revert could not be written.
func (a *Adapter) OnTransactionStatusChange(ctx context.Context, change TransactionChange) (Outcome, error) {
	if !change.BecameAccepted() {
		return Outcome{}, nil
	}

	payload := settlementPayload{
		TransactionID:    change.TransactionID,
		PayerID:          change.After.PayerID,
		CounterpartyID:   change.After.CounterpartyID,
		CounterpartyTxID: change.After.CounterpartyTxID,
	}
	var settleErr error
	var res settlement.Result
	if err := a.validate.Struct(payload); err != nil {
		settleErr = fmt.Errorf("%w: %v", ledger.ErrMalformedInput, err)
	} else {
		res, settleErr = a.settler.Settle(ctx, payload.TransactionID, settlement.Input{
			PayerID:          payload.PayerID,
			CounterpartyID:   payload.CounterpartyID,
			CounterpartyTxID: payload.CounterpartyTxID,
		})
	}
	if settleErr == nil {
		return Outcome{Triggered: true, Result: res}, nil
	}

	a.logger.ErrorContext(ctx, "error processing transaction fees",
		slog.String("transaction_id", change.TransactionID),
		slog.String("code", ledger.Code(settleErr)),
		slog.Any("error", settleErr),
	)
	out := Outcome{Triggered: true, Err: settleErr}
	if change.TransactionID == "" {
		return out, nil
	}

	message := RevertMessage
	err := a.transactions.UpdateTransaction(ctx, change.TransactionID, store.TransactionUpdate{
		Status:           ledger.StatusPending,
		Error:            &message,
		RequireUnsettled: true,
	})
	switch {
	case errors.Is(err, store.ErrAlreadySettled):
		// A concurrent delivery settled it; leave it completed.
		a.logger.InfoContext(ctx, "settlement failure superseded", slog.String("transaction_id", change.TransactionID))
		return out, nil
	case errors.Is(err, store.ErrNotFound):
		a.logger.WarnContext(ctx, "cannot revert unknown transaction", slog.String("transaction_id", change.TransactionID))
		return out, nil
	case err != nil:
		return out, fmt.Errorf("revert transaction %s: %w", change.TransactionID, err)
	}
	out.Reverted = true

	if a.notifier != nil {
		_ = a.notifier.Send(ctx, notification.Message{
			Kind:    notification.KindSettlementFailed,
			Subject: change.TransactionID,
			Body:    settleErr.Error(),
		})
	}
	return out, nil
}

// OnAccountCreate provisions the wallet of a new account. Replays of the
// event are no-ops.
func (a *Adapter) OnAccountCreate(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ledger.ErrMalformedInput)
	}
	if _, err := a.provisioner.Provision(ctx, accountID); err != nil {
		if errors.Is(err, wallet.ErrWalletExists) {
			return nil
		}
		return err
	}
	a.logger.InfoContext(ctx, "created wallet for user", slog.String("account_id", accountID))
	return nil
}

package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/events"
	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/logging"
	"github.com/congo-pay/feeledger/internal/store"
)

var (
	// ErrNotParticipant indicates the caller is neither payer nor counterparty.
	ErrNotParticipant = errors.New("not a participant of the transaction")
	// ErrNotCounterparty indicates someone other than the counterparty tried to accept.
	ErrNotCounterparty = errors.New("only the counterparty can accept the transaction")
	// ErrFinal is returned when changing a transaction whose fees were settled.
	ErrFinal = errors.New("transaction is final")
)

// ChangeListener receives every status change after it was written.
type ChangeListener interface {
	TransactionChanged(ctx context.Context, change events.TransactionChange) error
}

// ListenerFunc adapts a function to ChangeListener.
type ListenerFunc func(ctx context.Context, change events.TransactionChange) error

func (f ListenerFunc) TransactionChanged(ctx context.Context, change events.TransactionChange) error {
	return f(ctx, change)
}

// Service owns the transaction lifecycle.
type Service struct {
	store    store.Store
	listener ChangeListener
	logger   *slog.Logger
}

// NewService constructs a transaction service. listener may be nil.
func NewService(s store.Store, listener ChangeListener, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: s, listener: listener, logger: logger}
}

// CreateInput captures the data needed to open a transaction.
type CreateInput struct {
	PayerID          string
	CounterpartyID   string
	CounterpartyTxID string
	Amount           decimal.Decimal
}

// Create opens a pending transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Transaction, error) {
	if in.PayerID == "" || in.CounterpartyID == "" {
		return ledger.Transaction{}, fmt.Errorf("%w: payer and counterparty are required", ledger.ErrInvalidArgument)
	}
	if in.PayerID == in.CounterpartyID {
		return ledger.Transaction{}, fmt.Errorf("%w: payer and counterparty must differ", ledger.ErrInvalidArgument)
	}
	if in.Amount.IsNegative() {
		return ledger.Transaction{}, fmt.Errorf("%w: amount must not be negative", ledger.ErrInvalidArgument)
	}
	if err := ledger.CheckAmount(in.Amount); err != nil {
		return ledger.Transaction{}, err
	}

	now := time.Now().UTC()
	txn := ledger.Transaction{
		ID:               uuid.NewString(),
		PayerID:          in.PayerID,
		CounterpartyID:   in.CounterpartyID,
		CounterpartyTxID: in.CounterpartyTxID,
		Amount:           in.Amount,
		Status:           ledger.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return ledger.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return txn, nil
}

// Get fetches a transaction.
func (s *Service) Get(ctx context.Context, id string) (ledger.Transaction, error) {
	return s.store.Transaction(ctx, id)
}

// SetStatus moves a transaction to status and emits the before/after pair.
// completed is reserved for fee settlement.
func (s *Service) SetStatus(ctx context.Context, id string, status ledger.Status) (ledger.Transaction, error) {
	if !status.Valid() {
		return ledger.Transaction{}, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidArgument, status)
	}
	if status == ledger.StatusCompleted {
		return ledger.Transaction{}, fmt.Errorf("%w: status completed is set by fee settlement", ledger.ErrInvalidArgument)
	}

	before, err := s.store.Transaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if before.FeeDeducted {
		return ledger.Transaction{}, ErrFinal
	}

	noError := ""
	update := store.TransactionUpdate{Status: status, RequireUnsettled: true}
	if status == ledger.StatusAccepted {
		update.Error = &noError
	}
	if err := s.store.UpdateTransaction(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrAlreadySettled) {
			return ledger.Transaction{}, ErrFinal
		}
		return ledger.Transaction{}, fmt.Errorf("update transaction status: %w", err)
	}
	after, err := s.store.Transaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if s.listener != nil {
		change := events.TransactionChange{TransactionID: id, Before: stateOf(before), After: stateOf(after)}
		if err := s.listener.TransactionChanged(ctx, change); err != nil {
			s.logger.ErrorContext(ctx, "status change delivery failed",
				slog.String("transaction_id", id), slog.Any("error", err))
			return s.restore(ctx, before, fmt.Errorf("deliver status change: %w", err))
		}
		// An inline listener may have settled or reverted the transaction.
		if after, err = s.store.Transaction(ctx, id); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return after, nil
}

// restore puts back the status and error held before a change whose delivery
// failed, so a retried request is seen as a fresh transition.
func (s *Service) restore(ctx context.Context, before ledger.Transaction, cause error) (ledger.Transaction, error) {
	previous := before.Error
	err := s.store.UpdateTransaction(ctx, before.ID, store.TransactionUpdate{
		Status:           before.Status,
		Error:            &previous,
		RequireUnsettled: true,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadySettled) {
		s.logger.ErrorContext(ctx, "restore transaction status failed",
			slog.String("transaction_id", before.ID), slog.Any("error", err))
		return ledger.Transaction{}, errors.Join(cause, err)
	}
	current, err := s.store.Transaction(ctx, before.ID)
	if err != nil {
		return ledger.Transaction{}, errors.Join(cause, err)
	}
	return current, cause
}

func stateOf(t ledger.Transaction) events.TransactionState {
	return events.TransactionState{
		Status:           t.Status,
		PayerID:          t.PayerID,
		CounterpartyID:   t.CounterpartyID,
		CounterpartyTxID: t.CounterpartyTxID,
	}
}

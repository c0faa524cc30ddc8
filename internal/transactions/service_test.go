package transactions

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/feeledger/internal/events"
	"github.com/congo-pay/feeledger/internal/jobs"
	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/notification"
	"github.com/congo-pay/feeledger/internal/settlement"
	"github.com/congo-pay/feeledger/internal/store"
	"github.com/congo-pay/feeledger/internal/wallet"
)

func seed(t *testing.T, s store.Store, accountID, balance string) {
	t.Helper()
	require.NoError(t, store.SeedWallet(context.Background(), s, ledger.UserWallet(accountID), decimal.RequireFromString(balance)))
}

// inlineListener settles synchronously, as the events handler does without a queue.
func inlineListener(s *store.Memory) ChangeListener {
	engine := settlement.NewEngine(s, ledger.NewRecorder())
	adapter := events.NewAdapter(engine, wallet.NewService(s, "EGP"), s, &notification.Recorder{}, nil)
	return ListenerFunc(func(ctx context.Context, change events.TransactionChange) error {
		_, err := adapter.OnTransactionStatusChange(ctx, change)
		return err
	})
}

func TestCreateStartsPending(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s, nil, nil)

	txn, err := svc.Create(context.Background(), CreateInput{
		PayerID: "alice", CounterpartyID: "bob", Amount: decimal.RequireFromString("12.5"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, txn.ID)
	require.Equal(t, ledger.StatusPending, txn.Status)
	require.False(t, txn.FeeDeducted)

	stored, err := svc.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, txn.PayerID, stored.PayerID)
	require.True(t, txn.Amount.Equal(stored.Amount))
}

func TestCreateValidatesParties(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, nil)

	cases := map[string]CreateInput{
		"missing payer":        {CounterpartyID: "bob"},
		"missing counterparty": {PayerID: "alice"},
		"self":                 {PayerID: "alice", CounterpartyID: "alice"},
		"negative":             {PayerID: "alice", CounterpartyID: "bob", Amount: decimal.NewFromInt(-1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			require.ErrorIs(t, err, ledger.ErrInvalidArgument)
		})
	}
}

func TestSetStatusRejectsManualCompletion(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, nil)
	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob"})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), txn.ID, ledger.StatusCompleted)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	_, err = svc.SetStatus(context.Background(), txn.ID, ledger.Status("shipped"))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestSetStatusUnknownTransaction(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, nil)
	_, err := svc.SetStatus(context.Background(), "missing", ledger.StatusAccepted)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptingSettlesFeesInline(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "alice", "1")
	seed(t, s, "bob", "1")
	svc := NewService(s, inlineListener(s), nil)

	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, updated.Status)
	require.True(t, updated.FeeDeducted)

	alice, err := s.Wallet(context.Background(), ledger.UserWallet("alice"))
	require.NoError(t, err)
	require.Equal(t, "0.997", alice.Balance.String())

	_, err = svc.SetStatus(context.Background(), txn.ID, ledger.StatusPending)
	require.ErrorIs(t, err, ErrFinal)
}

func TestAcceptingWithoutFundsRevertsToPending(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "alice", "0.001")
	seed(t, s, "bob", "1")
	svc := NewService(s, inlineListener(s), nil)

	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, updated.Status)
	require.Equal(t, events.RevertMessage, updated.Error)

	// A later accept clears the stored error before settling again.
	seed(t, s, "alice", "1")
	updated, err = svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, updated.Status)
	require.Empty(t, updated.Error)
}

func TestListenerReceivesBeforeAndAfter(t *testing.T) {
	s := store.NewMemory()
	var got []events.TransactionChange
	svc := NewService(s, ListenerFunc(func(_ context.Context, change events.TransactionChange) error {
		got = append(got, change)
		return nil
	}), nil)

	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob", CounterpartyTxID: "tx-b"})
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.NoError(t, err)

	require.Len(t, got, 1)
	require.Equal(t, txn.ID, got[0].TransactionID)
	require.Equal(t, ledger.StatusPending, got[0].Before.Status)
	require.Equal(t, ledger.StatusAccepted, got[0].After.Status)
	require.Equal(t, "tx-b", got[0].After.CounterpartyTxID)
	require.True(t, got[0].BecameAccepted())
}

func TestListenerFailureIsReturned(t *testing.T) {
	s := store.NewMemory()
	boom := errors.New("queue down")
	svc := NewService(s, ListenerFunc(func(context.Context, events.TransactionChange) error { return boom }), nil)

	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), txn.ID, ledger.StatusFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, ledger.StatusPending, updated.Status)

	stored, err := svc.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, stored.Status)
}

func TestFailedEnqueueLeavesAcceptRetryable(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "alice", "1")
	seed(t, s, "bob", "1")

	var queued []jobs.StatusChangeArgs
	down := true
	enqueuer := jobs.NewEnqueuer(func(_ context.Context, args jobs.StatusChangeArgs) error {
		if down {
			return errors.New("insert job: connection refused")
		}
		queued = append(queued, args)
		return nil
	})
	svc := NewService(s, enqueuer, nil)

	txn, err := svc.Create(context.Background(), CreateInput{PayerID: "alice", CounterpartyID: "bob"})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.Error(t, err)
	stored, err := svc.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, stored.Status)
	require.Empty(t, queued)

	down = false
	updated, err := svc.SetStatus(context.Background(), txn.ID, ledger.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusAccepted, updated.Status)
	require.Len(t, queued, 1)
	require.True(t, queued[0].Change.BecameAccepted())
}

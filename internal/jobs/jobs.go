// Package jobs delivers transaction status changes through a River queue so
// settlement survives process restarts and is retried on transient failures.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/congo-pay/feeledger/internal/events"
	"github.com/congo-pay/feeledger/internal/logging"
)

const maxAttempts = 10

// StatusChangeArgs carries one transaction status change.
type StatusChangeArgs struct {
	Change events.TransactionChange `json:"change"`
}

func (StatusChangeArgs) Kind() string { return "transaction_status_change" }

func (StatusChangeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: river.QueueDefault, MaxAttempts: maxAttempts}
}

// ChangeHandler is the adapter entry point the worker drives.
type ChangeHandler interface {
	OnTransactionStatusChange(ctx context.Context, change events.TransactionChange) (events.Outcome, error)
}

type StatusChangeWorker struct {
	river.WorkerDefaults[StatusChangeArgs]
	handler ChangeHandler
	logger  *slog.Logger
}

func NewStatusChangeWorker(handler ChangeHandler, logger *slog.Logger) *StatusChangeWorker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StatusChangeWorker{handler: handler, logger: logger}
}

// Work runs the adapter. A settlement that failed and was reverted is a
// completed job; only adapter errors are retried.
func (w *StatusChangeWorker) Work(ctx context.Context, job *river.Job[StatusChangeArgs]) error {
	change := job.Args.Change
	outcome, err := w.handler.OnTransactionStatusChange(ctx, change)
	if err != nil {
		return fmt.Errorf("handle status change for %s: %w", change.TransactionID, err)
	}
	if outcome.Reverted {
		w.logger.InfoContext(ctx, "settlement job reverted transaction",
			slog.String("transaction_id", change.TransactionID), slog.Any("error", outcome.Err))
	}
	return nil
}

// InsertFunc enqueues a status change job.
type InsertFunc func(ctx context.Context, args StatusChangeArgs) error

// Enqueuer queues status changes for the worker.
type Enqueuer struct {
	insert InsertFunc
}

func NewEnqueuer(insert InsertFunc) *Enqueuer {
	return &Enqueuer{insert: insert}
}

// ClientInsert adapts a River client to an InsertFunc.
func ClientInsert(client *river.Client[pgx.Tx]) InsertFunc {
	return func(ctx context.Context, args StatusChangeArgs) error {
		_, err := client.Insert(ctx, args, nil)
		return err
	}
}

func (e *Enqueuer) Enqueue(ctx context.Context, change events.TransactionChange) error {
	if err := e.insert(ctx, StatusChangeArgs{Change: change}); err != nil {
		return fmt.Errorf("enqueue status change: %w", err)
	}
	return nil
}

// TransactionChanged queues only changes that can trigger settlement.
func (e *Enqueuer) TransactionChanged(ctx context.Context, change events.TransactionChange) error {
	if !change.BecameAccepted() {
		return nil
	}
	return e.Enqueue(ctx, change)
}

// NewClient builds a River client running the status change worker.
func NewClient(pool *pgxpool.Pool, handler ChangeHandler, workers int, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	if workers <= 0 {
		workers = 10
	}
	registry := river.NewWorkers()
	river.AddWorker(registry, NewStatusChangeWorker(handler, logger))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: workers},
		},
		Workers: registry,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}

// Migrate applies River's schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	return nil
}

// Package store persists wallets, transactions and ledger entries. It
// exposes the primitives the balance-mutation engine is built on: point
// reads and writes, atomic increments, atomic multi-document batches and
// optimistic read-modify-write transactions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
)

// DefaultMaxAttempts bounds how often a transaction is retried on conflict.
const DefaultMaxAttempts = 5

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when creating a document that exists.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrAlreadySettled is returned by a conditional transaction update when
	// the fee has already been deducted.
	ErrAlreadySettled = errors.New("transaction already settled")

	// ErrConflict is returned when a transaction keeps losing to concurrent writers.
	ErrConflict = errors.New("transaction conflict")

	// ErrReadAfterWrite is returned when a transaction reads after it started writing.
	ErrReadAfterWrite = errors.New("reads must precede writes in a transaction")
)

// Store is the capability the engine depends on.
type Store interface {
	Wallet(ctx context.Context, ref ledger.WalletRef) (ledger.Wallet, error)
	Transaction(ctx context.Context, id string) (ledger.Transaction, error)
	Entries(ctx context.Context, accountID string) ([]ledger.Entry, error)

	CreateWallet(ctx context.Context, ref ledger.WalletRef, wallet ledger.Wallet) error
	CreateTransaction(ctx context.Context, txn ledger.Transaction) error
	UpdateTransaction(ctx context.Context, id string, update TransactionUpdate) error
	IncrementWallet(ctx context.Context, ref ledger.WalletRef, delta WalletDelta) error

	// Commit applies every write in the batch or none of them.
	Commit(ctx context.Context, batch *Batch) error

	// RunTransaction runs fn with reads that are validated at commit time.
	// If a document read by fn changed before the writes land, fn is run
	// again, up to the store's attempt limit.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Writer is the write set shared by batches and transactions.
type Writer interface {
	IncrementWallet(ref ledger.WalletRef, delta WalletDelta)
	SetWallet(ref ledger.WalletRef, wallet ledger.Wallet)
	UpdateTransaction(id string, update TransactionUpdate)
	CreateEntry(entry ledger.Entry)
}

// Tx is a read-modify-write unit. All reads must happen before the first write.
type Tx interface {
	Writer
	Wallet(ctx context.Context, ref ledger.WalletRef) (ledger.Wallet, error)
	Transaction(ctx context.Context, id string) (ledger.Transaction, error)
}

// WalletDelta adds to a wallet's balance and counters.
type WalletDelta struct {
	Balance        decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalSpent     decimal.Decimal
	TotalCollected decimal.Decimal

	// CreateIfMissing creates the wallet from the delta when it does not
	// exist. Otherwise a missing wallet fails the write with ErrNotFound.
	CreateIfMissing bool
	Currency        string
	At              time.Time
}

func (d WalletDelta) apply(w ledger.Wallet) ledger.Wallet {
	w.Balance = w.Balance.Add(d.Balance)
	w.TotalDeposited = w.TotalDeposited.Add(d.TotalDeposited)
	w.TotalSpent = w.TotalSpent.Add(d.TotalSpent)
	w.TotalCollected = w.TotalCollected.Add(d.TotalCollected)
	w.LastUpdated = stamp(d.At)
	return w
}

// TransactionUpdate changes selected fields of a transaction. Nil and empty
// fields are left untouched.
type TransactionUpdate struct {
	Status      ledger.Status
	FeeDeducted *bool
	Error       *string
	CompletedAt *time.Time
	At          time.Time

	// RequireUnsettled makes the update fail with ErrAlreadySettled when the
	// stored transaction already has FeeDeducted set.
	RequireUnsettled bool
}

func (u TransactionUpdate) apply(t ledger.Transaction) (ledger.Transaction, error) {
	if u.RequireUnsettled && t.FeeDeducted {
		return t, ErrAlreadySettled
	}
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.FeeDeducted != nil {
		t.FeeDeducted = *u.FeeDeducted
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.CompletedAt != nil {
		at := u.CompletedAt.UTC()
		t.CompletedAt = &at
	}
	t.UpdatedAt = stamp(u.At)
	return t, nil
}

type opKind int

const (
	opIncrementWallet opKind = iota
	opSetWallet
	opUpdateTransaction
	opCreateEntry
)

type op struct {
	kind   opKind
	ref    ledger.WalletRef
	delta  WalletDelta
	wallet ledger.Wallet
	txnID  string
	update TransactionUpdate
	entry  ledger.Entry
}

// Batch collects writes that are committed atomically by Store.Commit.
type Batch struct {
	ops []op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) IncrementWallet(ref ledger.WalletRef, delta WalletDelta) {
	b.ops = append(b.ops, op{kind: opIncrementWallet, ref: ref, delta: delta})
}

func (b *Batch) SetWallet(ref ledger.WalletRef, wallet ledger.Wallet) {
	b.ops = append(b.ops, op{kind: opSetWallet, ref: ref, wallet: wallet})
}

func (b *Batch) UpdateTransaction(id string, update TransactionUpdate) {
	b.ops = append(b.ops, op{kind: opUpdateTransaction, txnID: id, update: update})
}

func (b *Batch) CreateEntry(entry ledger.Entry) {
	b.ops = append(b.ops, op{kind: opCreateEntry, entry: entry})
}

// Len reports the number of queued writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

var (
	_ Writer               = (*Batch)(nil)
	_ ledger.EntryAppender = (*Batch)(nil)
)

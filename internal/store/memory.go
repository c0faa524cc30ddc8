package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/feeledger/internal/ledger"
)

type walletDoc struct {
	wallet  ledger.Wallet
	version uint64
}

type txnDoc struct {
	txn     ledger.Transaction
	version uint64
}

// Memory is a concurrency-safe in-memory Store. Transactions use optimistic
// concurrency: every document carries a version, reads record the version
// they saw and the commit is rejected and retried if any of them moved.
type Memory struct {
	mu           sync.RWMutex
	wallets      map[ledger.WalletRef]walletDoc
	transactions map[string]txnDoc
	entries      []ledger.Entry
	clock        uint64
	maxAttempts  int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		wallets:      make(map[ledger.WalletRef]walletDoc),
		transactions: make(map[string]txnDoc),
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Wallet(_ context.Context, ref ledger.WalletRef) (ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.wallets[ref]
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", ref, ErrNotFound)
	}
	return doc.wallet, nil
}

func (m *Memory) Transaction(_ context.Context, id string) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.transactions[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return doc.txn, nil
}

func (m *Memory) Entries(_ context.Context, accountID string) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) CreateWallet(_ context.Context, ref ledger.WalletRef, wallet ledger.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.wallets[ref]; exists {
		return fmt.Errorf("wallet %s: %w", ref, ErrAlreadyExists)
	}
	m.clock++
	m.wallets[ref] = walletDoc{wallet: wallet, version: m.clock}
	return nil
}

func (m *Memory) CreateTransaction(_ context.Context, txn ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[txn.ID]; exists {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
	}
	m.clock++
	m.transactions[txn.ID] = txnDoc{txn: txn, version: m.clock}
	return nil
}

func (m *Memory) UpdateTransaction(ctx context.Context, id string, update TransactionUpdate) error {
	b := NewBatch()
	b.UpdateTransaction(id, update)
	return m.Commit(ctx, b)
}

func (m *Memory) IncrementWallet(ctx context.Context, ref ledger.WalletRef, delta WalletDelta) error {
	b := NewBatch()
	b.IncrementWallet(ref, delta)
	return m.Commit(ctx, b)
}

func (m *Memory) Commit(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(batch.ops)
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memoryTx{m: m, walletReads: map[ledger.WalletRef]uint64{}, txnReads: map[string]uint64{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		committed, err := m.commitTx(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		backoff(attempt)
	}
	return fmt.Errorf("gave up after %d attempts: %w", m.maxAttempts, ErrConflict)
}

func (m *Memory) commitTx(tx *memoryTx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref, seen := range tx.walletReads {
		if m.wallets[ref].version != seen {
			return false, nil
		}
	}
	for id, seen := range tx.txnReads {
		if m.transactions[id].version != seen {
			return false, nil
		}
	}
	return true, m.applyLocked(tx.ops)
}

// applyLocked stages every op against copies and only publishes them when
// all ops succeeded. m.mu must be held for writing.
func (m *Memory) applyLocked(ops []op) error {
	wallets := map[ledger.WalletRef]ledger.Wallet{}
	txns := map[string]ledger.Transaction{}
	var entries []ledger.Entry

	loadWallet := func(ref ledger.WalletRef) (ledger.Wallet, bool) {
		if w, ok := wallets[ref]; ok {
			return w, true
		}
		doc, ok := m.wallets[ref]
		return doc.wallet, ok
	}

	for _, o := range ops {
		switch o.kind {
		case opIncrementWallet:
			w, ok := loadWallet(o.ref)
			if !ok {
				if !o.delta.CreateIfMissing {
					return fmt.Errorf("increment wallet %s: %w", o.ref, ErrNotFound)
				}
				w = ledger.NewWallet(o.ref.ID, o.delta.Currency, stamp(o.delta.At))
			}
			wallets[o.ref] = o.delta.apply(w)
		case opSetWallet:
			wallets[o.ref] = o.wallet
		case opUpdateTransaction:
			t, ok := txns[o.txnID]
			if !ok {
				doc, exists := m.transactions[o.txnID]
				if !exists {
					return fmt.Errorf("update transaction %s: %w", o.txnID, ErrNotFound)
				}
				t = doc.txn
			}
			updated, err := o.update.apply(t)
			if err != nil {
				return fmt.Errorf("update transaction %s: %w", o.txnID, err)
			}
			txns[o.txnID] = updated
		case opCreateEntry:
			entries = append(entries, o.entry)
		}
	}

	refs := make([]ledger.WalletRef, 0, len(wallets))
	for ref := range wallets {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	for _, ref := range refs {
		m.clock++
		m.wallets[ref] = walletDoc{wallet: wallets[ref], version: m.clock}
	}
	for id, t := range txns {
		m.clock++
		m.transactions[id] = txnDoc{txn: t, version: m.clock}
	}
	m.entries = append(m.entries, entries...)
	return nil
}

type memoryTx struct {
	m           *Memory
	walletReads map[ledger.WalletRef]uint64
	txnReads    map[string]uint64
	ops         []op
}

func (t *memoryTx) Wallet(_ context.Context, ref ledger.WalletRef) (ledger.Wallet, error) {
	if len(t.ops) > 0 {
		return ledger.Wallet{}, ErrReadAfterWrite
	}
	t.m.mu.RLock()
	doc, ok := t.m.wallets[ref]
	t.m.mu.RUnlock()
	if _, seen := t.walletReads[ref]; !seen {
		t.walletReads[ref] = doc.version
	}
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", ref, ErrNotFound)
	}
	return doc.wallet, nil
}

func (t *memoryTx) Transaction(_ context.Context, id string) (ledger.Transaction, error) {
	if len(t.ops) > 0 {
		return ledger.Transaction{}, ErrReadAfterWrite
	}
	t.m.mu.RLock()
	doc, ok := t.m.transactions[id]
	t.m.mu.RUnlock()
	if _, seen := t.txnReads[id]; !seen {
		t.txnReads[id] = doc.version
	}
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return doc.txn, nil
}

func (t *memoryTx) IncrementWallet(ref ledger.WalletRef, delta WalletDelta) {
	t.ops = append(t.ops, op{kind: opIncrementWallet, ref: ref, delta: delta})
}

func (t *memoryTx) SetWallet(ref ledger.WalletRef, wallet ledger.Wallet) {
	t.ops = append(t.ops, op{kind: opSetWallet, ref: ref, wallet: wallet})
}

func (t *memoryTx) UpdateTransaction(id string, update TransactionUpdate) {
	t.ops = append(t.ops, op{kind: opUpdateTransaction, txnID: id, update: update})
}

func (t *memoryTx) CreateEntry(entry ledger.Entry) {
	t.ops = append(t.ops, op{kind: opCreateEntry, entry: entry})
}

func backoff(attempt int) {
	base := time.Duration(attempt) * time.Millisecond
	time.Sleep(base + rand.N(base))
}

var _ Store = (*Memory)(nil)

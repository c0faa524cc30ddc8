package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
)

const (
	sqlstateUniqueViolation      = "23505"
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores documents in PostgreSQL. Amounts are NUMERIC columns and
// cross the driver boundary as text so no precision is lost.
type Postgres struct {
	db          *pgxpool.Pool
	maxAttempts int
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, maxAttempts: DefaultMaxAttempts}
}

func (p *Postgres) Wallet(ctx context.Context, ref ledger.WalletRef) (ledger.Wallet, error) {
	return selectWallet(ctx, p.db, ref, false)
}

func (p *Postgres) Transaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return selectTransaction(ctx, p.db, id, false)
}

func (p *Postgres) Entries(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, account_id, type, amount::text, description, related_transaction_id,
		       payment_reference, balance_before::text, balance_after::text, created_at
		FROM wallet_transactions
		WHERE account_id = $1
		ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                     ledger.Entry
			id                    uuid.UUID
			entryType             string
			amount, before, after string
		)
		if err := rows.Scan(&id, &e.AccountID, &entryType, &amount, &e.Description, &e.RelatedTransactionID,
			&e.PaymentReference, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ID = id.String()
		e.Type = ledger.EntryType(entryType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, fmt.Errorf("parse balance before: %w", err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("parse balance after: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateWallet(ctx context.Context, ref ledger.WalletRef, wallet ledger.Wallet) error {
	table, err := walletTable(ref.Kind)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (account_id, balance, currency, total_deposited, total_spent, total_collected, last_updated)
		VALUES ($1, $2::numeric, $3, $4::numeric, $5::numeric, $6::numeric, $7)`, table),
		ref.ID, wallet.Balance.String(), wallet.Currency, wallet.TotalDeposited.String(),
		wallet.TotalSpent.String(), wallet.TotalCollected.String(), stamp(wallet.LastUpdated))
	if isUniqueViolation(err) {
		return fmt.Errorf("wallet %s: %w", ref, ErrAlreadyExists)
	}
	return err
}

func (p *Postgres) CreateTransaction(ctx context.Context, txn ledger.Transaction) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO transactions (id, payer_id, counterparty_id, counterparty_tx_id, amount, status,
		                          fee_deducted, error, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.PayerID, txn.CounterpartyID, txn.CounterpartyTxID, txn.Amount.String(), string(txn.Status),
		txn.FeeDeducted, txn.Error, stamp(txn.CreatedAt), stamp(txn.UpdatedAt), txn.CompletedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
	}
	return err
}

func (p *Postgres) UpdateTransaction(ctx context.Context, id string, update TransactionUpdate) error {
	b := NewBatch()
	b.UpdateTransaction(id, update)
	return p.Commit(ctx, b)
}

func (p *Postgres) IncrementWallet(ctx context.Context, ref ledger.WalletRef, delta WalletDelta) error {
	return execOp(ctx, p.db, op{kind: opIncrementWallet, ref: ref, delta: delta})
}

func (p *Postgres) Commit(ctx context.Context, batch *Batch) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, o := range batch.ops {
		if err := execOp(ctx, tx, o); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		backoff(attempt)
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.maxAttempts, ErrConflict)
}

func (p *Postgres) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	ptx := &postgresTx{tx: tx}
	if err := fn(ctx, ptx); err != nil {
		return err
	}
	for _, o := range ptx.ops {
		if err := execOp(ctx, tx, o); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx  pgx.Tx
	ops []op
}

func (t *postgresTx) Wallet(ctx context.Context, ref ledger.WalletRef) (ledger.Wallet, error) {
	if len(t.ops) > 0 {
		return ledger.Wallet{}, ErrReadAfterWrite
	}
	return selectWallet(ctx, t.tx, ref, true)
}

func (t *postgresTx) Transaction(ctx context.Context, id string) (ledger.Transaction, error) {
	if len(t.ops) > 0 {
		return ledger.Transaction{}, ErrReadAfterWrite
	}
	return selectTransaction(ctx, t.tx, id, true)
}

func (t *postgresTx) IncrementWallet(ref ledger.WalletRef, delta WalletDelta) {
	t.ops = append(t.ops, op{kind: opIncrementWallet, ref: ref, delta: delta})
}

func (t *postgresTx) SetWallet(ref ledger.WalletRef, wallet ledger.Wallet) {
	t.ops = append(t.ops, op{kind: opSetWallet, ref: ref, wallet: wallet})
}

func (t *postgresTx) UpdateTransaction(id string, update TransactionUpdate) {
	t.ops = append(t.ops, op{kind: opUpdateTransaction, txnID: id, update: update})
}

func (t *postgresTx) CreateEntry(entry ledger.Entry) {
	t.ops = append(t.ops, op{kind: opCreateEntry, entry: entry})
}

func execOp(ctx context.Context, q querier, o op) error {
	switch o.kind {
	case opIncrementWallet:
		return incrementWallet(ctx, q, o.ref, o.delta)
	case opSetWallet:
		return upsertWallet(ctx, q, o.ref, o.wallet)
	case opUpdateTransaction:
		return updateTransaction(ctx, q, o.txnID, o.update)
	case opCreateEntry:
		return insertEntry(ctx, q, o.entry)
	default:
		return fmt.Errorf("unknown op kind %d", o.kind)
	}
}

func incrementWallet(ctx context.Context, q querier, ref ledger.WalletRef, d WalletDelta) error {
	table, err := walletTable(ref.Kind)
	if err != nil {
		return err
	}
	args := []any{ref.ID, d.Balance.String(), d.TotalDeposited.String(), d.TotalSpent.String(),
		d.TotalCollected.String(), stamp(d.At)}

	if d.CreateIfMissing {
		_, err := q.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (account_id, balance, total_deposited, total_spent, total_collected, last_updated, currency)
			VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6, $7)
			ON CONFLICT (account_id) DO UPDATE SET
				balance         = %[1]s.balance + EXCLUDED.balance,
				total_deposited = %[1]s.total_deposited + EXCLUDED.total_deposited,
				total_spent     = %[1]s.total_spent + EXCLUDED.total_spent,
				total_collected = %[1]s.total_collected + EXCLUDED.total_collected,
				last_updated    = EXCLUDED.last_updated`, table),
			append(args, d.Currency)...)
		if err != nil {
			return fmt.Errorf("upsert wallet %s: %w", ref, err)
		}
		return nil
	}

	cmd, err := q.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
			balance         = balance + $2::numeric,
			total_deposited = total_deposited + $3::numeric,
			total_spent     = total_spent + $4::numeric,
			total_collected = total_collected + $5::numeric,
			last_updated    = $6
		WHERE account_id = $1`, table), args...)
	if err != nil {
		return fmt.Errorf("increment wallet %s: %w", ref, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("increment wallet %s: %w", ref, ErrNotFound)
	}
	return nil
}

func upsertWallet(ctx context.Context, q querier, ref ledger.WalletRef, w ledger.Wallet) error {
	table, err := walletTable(ref.Kind)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (account_id, balance, currency, total_deposited, total_spent, total_collected, last_updated)
		VALUES ($1, $2::numeric, $3, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			balance         = EXCLUDED.balance,
			currency        = EXCLUDED.currency,
			total_deposited = EXCLUDED.total_deposited,
			total_spent     = EXCLUDED.total_spent,
			total_collected = EXCLUDED.total_collected,
			last_updated    = EXCLUDED.last_updated`, table),
		ref.ID, w.Balance.String(), w.Currency, w.TotalDeposited.String(), w.TotalSpent.String(),
		w.TotalCollected.String(), stamp(w.LastUpdated))
	if err != nil {
		return fmt.Errorf("set wallet %s: %w", ref, err)
	}
	return nil
}

func updateTransaction(ctx context.Context, q querier, id string, u TransactionUpdate) error {
	var completedAt *time.Time
	if u.CompletedAt != nil {
		at := u.CompletedAt.UTC()
		completedAt = &at
	}
	cmd, err := q.Exec(ctx, `
		UPDATE transactions SET
			status       = COALESCE(NULLIF($2, ''), status),
			fee_deducted = COALESCE($3::boolean, fee_deducted),
			error        = COALESCE($4::text, error),
			completed_at = COALESCE($5::timestamptz, completed_at),
			updated_at   = $6
		WHERE id = $1 AND (NOT $7::boolean OR fee_deducted = FALSE)`,
		id, string(u.Status), u.FeeDeducted, u.Error, completedAt, stamp(u.At), u.RequireUnsettled)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var settled bool
	err = q.QueryRow(ctx, `SELECT fee_deducted FROM transactions WHERE id = $1`, id).Scan(&settled)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("update transaction %s: %w", id, ErrNotFound)
	case err != nil:
		return fmt.Errorf("update transaction %s: %w", id, err)
	case settled && u.RequireUnsettled:
		return fmt.Errorf("update transaction %s: %w", id, ErrAlreadySettled)
	default:
		return fmt.Errorf("update transaction %s: no rows changed", id)
	}
}

func insertEntry(ctx context.Context, q querier, e ledger.Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("entry id: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO wallet_transactions (id, account_id, type, amount, description, related_transaction_id,
		                                 payment_reference, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8::numeric, $9::numeric, $10)`,
		id, e.AccountID, string(e.Type), e.Amount.String(), e.Description, e.RelatedTransactionID,
		e.PaymentReference, e.BalanceBefore.String(), e.BalanceAfter.String(), stamp(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func selectWallet(ctx context.Context, q querier, ref ledger.WalletRef, lock bool) (ledger.Wallet, error) {
	table, err := walletTable(ref.Kind)
	if err != nil {
		return ledger.Wallet{}, err
	}
	query := fmt.Sprintf(`
		SELECT account_id, balance::text, currency, total_deposited::text, total_spent::text,
		       total_collected::text, last_updated
		FROM %s WHERE account_id = $1`, table)
	if lock {
		query += " FOR UPDATE"
	}

	var w ledger.Wallet
	var balance, deposited, spent, collected string
	err = q.QueryRow(ctx, query, ref.ID).Scan(&w.AccountID, &balance, &w.Currency, &deposited, &spent, &collected, &w.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", ref, ErrNotFound)
		}
		return ledger.Wallet{}, fmt.Errorf("select wallet %s: %w", ref, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&w.Balance, balance}, {&w.TotalDeposited, deposited}, {&w.TotalSpent, spent}, {&w.TotalCollected, collected}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return ledger.Wallet{}, fmt.Errorf("parse wallet %s: %w", ref, err)
		}
	}
	w.LastUpdated = w.LastUpdated.UTC()
	return w, nil
}

func selectTransaction(ctx context.Context, q querier, id string, lock bool) (ledger.Transaction, error) {
	query := `
		SELECT id, payer_id, counterparty_id, counterparty_tx_id, amount::text, status, fee_deducted,
		       error, created_at, updated_at, completed_at
		FROM transactions WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}

	var (
		t      ledger.Transaction
		amount string
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.PayerID, &t.CounterpartyID, &t.CounterpartyTxID, &amount,
		&status, &t.FeeDeducted, &t.Error, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return ledger.Transaction{}, fmt.Errorf("select transaction %s: %w", id, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Transaction{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	t.Status = ledger.Status(status)
	return t, nil
}

func walletTable(kind ledger.WalletKind) (string, error) {
	switch kind {
	case ledger.KindUser:
		return "wallets", nil
	case ledger.KindPlatform:
		return "company_wallet", nil
	default:
		return "", fmt.Errorf("unknown wallet kind %q", kind)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
}

var _ Store = (*Postgres)(nil)

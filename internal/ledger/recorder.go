package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryAppender accepts new ledger entries as part of a pending write set.
type EntryAppender interface {
	CreateEntry(entry Entry)
}

// Recorder builds audit entries for balance mutations and appends them to
// the write set that performs the mutation, so an entry commits if and only
// if its balance change does.
type Recorder struct {
	now   func() time.Time
	newID func() string
}

// NewRecorder returns a recorder stamping entries with the wall clock and random ids.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now, newID: uuid.NewString}
}

// WithClock overrides the timestamp source. Intended for tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// FeeDeduction records a fee debit against accountID.
func (r *Recorder) FeeDeduction(w EntryAppender, accountID, transactionID string, fee, before decimal.Decimal) Entry {
	return r.append(w, Entry{
		AccountID:            accountID,
		Type:                 EntryFeeDeduction,
		Amount:               fee.Neg(),
		Description:          fmt.Sprintf("Transaction fee for %s", transactionID),
		RelatedTransactionID: transactionID,
		BalanceBefore:        before,
		BalanceAfter:         before.Sub(fee),
	})
}

// PlatformCredit records collected fees landing in the platform wallet.
func (r *Recorder) PlatformCredit(w EntryAppender, transactionID string, amount, before decimal.Decimal) Entry {
	return r.append(w, Entry{
		AccountID:            PlatformWalletID,
		Type:                 EntryCredit,
		Amount:               amount,
		Description:          fmt.Sprintf("Fees collected for %s", transactionID),
		RelatedTransactionID: transactionID,
		BalanceBefore:        before,
		BalanceAfter:         before.Add(amount),
	})
}

// Deposit records a top-up confirmed by the payment gateway.
func (r *Recorder) Deposit(w EntryAppender, accountID, paymentReference string, amount, before decimal.Decimal) Entry {
	return r.append(w, Entry{
		AccountID:        accountID,
		Type:             EntryDeposit,
		Amount:           amount,
		Description:      "Wallet deposit via payment gateway",
		PaymentReference: paymentReference,
		BalanceBefore:    before,
		BalanceAfter:     before.Add(amount),
	})
}

func (r *Recorder) append(w EntryAppender, entry Entry) Entry {
	entry.ID = r.newID()
	entry.CreatedAt = r.now().UTC()
	w.CreateEntry(entry)
	return entry
}

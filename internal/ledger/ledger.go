package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultCurrency is the currency tag stored alongside every balance.
	DefaultCurrency = "EGP"
	// PlatformWalletID identifies the singleton wallet collecting fees.
	PlatformWalletID = "main"
)

// DefaultTransactionFee is the flat fee charged to each party of a settlement.
var DefaultTransactionFee = decimal.RequireFromString("0.003")

// Stored amounts are NUMERIC(20, 6): at most 14 integer and 6 fractional digits.
const (
	AmountScale        = 6
	maxAmountIntDigits = 14
)

// CheckAmount rejects amounts the store cannot hold exactly. It inspects
// digit counts before any arithmetic so huge exponents are refused cheaply.
func CheckAmount(amount decimal.Decimal) error {
	exp := int(amount.Exponent())
	digits := amount.NumDigits()
	if amount.Sign() != 0 && digits+exp > maxAmountIntDigits {
		return fmt.Errorf("%w: amount must be below 1e%d", ErrInvalidArgument, maxAmountIntDigits)
	}
	if exp < -AmountScale {
		if digits <= -exp-AmountScale || !amount.Equal(amount.Truncate(AmountScale)) {
			return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidArgument, AmountScale)
		}
	}
	return nil
}

// WalletKind selects the collection a wallet lives in.
type WalletKind string

const (
	KindUser     WalletKind = "wallets"
	KindPlatform WalletKind = "company_wallet"
)

// WalletRef addresses a single wallet document.
type WalletRef struct {
	Kind WalletKind
	ID   string
}

// UserWallet references the wallet owned by an account.
func UserWallet(accountID string) WalletRef {
	return WalletRef{Kind: KindUser, ID: accountID}
}

// PlatformWallet references the company wallet.
func PlatformWallet() WalletRef {
	return WalletRef{Kind: KindPlatform, ID: PlatformWalletID}
}

func (r WalletRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Wallet holds a balance and its cumulative counters. For user wallets
// Balance = TotalDeposited - TotalSpent, for the platform wallet
// Balance = TotalCollected.
type Wallet struct {
	AccountID      string
	Balance        decimal.Decimal
	Currency       string
	TotalDeposited decimal.Decimal
	TotalSpent     decimal.Decimal
	TotalCollected decimal.Decimal
	LastUpdated    time.Time
}

// NewWallet returns a zero-balance wallet.
func NewWallet(accountID, currency string, now time.Time) Wallet {
	return Wallet{
		AccountID:      accountID,
		Balance:        decimal.Zero,
		Currency:       currency,
		TotalDeposited: decimal.Zero,
		TotalSpent:     decimal.Zero,
		TotalCollected: decimal.Zero,
		LastUpdated:    now.UTC(),
	}
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Transaction is an exchange between a payer and a counterparty. Fee
// settlement runs at most once per transaction: FeeDeducted flips to true
// in the same commit that moves the balances.
type Transaction struct {
	ID               string
	PayerID          string
	CounterpartyID   string
	CounterpartyTxID string
	Amount           decimal.Decimal
	Status           Status
	FeeDeducted      bool
	Error            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryFeeDeduction EntryType = "fee_deduction"
	EntryDeposit      EntryType = "deposit"
	EntryCredit       EntryType = "credit"
)

// Entry is an immutable audit record of one balance mutation.
type Entry struct {
	ID                   string
	AccountID            string
	Type                 EntryType
	Amount               decimal.Decimal
	Description          string
	RelatedTransactionID string
	PaymentReference     string
	BalanceBefore        decimal.Decimal
	BalanceAfter         decimal.Decimal
	CreatedAt            time.Time
}

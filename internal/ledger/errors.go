package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedInput is returned when required fields are missing.
	ErrMalformedInput = errors.New("malformed input")

	// ErrWalletNotFound is returned when a payer or counterparty wallet is
	// absent. Only the platform wallet may be created on demand.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientBalance is returned when a party cannot cover the fee.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthenticated is returned when no principal is attached to a call.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidArgument is returned for non-positive amounts and similar input errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInternal hides unexpected store failures from callers.
	ErrInternal = errors.New("internal error")
)

// WalletNotFoundError names the account whose wallet is missing.
type WalletNotFoundError struct {
	AccountID string
}

func (e *WalletNotFoundError) Error() string {
	return fmt.Sprintf("wallet for account %s not found", e.AccountID)
}

func (e *WalletNotFoundError) Unwrap() error { return ErrWalletNotFound }

// InsufficientBalanceError names the account that cannot cover the fee.
type InsufficientBalanceError struct {
	AccountID string
	Balance   decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %s has insufficient balance for fee: have %s, need %s",
		e.AccountID, e.Balance.String(), e.Required.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Callable error codes.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeInvalidArgument    = "invalid-argument"
	CodeFailedPrecondition = "failed-precondition"
	CodeNotFound           = "not-found"
	CodeInternal           = "internal"
)

// Code maps an error to its callable error code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMalformedInput):
		return CodeInvalidArgument
	case errors.Is(err, ErrInsufficientBalance):
		return CodeFailedPrecondition
	case errors.Is(err, ErrWalletNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

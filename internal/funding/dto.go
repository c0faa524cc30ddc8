package funding

import "github.com/shopspring/decimal"

// DepositRequest is the callable payload sent once the payment gateway confirmed a charge.
type DepositRequest struct {
	Amount           *decimal.Decimal `json:"amount" validate:"required"`
	PaymentReference string           `json:"paymentReference" validate:"max=256"`
}

// DepositResponse is returned on success.
type DepositResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
}

type callableError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps a callable error code.
type ErrorResponse struct {
	Error callableError `json:"error"`
}

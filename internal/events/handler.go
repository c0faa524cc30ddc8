package events

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
)

// Queue hands a change to an asynchronous worker instead of settling inline.
type Queue interface {
	Enqueue(ctx context.Context, change TransactionChange) error
}

// Handler exposes event delivery endpoints for external event sources.
type Handler struct {
	adapter *Adapter
	queue   Queue
}

// NewHandler builds the handler. With a nil queue changes are processed inline.
func NewHandler(adapter *Adapter, queue Queue) *Handler {
	return &Handler{adapter: adapter, queue: queue}
}

type statusChangeRequest struct {
	Before TransactionState `json:"before"`
	After  TransactionState `json:"after"`
}

type outcomeResponse struct {
	Triggered           bool             `json:"triggered"`
	AlreadySettled      bool             `json:"alreadySettled,omitempty"`
	Reverted            bool             `json:"reverted,omitempty"`
	Error               string           `json:"error,omitempty"`
	Code                string           `json:"code,omitempty"`
	Fee                 *decimal.Decimal `json:"fee,omitempty"`
	PayerBalance        *decimal.Decimal `json:"payerBalance,omitempty"`
	CounterpartyBalance *decimal.Decimal `json:"counterpartyBalance,omitempty"`
}

// TransactionStatusChange receives a before/after pair for one transaction.
func (h *Handler) TransactionStatusChange(c *fiber.Ctx) error {
	var req statusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	change := TransactionChange{TransactionID: c.Params("id"), Before: req.Before, After: req.After}

	if h.queue != nil {
		if err := h.queue.Enqueue(c.UserContext(), change); err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return c.Status(http.StatusAccepted).JSON(fiber.Map{"queued": true})
	}

	out, err := h.adapter.OnTransactionStatusChange(c.UserContext(), change)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	resp := outcomeResponse{Triggered: out.Triggered, Reverted: out.Reverted}
	switch {
	case out.Err != nil:
		resp.Error = out.Err.Error()
		resp.Code = ledger.Code(out.Err)
	case out.Triggered && out.Result.AlreadySettled:
		resp.AlreadySettled = true
	case out.Triggered:
		resp.Fee = &out.Result.Fee
		resp.PayerBalance = &out.Result.PayerBalance
		resp.CounterpartyBalance = &out.Result.CounterpartyBalance
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// AccountCreated provisions the wallet of a newly created account.
func (h *Handler) AccountCreated(c *fiber.Ctx) error {
	accountID := c.Params("id")
	if err := h.adapter.OnAccountCreate(c.UserContext(), accountID); err != nil {
		if errors.Is(err, ledger.ErrMalformedInput) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accountId": accountID, "provisioned": true})
}

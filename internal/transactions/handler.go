package transactions

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
	"github.com/congo-pay/feeledger/internal/store"
)

// Handler exposes transaction endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a transaction handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type createRequest struct {
	CounterpartyID   string          `json:"counterpartyId" validate:"required,max=128"`
	CounterpartyTxID string          `json:"counterpartyTxId" validate:"omitempty,max=128"`
	Amount           decimal.Decimal `json:"amount"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending accepted completed failed"`
}

type transactionResponse struct {
	ID               string          `json:"id"`
	PayerID          string          `json:"payerId"`
	CounterpartyID   string          `json:"counterpartyId"`
	CounterpartyTxID string          `json:"counterpartyTxId,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Status           ledger.Status   `json:"status"`
	FeeDeducted      bool            `json:"feeDeducted"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// Create opens a pending transaction paid by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.service.Create(c.UserContext(), CreateInput{
		PayerID:          middleware.Principal(c),
		CounterpartyID:   req.CounterpartyID,
		CounterpartyTxID: req.CounterpartyTxID,
		Amount:           req.Amount,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(txn))
}

// Get returns a transaction the caller participates in.
func (h *Handler) Get(c *fiber.Ctx) error {
	txn, err := h.participantTransaction(c)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(txn))
}

// SetStatus changes the status of a transaction the caller participates in.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.participantTransaction(c)
	if err != nil {
		return err
	}
	status := ledger.Status(req.Status)
	if status == ledger.StatusAccepted && middleware.Principal(c) != txn.CounterpartyID {
		return toFiberError(ErrNotCounterparty)
	}
	updated, err := h.service.SetStatus(c.UserContext(), txn.ID, status)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(updated))
}

func (h *Handler) participantTransaction(c *fiber.Ctx) (ledger.Transaction, error) {
	txn, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return ledger.Transaction{}, toFiberError(err)
	}
	principal := middleware.Principal(c)
	if principal != txn.PayerID && principal != txn.CounterpartyID {
		return ledger.Transaction{}, toFiberError(ErrNotParticipant)
	}
	return txn, nil
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotCounterparty):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrFinal), errors.Is(err, store.ErrAlreadyExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		PayerID:          t.PayerID,
		CounterpartyID:   t.CounterpartyID,
		CounterpartyTxID: t.CounterpartyTxID,
		Amount:           t.Amount,
		Status:           t.Status,
		FeeDeducted:      t.FeeDeducted,
		Error:            t.Error,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

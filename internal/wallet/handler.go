package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	AccountID      string          `json:"accountId"`
	Balance        decimal.Decimal `json:"balance"`
	Currency       string          `json:"currency"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

type entryResponse struct {
	ID                   string          `json:"id"`
	Type                 string          `json:"type"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	RelatedTransactionID string          `json:"relatedTransactionId,omitempty"`
	PaymentReference     string          `json:"paymentReference,omitempty"`
	BalanceBefore        decimal.Decimal `json:"balanceBefore"`
	BalanceAfter         decimal.Decimal `json:"balanceAfter"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// Get returns the caller's wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	accountID, err := ownAccount(c)
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		AccountID:      w.AccountID,
		Balance:        w.Balance,
		Currency:       w.Currency,
		TotalDeposited: w.TotalDeposited,
		TotalSpent:     w.TotalSpent,
		LastUpdated:    w.LastUpdated,
	})
}

// Entries returns the caller's ledger entries.
func (h *Handler) Entries(c *fiber.Ctx) error {
	accountID, err := ownAccount(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Entries(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:                   e.ID,
			Type:                 string(e.Type),
			Amount:               e.Amount,
			Description:          e.Description,
			RelatedTransactionID: e.RelatedTransactionID,
			PaymentReference:     e.PaymentReference,
			BalanceBefore:        e.BalanceBefore,
			BalanceAfter:         e.BalanceAfter,
			CreatedAt:            e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}

func ownAccount(c *fiber.Ctx) (string, error) {
	accountID := c.Params("accountId")
	principal := middleware.Principal(c)
	if principal == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if accountID != principal {
		return "", fiber.NewError(http.StatusForbidden, "wallet belongs to another account")
	}
	return accountID, nil
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/transactions"
)

// RegisterTransactionRoutes wires the transaction lifecycle endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *transactions.Handler) {
	r.Post("/transactions", h.Create)
	r.Get("/transactions/:id", h.Get)
	r.Patch("/transactions/:id/status", h.SetStatus)
}

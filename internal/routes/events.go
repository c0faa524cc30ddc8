package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/events"
)

// RegisterEventRoutes wires trigger delivery endpoints for an external event source.
func RegisterEventRoutes(r fiber.Router, h *events.Handler, guard fiber.Handler) {
	group := r.Group("/events", guard)
	group.Post("/transactions/:id/status-change", h.TransactionStatusChange)
	group.Post("/accounts/:id/created", h.AccountCreated)
}

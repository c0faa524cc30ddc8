package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/funding"
)

// RegisterFundingRoutes wires the deposit callable.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallet/deposit", h.Deposit)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/identity"
)

// RegisterIdentityRoutes wires registration. The wallet is provisioned by the
// account listener.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

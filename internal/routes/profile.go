package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/identity"
	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
	"github.com/congo-pay/feeledger/internal/wallet"
)

// RegisterProfileRoute exposes the current user's profile together with their wallet.
func RegisterProfileRoute(r fiber.Router, users identity.Repository, wallets *wallet.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid := middleware.Principal(c)
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		user, err := users.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		profile := fiber.Map{
			"user": fiber.Map{
				"id":            user.ID,
				"phone":         user.Phone,
				"tier":          user.Tier,
				"device_id":     user.DeviceID,
				"token_version": user.TokenVersion,
				"created_at":    user.CreatedAt,
			},
			"wallet": nil,
		}
		w, err := wallets.Get(c.UserContext(), uid)
		switch {
		case err == nil:
			profile["wallet"] = fiber.Map{
				"balance":         w.Balance,
				"currency":        w.Currency,
				"total_deposited": w.TotalDeposited,
				"total_spent":     w.TotalSpent,
				"last_updated":    w.LastUpdated,
			}
		case errors.Is(err, ledger.ErrWalletNotFound):
			// Provisioning failed at registration; the first deposit creates it.
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(profile)
	})
}

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// EventsSecretHeader carries the secret shared with the event source.
const EventsSecretHeader = "X-Events-Secret"

// SharedSecret guards machine-to-machine endpoints. An empty secret lets
// every request through and is only accepted in development.
func SharedSecret(secret string) fiber.Handler {
	expected := []byte(secret)
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(c.Get(EventsSecretHeader)), expected) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid events secret")
		}
		return c.Next()
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestSharedSecret(t *testing.T) {
	app := fiber.New()
	app.Use(SharedSecret("hook"))
	app.Post("/events", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing": {"", http.StatusUnauthorized},
		"wrong":   {"nope", http.StatusUnauthorized},
		"match":   {"hook", http.StatusNoContent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", nil)
			if tc.header != "" {
				req.Header.Set(EventsSecretHeader, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestSharedSecretDisabled(t *testing.T) {
	app := fiber.New()
	app.Use(SharedSecret(""))
	app.Post("/events", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/events", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

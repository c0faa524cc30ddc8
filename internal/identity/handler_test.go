package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestRegisterHandler(t *testing.T) {
	app := fiber.New()
	app.Post("/identity/register", NewHandler(NewService(NewMemoryRepository(), nil, nil)).Register)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"phone":"+201000000000","pin":"1234","device_id":"d1"}`, http.StatusCreated},
		{"duplicate", `{"phone":"+201000000000","pin":"5678"}`, http.StatusConflict},
		{"non numeric pin", `{"phone":"+201000000001","pin":"abcd"}`, http.StatusBadRequest},
		{"missing phone", `{"pin":"1234"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/identity/register", strings.NewReader(tc.body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.name, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

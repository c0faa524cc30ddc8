package transactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
	"github.com/congo-pay/feeledger/internal/store"
)

func newTransactionsApp(svc *Service) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user != "" {
			c.Locals(middleware.PrincipalKey, user)
		}
		return c.Next()
	})
	h := NewHandler(svc)
	app.Post("/transactions", h.Create)
	app.Get("/transactions/:id", h.Get)
	app.Patch("/transactions/:id/status", h.SetStatus)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHandlerLifecycle(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "alice", "1")
	seed(t, s, "bob", "1")
	app := newTransactionsApp(NewService(s, inlineListener(s), nil))

	status, body := call(t, app, http.MethodPost, "/transactions", "alice", `{"counterpartyId":"bob","amount":"25"}`)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "alice", body["payerId"])
	require.Equal(t, "pending", body["status"])
	id := body["id"].(string)

	status, _ = call(t, app, http.MethodGet, "/transactions/"+id, "mallory", "")
	require.Equal(t, http.StatusForbidden, status)

	status, body = call(t, app, http.MethodPatch, "/transactions/"+id+"/status", "bob", `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "completed", body["status"])
	require.Equal(t, true, body["feeDeducted"])

	status, _ = call(t, app, http.MethodPatch, "/transactions/"+id+"/status", "alice", `{"status":"failed"}`)
	require.Equal(t, http.StatusConflict, status)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	app := newTransactionsApp(NewService(store.NewMemory(), nil, nil))

	status, _ := call(t, app, http.MethodPost, "/transactions", "alice", `{"amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodPost, "/transactions", "alice", `{"counterpartyId":"alice"}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodGet, "/transactions/nope", "alice", "")
	require.Equal(t, http.StatusNotFound, status)

	status, body := call(t, app, http.MethodPost, "/transactions", "alice", `{"counterpartyId":"bob"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = call(t, app, http.MethodPatch, "/transactions/"+body["id"].(string)+"/status", "alice", `{"status":"done"}`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerOnlyCounterpartyAccepts(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "mallory", "1")
	seed(t, s, "victim", "1")
	app := newTransactionsApp(NewService(s, inlineListener(s), nil))

	status, body := call(t, app, http.MethodPost, "/transactions", "mallory", `{"counterpartyId":"victim","amount":"5"}`)
	require.Equal(t, http.StatusCreated, status)
	id := body["id"].(string)

	status, _ = call(t, app, http.MethodPatch, "/transactions/"+id+"/status", "mallory", `{"status":"accepted"}`)
	require.Equal(t, http.StatusForbidden, status)

	stored, err := s.Transaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, stored.Status)
	require.False(t, stored.FeeDeducted)

	victim, err := s.Wallet(context.Background(), ledger.UserWallet("victim"))
	require.NoError(t, err)
	require.Equal(t, "1", victim.Balance.String())

	// The payer may still withdraw the request.
	status, body = call(t, app, http.MethodPatch, "/transactions/"+id+"/status", "mallory", `{"status":"failed"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "failed", body["status"])
}

package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/feeledger/internal/ledger"
)

type sliceQueue struct {
	changes []TransactionChange
}

func (q *sliceQueue) Enqueue(_ context.Context, change TransactionChange) error {
	q.changes = append(q.changes, change)
	return nil
}

const acceptedBody = `{"before":{"status":"pending","payerId":"alice","counterpartyId":"bob"},"after":{"status":"accepted","payerId":"alice","counterpartyId":"bob"}}`

func newEventsApp(h *Handler) *fiber.App {
	app := fiber.New()
	app.Post("/events/transactions/:id/status-change", h.TransactionStatusChange)
	app.Post("/events/accounts/:id/created", h.AccountCreated)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHandlerSettlesInline(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice", "1")
	h.seed(t, "bob", "1")
	h.transaction(t, "tx1", ledger.StatusAccepted)
	app := newEventsApp(NewHandler(h.adapter, nil))

	status, body := post(t, app, "/events/transactions/tx1/status-change", acceptedBody)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["triggered"])
	require.Equal(t, "0.997", body["payerBalance"])
	require.Equal(t, "0.003", body["fee"])

	status, body = post(t, app, "/events/transactions/tx1/status-change", acceptedBody)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["alreadySettled"])
}

func TestHandlerReportsRevert(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice", "1")
	h.transaction(t, "tx1", ledger.StatusAccepted)
	app := newEventsApp(NewHandler(h.adapter, nil))

	status, body := post(t, app, "/events/transactions/tx1/status-change", acceptedBody)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["reverted"])
	require.Equal(t, ledger.CodeNotFound, body["code"])
}

func TestHandlerQueuesWhenAsync(t *testing.T) {
	h := newHarness(t)
	queue := &sliceQueue{}
	app := newEventsApp(NewHandler(h.adapter, queue))

	status, body := post(t, app, "/events/transactions/tx9/status-change", acceptedBody)
	require.Equal(t, fiber.StatusAccepted, status)
	require.Equal(t, true, body["queued"])
	require.Len(t, queue.changes, 1)
	require.Equal(t, "tx9", queue.changes[0].TransactionID)
	require.True(t, queue.changes[0].BecameAccepted())
}

func TestHandlerProvisionsAccount(t *testing.T) {
	h := newHarness(t)
	app := newEventsApp(NewHandler(h.adapter, nil))

	status, body := post(t, app, "/events/accounts/dave/created", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "dave", body["accountId"])

	_, err := h.store.Wallet(h.ctx, ledger.UserWallet("dave"))
	require.NoError(t, err)
}

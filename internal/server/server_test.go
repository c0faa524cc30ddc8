package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/congo-pay/feeledger/internal/config"
	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/logging"
)

func TestNewInDevelopmentUsesMemoryBackends(t *testing.T) {
	cfg := config.Config{
		AppName:        "FeeLedger",
		AppEnv:         "development",
		JWTSecret:      "secret",
		RefreshSecret:  "secret",
		TransactionFee: ledger.DefaultTransactionFee,
		Currency:       "EGP",
		SettlementMode: "batch",
	}
	srv, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNewRejectsUnknownSettlementMode(t *testing.T) {
	cfg := config.Config{AppEnv: "development", SettlementMode: "eventual", Currency: "EGP"}
	if _, err := New(cfg, nil, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown settlement mode")
	}
}

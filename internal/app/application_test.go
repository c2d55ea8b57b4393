package app

import (
	"context"
	"testing"
	"time"

	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

func TestBuildGatewayFakeServesStatuses(t *testing.T) {
	gw, statuses, wallet, err := buildGateway(config.GatewayConfig{}, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("buildGateway: %v", err)
	}
	if gw == nil || statuses == nil {
		t.Fatal("expected both a gateway and a status source")
	}
	if wallet.Address != devWalletAddress {
		t.Fatalf("wallet = %q, want dev fallback", wallet.Address)
	}

	fake, ok := gw.(*gateway.Fake)
	if !ok {
		t.Fatalf("gateway = %T, want *gateway.Fake", gw)
	}
	fake.SetStatus("0xabc", gateway.TransactionStatus{Done: true, Success: false, Message: "reverted"})

	st, err := statuses.TransactionStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("TransactionStatus: %v", err)
	}
	if !st.Done || st.Success {
		t.Fatalf("status = %+v, want done failure", st)
	}
}

func TestBuildGatewayHTTPServesStatuses(t *testing.T) {
	cfg := config.GatewayConfig{
		Endpoint:      "http://gateway.local",
		SigningSecret: "secret",
		KeyVersion:    "v1",
		WalletAddress: "0x00000000000000000000000000000000000000aa",
		ChainID:       "1",
		Timeout:       5 * time.Second,
	}
	gw, statuses, wallet, err := buildGateway(cfg, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("buildGateway: %v", err)
	}
	if gw == nil || statuses == nil {
		t.Fatal("expected both a gateway and a status source")
	}
	if wallet.Address != cfg.WalletAddress {
		t.Fatalf("wallet = %q, want %q", wallet.Address, cfg.WalletAddress)
	}
	if _, ok := gw.(*gateway.HTTPClient); !ok {
		t.Fatalf("gateway = %T, want *gateway.HTTPClient", gw)
	}
	if _, ok := statuses.(*gateway.HTTPClient); !ok {
		t.Fatalf("status source = %T, want *gateway.HTTPClient", statuses)
	}
}

func TestBuildGatewayRequiresWalletForEndpoint(t *testing.T) {
	_, _, _, err := buildGateway(config.GatewayConfig{Endpoint: "http://gateway.local"}, logger.NewDefault("test"))
	if err == nil {
		t.Fatal("expected wallet validation error")
	}
}

func TestNewWiresDefaultStores(t *testing.T) {
	var cfg config.Config
	cfg.Gateway.ChainID = "1"
	cfg.Workflow.SessionTTL = time.Minute
	cfg.Workflow.PollInterval = time.Second
	cfg.Workflow.PollBatch = 10

	app, err := New(cfg, Stores{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if app.Tokens == nil || app.Panels == nil || app.Modules == nil || app.Registry == nil || app.Operations == nil {
		t.Fatal("expected all services wired")
	}
}

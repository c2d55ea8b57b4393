package runtime

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Issuance-Network/token_layer/internal/config"
)

func memoryConfig() config.Config {
	var cfg config.Config
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Auth.Disabled = true
	cfg.Auth.RateLimit = 100
	cfg.Auth.RateBurst = 100
	cfg.Workflow.PollInterval = time.Hour
	cfg.Workflow.JanitorInterval = time.Hour
	cfg.Logging.Level = "error"
	cfg.Gateway.ChainID = "1"
	return cfg
}

func TestNewApplicationWithMemoryBackend(t *testing.T) {
	app, err := NewApplicationWithConfig(memoryConfig())
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	if app.App() == nil {
		t.Fatal("application not wired")
	}
	if app.db != nil {
		t.Fatal("memory backend must not open a database")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app, err := NewApplicationWithConfig(memoryConfig())
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && err != http.ErrServerClosed {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop on cancel")
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

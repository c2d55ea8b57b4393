package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Workflow.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %v, want 30m", cfg.Workflow.SessionTTL)
	}
	if cfg.Workflow.PollBatch != 50 {
		t.Errorf("poll batch = %d, want 50", cfg.Workflow.PollBatch)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
	if cfg.Gateway.KeyVersion != "v1" {
		t.Errorf("key version = %q, want v1", cfg.Gateway.KeyVersion)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("WORKFLOW_POLL_INTERVAL", "3s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Workflow.PollInterval != 3*time.Second {
		t.Errorf("poll interval = %v, want 3s", cfg.Workflow.PollInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{
			name: "supabase url without key",
			mut:  func(c *Config) { c.Supabase.URL = "https://example.supabase.co" },
			want: "SUPABASE_API_KEY",
		},
		{
			name: "auth enabled without secret",
			mut:  func(c *Config) { c.Auth.Disabled = false },
			want: "AUTH_JWT_SECRET",
		},
		{
			name: "migrate on boot without dsn",
			mut:  func(c *Config) { c.Database.MigrateOnBoot = true },
			want: "DATABASE_DSN",
		},
		{
			name: "file output without prefix",
			mut:  func(c *Config) { c.Logging.Output = "file" },
			want: "LOG_FILE_PREFIX",
		},
		{
			name: "unknown log output",
			mut:  func(c *Config) { c.Logging.Output = "syslog" },
			want: "LOG_OUTPUT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Auth: AuthConfig{Disabled: true}}
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %s", err, tc.want)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	c := ServerConfig{CORSOrigins: "https://a.example, https://b.example ,,"}
	got := c.Origins()
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("origins = %v, want %v", got, want)
	}
}

func TestLoadPanelsConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panels.yaml")
	doc := `standards:
  erc20:
    operations: [mint, burn, pause]
    modules: true
  erc721:
    operations: [mint]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPanelsConfigFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	erc20 := cfg.Standards["erc20"]
	if erc20 == nil || !erc20.Modules {
		t.Fatal("erc20 panel should enable modules")
	}
	if len(erc20.Operations) != 3 {
		t.Errorf("erc20 operations = %v", erc20.Operations)
	}
	if cfg.Standards["erc721"].Modules {
		t.Error("erc721 modules should default to false")
	}
}

func TestLoadPanelsConfigRejectsEmptyOperations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panels.yaml")
	doc := `standards:
  erc20:
    modules: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPanelsConfigFromPath(path); err == nil {
		t.Fatal("expected error for missing operations")
	}
}

func TestDefaultPanelsConfigCoverage(t *testing.T) {
	cfg := DefaultPanelsConfig()
	for _, std := range []string{"erc20", "erc721", "erc1155", "erc1400", "erc3525", "erc4626"} {
		panel, ok := cfg.Standards[std]
		if !ok {
			t.Fatalf("missing standard %s", std)
		}
		if len(panel.Operations) == 0 {
			t.Errorf("standard %s has no operations", std)
		}
	}
	has := func(ops []string, op string) bool {
		for _, o := range ops {
			if o == op {
				return true
			}
		}
		return false
	}
	if !has(cfg.Standards["erc20"].Operations, "update_max_supply") {
		t.Error("erc20 should allow update_max_supply")
	}
	if has(cfg.Standards["erc721"].Operations, "block") {
		t.Error("erc721 should not allow block")
	}
}

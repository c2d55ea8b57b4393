// Package config loads service configuration from the environment and the
// optional panels matrix file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full service configuration, decoded from the environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Supabase  SupabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Validator ValidatorConfig
	Gateway   GatewayConfig
	Workflow  WorkflowConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `env:"SERVER_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	CORSOrigins     string        `env:"SERVER_CORS_ORIGINS,default=*"`
}

// Origins splits the configured CORS origin allowlist.
func (c ServerConfig) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DatabaseConfig configures the Postgres backend.
type DatabaseConfig struct {
	DSN           string `env:"DATABASE_DSN"`
	MigrateOnBoot bool   `env:"DATABASE_MIGRATE_ON_BOOT,default=false"`
}

// SupabaseConfig configures the Supabase backend. When URL is set it takes
// precedence over the Postgres DSN.
type SupabaseConfig struct {
	URL        string `env:"SUPABASE_URL"`
	APIKey     string `env:"SUPABASE_API_KEY"`
	Realtime   bool   `env:"SUPABASE_REALTIME,default=false"`
	Resilience bool   `env:"SUPABASE_RESILIENCE,default=true"`
}

// RedisConfig configures the registry cache.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,default=0"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL,default=5m"`
}

// AuthConfig configures the JWT middleware.
type AuthConfig struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	Disabled  bool          `env:"AUTH_DISABLED,default=false"`
	RateLimit float64       `env:"AUTH_RATE_LIMIT,default=20"`
	RateBurst int           `env:"AUTH_RATE_BURST,default=40"`
	RateTTL   time.Duration `env:"AUTH_RATE_TTL,default=10m"`
}

// ValidatorConfig configures the policy validator client.
type ValidatorConfig struct {
	Endpoint string        `env:"VALIDATOR_ENDPOINT"`
	APIKey   string        `env:"VALIDATOR_API_KEY"`
	Timeout  time.Duration `env:"VALIDATOR_TIMEOUT,default=10s"`
}

// GatewayConfig configures the transaction gateway client.
type GatewayConfig struct {
	Endpoint      string        `env:"GATEWAY_ENDPOINT"`
	SigningSecret string        `env:"GATEWAY_SIGNING_SECRET"`
	KeyVersion    string        `env:"GATEWAY_KEY_VERSION,default=v1"`
	WalletAddress string        `env:"GATEWAY_WALLET_ADDRESS"`
	ChainID       string        `env:"GATEWAY_CHAIN_ID,default=1"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT,default=30s"`
}

// WorkflowConfig tunes sessions and confirmation tracking.
type WorkflowConfig struct {
	SessionTTL      time.Duration `env:"WORKFLOW_SESSION_TTL,default=30m"`
	JanitorInterval time.Duration `env:"WORKFLOW_JANITOR_INTERVAL,default=5m"`
	PollInterval    time.Duration `env:"WORKFLOW_POLL_INTERVAL,default=15s"`
	PollBatch       int           `env:"WORKFLOW_POLL_BATCH,default=50"`
	RefreshSchedule string        `env:"WORKFLOW_REGISTRY_REFRESH,default=@every 10m"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED,default=true"`
}

// Load decodes the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that envdecode cannot express.
func (c Config) Validate() error {
	if c.Supabase.URL != "" && c.Supabase.APIKey == "" {
		return fmt.Errorf("SUPABASE_API_KEY is required when SUPABASE_URL is set")
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required unless AUTH_DISABLED is set")
	}
	if c.Database.MigrateOnBoot && c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when DATABASE_MIGRATE_ON_BOOT is set")
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.FilePrefix == "" {
			return fmt.Errorf("LOG_FILE_PREFIX is required when LOG_OUTPUT is file")
		}
	default:
		return fmt.Errorf("unknown LOG_OUTPUT %q", c.Logging.Output)
	}
	return nil
}

// Package runtime wires configuration, storage backends, the application,
// and the HTTP server into a runnable process.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/Issuance-Network/token_layer/internal/app"
	"github.com/Issuance-Network/token_layer/internal/app/httpapi"
	"github.com/Issuance-Network/token_layer/internal/app/storage/migrations"
	"github.com/Issuance-Network/token_layer/internal/app/storage/postgres"
	supastore "github.com/Issuance-Network/token_layer/internal/app/storage/supabase"
	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/pkg/logger"
	"github.com/Issuance-Network/token_layer/supabase/client"
)

// Application wires core dependencies and manages the server lifecycle.
type Application struct {
	cfg        config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sql.DB
	done       chan struct{}
}

// NewApplication constructs a runnable application from the environment.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig constructs a runnable application from an already
// loaded configuration.
func NewApplicationWithConfig(cfg config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	done := make(chan struct{})
	handler, err := httpapi.NewHandler(application, cfg, httpapi.Options{Log: log, Done: done})
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("build handler: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: srv,
		db:         db,
		done:       done,
	}, nil
}

// App exposes the wired application, mainly for seeding tools.
func (a *Application) App() *app.Application {
	return a.app
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.cfg.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, background services, and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http server shutdown")
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("service shutdown")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("closing database connection")
		}
	}
	return nil
}

// buildStores selects the persistence backend: Supabase when a URL is set,
// Postgres when a DSN is set, otherwise in-memory.
func buildStores(cfg config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Supabase.URL != "" {
		supa, err := client.NewEnhanced(client.EnhancedConfig{
			Config: client.Config{
				URL:    cfg.Supabase.URL,
				APIKey: cfg.Supabase.APIKey,
			},
			RetryConfig:          client.DefaultRetryConfig(),
			CircuitBreakerConfig: client.DefaultCircuitBreakerConfig(),
			EnableResilience:     cfg.Supabase.Resilience,
		})
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("supabase client: %w", err)
		}
		store := supastore.New(supa)
		log.Info("using supabase storage backend")
		return app.Stores{
			Tokens:     store,
			Properties: store,
			Operations: store,
			Modules:    store,
			Registry:   store,
		}, nil, nil
	}

	if cfg.Database.DSN != "" {
		db, err := openDatabase(cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, err
		}
		if cfg.Database.MigrateOnBoot {
			if err := migrations.Up(db); err != nil {
				_ = db.Close()
				return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
			}
			log.Info("database migrations applied")
		}
		store := postgres.New(db)
		log.Info("using postgres storage backend")
		return app.Stores{
			Tokens:     store,
			Properties: store,
			Operations: store,
			Modules:    store,
			Registry:   postgres.NewRegistryStore(db),
		}, db, nil
	}

	log.Warn("no database configured; using in-memory storage")
	return app.Stores{}, nil, nil
}

func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

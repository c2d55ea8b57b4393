package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/Issuance-Network/token_layer/internal/app/services/modules"
	"github.com/Issuance-Network/token_layer/internal/app/services/operations"
	"github.com/Issuance-Network/token_layer/internal/app/services/panels"
	registrysvc "github.com/Issuance-Network/token_layer/internal/app/services/registry"
	"github.com/Issuance-Network/token_layer/internal/app/services/tokens"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/app/storage/memory"
	"github.com/Issuance-Network/token_layer/internal/app/system"
	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/pkg/logger"
	supaclient "github.com/Issuance-Network/token_layer/supabase/client"
)

// devWalletAddress is used when no operator wallet is configured. The fake
// gateway accepts it; a real gateway endpoint requires a configured wallet.
const devWalletAddress = "0x0000000000000000000000000000000000000001"

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Tokens     storage.TokenStore
	Properties storage.PropertiesStore
	Operations storage.OperationStore
	Modules    storage.ModuleStore
	Registry   storage.RegistryStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Tokens     *tokens.Service
	Panels     *panels.Service
	Modules    *modules.Service
	Registry   *registrysvc.Service
	Operations *operations.Service
}

// New builds a fully initialised application with the provided stores.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Tokens == nil {
		stores.Tokens = mem
	}
	if stores.Properties == nil {
		stores.Properties = mem
	}
	if stores.Operations == nil {
		stores.Operations = mem
	}
	if stores.Modules == nil {
		stores.Modules = mem
	}
	if stores.Registry == nil {
		stores.Registry = mem
	}

	manager := system.NewManager()

	tokenService := tokens.New(stores.Tokens, stores.Properties, log)
	panelService := panels.New(config.LoadPanelsConfigOrDefault(), tokenService, log)

	gw, statuses, wallet, err := buildGateway(cfg.Gateway, log)
	if err != nil {
		return nil, err
	}
	validator, err := buildValidator(cfg.Validator, log)
	if err != nil {
		return nil, err
	}

	var cache registrysvc.Cache
	if cfg.Redis.Addr != "" {
		cache = registrysvc.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		log.Warn("REDIS_ADDR not set; registry cache disabled")
	}
	registryService, err := registrysvc.New(registrysvc.Config{
		Store:    stores.Registry,
		Cache:    cache,
		TTL:      cfg.Redis.CacheTTL,
		Schedule: cfg.Workflow.RefreshSchedule,
		Log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("registry service: %w", err)
	}

	moduleService, err := modules.New(modules.Config{
		Tokens:    stores.Tokens,
		Ops:       stores.Operations,
		Modules:   stores.Modules,
		Catalog:   registryService,
		Gateway:   gw,
		Validator: validator,
		Wallet:    wallet,
		Log:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("module service: %w", err)
	}

	feed := operations.NewFeed()
	recon := operations.NewReconQueue()
	operationService, err := operations.New(operations.Config{
		Tokens:     stores.Tokens,
		Operations: stores.Operations,
		Gateway:    gw,
		Validator:  validator,
		Wallet:     wallet,
		Matrix:     panelService,
		Modules:    moduleService,
		Feed:       feed,
		Recon:      recon,
		SessionTTL: cfg.Workflow.SessionTTL,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("operation service: %w", err)
	}

	poller := operations.NewPoller(operations.PollerConfig{
		Operations: stores.Operations,
		Tokens:     stores.Tokens,
		Resolver:   operations.NewGatewayResolver(statuses),
		Recon:      recon,
		Feed:       feed,
		Interval:   cfg.Workflow.PollInterval,
		Batch:      cfg.Workflow.PollBatch,
		Log:        log,
	})
	janitor := operations.NewJanitor(operationService.Sessions(), cfg.Workflow.JanitorInterval, log)

	services := []system.Service{registryService, poller, janitor}
	if cfg.Supabase.Realtime && cfg.Supabase.URL != "" {
		realtime := supaclient.NewRealtimeClient(cfg.Supabase.URL, cfg.Supabase.APIKey)
		services = append(services, operations.NewRealtimeBridge(realtime, feed, log))
	}

	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Tokens:     tokenService,
		Panels:     panelService,
		Modules:    moduleService,
		Registry:   registryService,
		Operations: operationService,
	}, nil
}

func buildGateway(cfg config.GatewayConfig, log *logger.Logger) (gateway.Gateway, gateway.StatusSource, gateway.WalletContext, error) {
	wallet := gateway.WalletContext{
		Address:    cfg.WalletAddress,
		ChainID:    cfg.ChainID,
		KeyVersion: cfg.KeyVersion,
	}
	if cfg.Endpoint == "" {
		log.Warn("GATEWAY_ENDPOINT not set; using in-process fake gateway")
		if wallet.Address == "" {
			wallet.Address = devWalletAddress
		}
		fake := gateway.NewFake()
		return fake, fake, wallet, nil
	}
	if err := wallet.Validate(); err != nil {
		return nil, nil, gateway.WalletContext{}, fmt.Errorf("gateway wallet: %w", err)
	}
	var seed []byte
	if cfg.SigningSecret != "" {
		seed = []byte(cfg.SigningSecret)
	}
	client, err := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		Endpoint:    cfg.Endpoint,
		SigningSeed: seed,
		KeyVersion:  cfg.KeyVersion,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
	}, log)
	if err != nil {
		return nil, nil, gateway.WalletContext{}, fmt.Errorf("gateway client: %w", err)
	}
	return client, client, wallet, nil
}

func buildValidator(cfg config.ValidatorConfig, log *logger.Logger) (policy.Validator, error) {
	if cfg.Endpoint == "" {
		log.Warn("VALIDATOR_ENDPOINT not set; using static approve-all validator")
		return policy.NewStaticValidator(), nil
	}
	v, err := policy.NewHTTPValidator(&http.Client{Timeout: cfg.Timeout}, cfg.Endpoint, cfg.APIKey, log)
	if err != nil {
		return nil, fmt.Errorf("validator client: %w", err)
	}
	return v, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

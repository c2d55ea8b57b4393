// Package registry serves the published module contracts catalog: database
// reads behind a read-through cache, re-warmed on a cron schedule.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/app/system"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// Cache is the read-through cache in front of the registry store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// RedisCache backs the cache with redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}

// Service reads the module contracts registry.
type Service struct {
	store    storage.RegistryStore
	cache    Cache
	ttl      time.Duration
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Service)(nil)

// Config wires a Service.
type Config struct {
	Store storage.RegistryStore
	Cache Cache
	TTL   time.Duration
	// Schedule is a cron spec for cache re-warming, e.g. "@every 10m".
	Schedule string
	Log      *logger.Logger
}

// New constructs the registry service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("registry store is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("registry")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	return &Service{
		store:    cfg.Store,
		cache:    cfg.Cache,
		ttl:      ttl,
		schedule: schedule,
		log:      log,
	}, nil
}

func (s *Service) Name() string { return "module-registry" }

// Start schedules the cache refresher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.log.WithError(err).Warn("registry cache refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule registry refresh: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true

	if err := s.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("initial registry warm-up failed")
	}
	s.log.Info("module registry service started")
	return nil
}

// Stop halts the refresher.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func versionsKey(moduleType string) string {
	return "registry:versions:" + moduleType
}

func marketplaceKey(filter storage.RegistryFilter) string {
	return fmt.Sprintf("registry:marketplace:%s:%s:%s:%t:%t:%s",
		filter.ModuleType, filter.Publisher, filter.ChainID,
		filter.AuditedOnly, filter.ActiveOnly, strings.ToLower(filter.Search))
}

func (s *Service) cached(ctx context.Context, key string) ([]module.RegistryEntry, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		metrics.RecordCacheLookup(false)
		return nil, false
	}
	var entries []module.RegistryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		metrics.RecordCacheLookup(false)
		return nil, false
	}
	metrics.RecordCacheLookup(true)
	return entries, true
}

func (s *Service) fill(ctx context.Context, key string, entries []module.RegistryEntry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, raw, s.ttl)
}

// Versions lists the published versions of a module type, newest first.
func (s *Service) Versions(ctx context.Context, moduleType string) ([]module.RegistryEntry, error) {
	moduleType = strings.ToLower(strings.TrimSpace(moduleType))
	if moduleType == "" {
		return nil, errors.InvalidInput("module type is required")
	}

	if entries, ok := s.cached(ctx, versionsKey(moduleType)); ok {
		return entries, nil
	}
	entries, err := s.store.ListModuleVersions(ctx, moduleType)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, versionsKey(moduleType), entries)
	return entries, nil
}

// Marketplace lists registry entries matching the filter.
func (s *Service) Marketplace(ctx context.Context, filter storage.RegistryFilter) ([]module.RegistryEntry, error) {
	key := marketplaceKey(filter)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}
	entries, err := s.store.ListRegistryEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, entries)
	return entries, nil
}

// Entry returns one registry entry by id.
func (s *Service) Entry(ctx context.Context, id string) (module.RegistryEntry, error) {
	entry, err := s.store.GetRegistryEntry(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return module.RegistryEntry{}, errors.NotFound("registry entry", id)
		}
		return module.RegistryEntry{}, err
	}
	return entry, nil
}

// Seed upserts a registry entry, for the seeding command and tests.
func (s *Service) Seed(ctx context.Context, entry module.RegistryEntry) (module.RegistryEntry, error) {
	entry.ModuleType = strings.ToLower(strings.TrimSpace(entry.ModuleType))
	if entry.ModuleType == "" || strings.TrimSpace(entry.Version) == "" {
		return module.RegistryEntry{}, errors.InvalidInput("module type and version are required")
	}
	return s.store.UpsertRegistryEntry(ctx, entry)
}

// Refresh re-warms the per-type version caches from the database.
func (s *Service) Refresh(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	entries, err := s.store.ListRegistryEntries(ctx, storage.RegistryFilter{})
	if err != nil {
		return err
	}

	byType := make(map[string][]module.RegistryEntry)
	for _, entry := range entries {
		byType[entry.ModuleType] = append(byType[entry.ModuleType], entry)
	}
	for moduleType, group := range byType {
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})
		s.fill(ctx, versionsKey(moduleType), group)
	}
	s.log.WithField("types", len(byType)).Info("registry cache refreshed")
	return nil
}

// Package main seeds the module contracts registry with published module
// versions, either from a JSON file or from a built-in demo set.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/services/registry"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/app/storage/postgres"
	"github.com/Issuance-Network/token_layer/internal/app/storage/supabase"
	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/supabase/client"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// seedEntry mirrors module.RegistryEntry for JSON input files.
type seedEntry struct {
	ModuleType   string        `json:"module_type"`
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Address      string        `json:"address"`
	ChainID      string        `json:"chain_id"`
	Publisher    string        `json:"publisher"`
	Audited      bool          `json:"audited"`
	Active       bool          `json:"active"`
	ConfigSchema schema.Schema `json:"config_schema"`
	Description  string        `json:"description,omitempty"`
}

func (e seedEntry) toEntry() module.RegistryEntry {
	return module.RegistryEntry{
		ModuleType:   e.ModuleType,
		Name:         e.Name,
		Version:      e.Version,
		Address:      e.Address,
		ChainID:      e.ChainID,
		Publisher:    e.Publisher,
		Audited:      e.Audited,
		Active:       e.Active,
		ConfigSchema: e.ConfigSchema,
		Description:  e.Description,
	}
}

func main() {
	file := flag.String("file", "", "JSON file with registry entries (defaults to the built-in demo set)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logg := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open registry store: %v", err)
	}
	defer closeStore()

	svc, err := registry.New(registry.Config{Store: store, Log: logg})
	if err != nil {
		log.Fatalf("build registry service: %v", err)
	}

	entries, err := loadEntries(*file)
	if err != nil {
		log.Fatalf("load entries: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, entry := range entries {
		seeded, err := svc.Seed(ctx, entry)
		if err != nil {
			log.Fatalf("seed %s %s: %v", entry.ModuleType, entry.Version, err)
		}
		log.Printf("seeded %s %s (%s)", seeded.ModuleType, seeded.Version, seeded.ID)
	}
	log.Printf("done: %d entries", len(entries))
}

func openStore(cfg config.Config) (storage.RegistryStore, func(), error) {
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewRegistryStore(db), func() { db.Close() }, nil
	}
	if cfg.Supabase.URL != "" {
		c, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.APIKey})
		if err != nil {
			return nil, nil, err
		}
		return supabase.New(c), func() {}, nil
	}
	return nil, nil, errors.New("no storage backend: set DATABASE_DSN or SUPABASE_URL")
}

func loadEntries(path string) ([]module.RegistryEntry, error) {
	if path == "" {
		return demoEntries(), nil
	}
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var seeds []seedEntry
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, err
	}
	entries := make([]module.RegistryEntry, 0, len(seeds))
	for _, s := range seeds {
		entries = append(entries, s.toEntry())
	}
	return entries, nil
}

func demoEntries() []module.RegistryEntry {
	maxBPS := float64(10000)
	return []module.RegistryEntry{
		{
			ModuleType: "fees",
			Name:       "Transfer Fees",
			Version:    "1.2.0",
			Address:    "0x6b175474e89094c44da98b954eedeac495271d0f",
			ChainID:    "1",
			Publisher:  "issuance-network",
			Audited:    true,
			Active:     true,
			ConfigSchema: schema.Schema{Fields: []schema.FieldSpec{
				{Name: "fee_bps", Type: schema.TypeInteger, Required: true, Max: &maxBPS},
				{Name: "fee_recipient", Type: schema.TypeAddress, Required: true},
			}},
			Description: "Charges a basis-point fee on every transfer.",
		},
		{
			ModuleType: "allowlist",
			Name:       "Address Allowlist",
			Version:    "1.0.1",
			Address:    "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
			ChainID:    "1",
			Publisher:  "issuance-network",
			Audited:    true,
			Active:     true,
			ConfigSchema: schema.Schema{Fields: []schema.FieldSpec{
				{Name: "admin", Type: schema.TypeAddress, Required: true},
			}},
			Description: "Restricts transfers to approved addresses.",
		},
		{
			ModuleType: "vesting",
			Name:       "Linear Vesting",
			Version:    "0.9.0",
			Address:    "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984",
			ChainID:    "1",
			Publisher:  "community-labs",
			Audited:    false,
			Active:     true,
			ConfigSchema: schema.Schema{Fields: []schema.FieldSpec{
				{Name: "cliff", Type: schema.TypeDuration, Required: true},
				{Name: "duration", Type: schema.TypeDuration, Required: true},
			}},
			Description: "Linear release schedule with an optional cliff.",
		},
	}
}

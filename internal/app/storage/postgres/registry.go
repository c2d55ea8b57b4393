package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
)

// RegistryStore reads and seeds the contract_masters table.
type RegistryStore struct {
	db *sqlx.DB
}

var _ storage.RegistryStore = (*RegistryStore)(nil)

// NewRegistryStore wraps the database handle for registry access.
func NewRegistryStore(db *sql.DB) *RegistryStore {
	return &RegistryStore{db: sqlx.NewDb(db, "postgres")}
}

type registryRow struct {
	ID           string         `db:"id"`
	ModuleType   string         `db:"module_type"`
	Name         string         `db:"name"`
	Version      string         `db:"version"`
	Address      string         `db:"address"`
	ChainID      string         `db:"chain_id"`
	Publisher    string         `db:"publisher"`
	Audited      bool           `db:"audited"`
	Active       bool           `db:"active"`
	ConfigSchema []byte         `db:"config_schema"`
	Description  sql.NullString `db:"description"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r registryRow) toEntry() (module.RegistryEntry, error) {
	entry := module.RegistryEntry{
		ID:          r.ID,
		ModuleType:  r.ModuleType,
		Name:        r.Name,
		Version:     r.Version,
		Address:     r.Address,
		ChainID:     r.ChainID,
		Publisher:   r.Publisher,
		Audited:     r.Audited,
		Active:      r.Active,
		Description: r.Description.String,
		CreatedAt:   r.CreatedAt,
	}
	if len(r.ConfigSchema) > 0 {
		var s schema.Schema
		if err := json.Unmarshal(r.ConfigSchema, &s); err != nil {
			return module.RegistryEntry{}, fmt.Errorf("decode config schema for %s: %w", r.ID, err)
		}
		entry.ConfigSchema = s
	}
	return entry, nil
}

func (s *RegistryStore) UpsertRegistryEntry(ctx context.Context, entry module.RegistryEntry) (module.RegistryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	schemaJSON, err := json.Marshal(entry.ConfigSchema)
	if err != nil {
		return module.RegistryEntry{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contract_masters (id, module_type, name, version, address, chain_id, publisher, audited, active, config_schema, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (module_type, version, chain_id)
		DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, publisher = EXCLUDED.publisher,
		              audited = EXCLUDED.audited, active = EXCLUDED.active,
		              config_schema = EXCLUDED.config_schema, description = EXCLUDED.description
	`, entry.ID, entry.ModuleType, entry.Name, entry.Version, entry.Address, entry.ChainID, entry.Publisher,
		entry.Audited, entry.Active, schemaJSON, entry.Description, entry.CreatedAt)
	if err != nil {
		return module.RegistryEntry{}, mapErr(err)
	}

	var row registryRow
	err = s.db.GetContext(ctx, &row, `
		SELECT id, module_type, name, version, address, chain_id, publisher, audited, active, config_schema, description, created_at
		FROM contract_masters
		WHERE module_type = $1 AND version = $2 AND chain_id = $3
	`, entry.ModuleType, entry.Version, entry.ChainID)
	if err != nil {
		return module.RegistryEntry{}, mapErr(err)
	}
	return row.toEntry()
}

func (s *RegistryStore) GetRegistryEntry(ctx context.Context, id string) (module.RegistryEntry, error) {
	var row registryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, module_type, name, version, address, chain_id, publisher, audited, active, config_schema, description, created_at
		FROM contract_masters
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return module.RegistryEntry{}, fmt.Errorf("registry entry %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return module.RegistryEntry{}, err
	}
	return row.toEntry()
}

func (s *RegistryStore) ListRegistryEntries(ctx context.Context, filter storage.RegistryFilter) ([]module.RegistryEntry, error) {
	var rows []registryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, module_type, name, version, address, chain_id, publisher, audited, active, config_schema, description, created_at
		FROM contract_masters
		WHERE ($1 = '' OR module_type = $1)
		  AND ($2 = '' OR lower(publisher) = lower($2))
		  AND ($3 = '' OR chain_id = $3)
		  AND (NOT $4 OR audited)
		  AND (NOT $5 OR active)
		  AND ($6 = '' OR name ILIKE '%' || $6 || '%' OR description ILIKE '%' || $6 || '%')
		ORDER BY module_type, version
	`, filter.ModuleType, filter.Publisher, filter.ChainID, filter.AuditedOnly, filter.ActiveOnly, filter.Search)
	if err != nil {
		return nil, err
	}

	result := make([]module.RegistryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *RegistryStore) ListModuleVersions(ctx context.Context, moduleType string) ([]module.RegistryEntry, error) {
	var rows []registryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, module_type, name, version, address, chain_id, publisher, audited, active, config_schema, description, created_at
		FROM contract_masters
		WHERE module_type = $1
		ORDER BY created_at DESC
	`, moduleType)
	if err != nil {
		return nil, err
	}

	result := make([]module.RegistryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

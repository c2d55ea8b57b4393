package storage

import (
	"context"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
)

// OperationFilter narrows operation log listings.
type OperationFilter struct {
	Operation operation.Type
	Status    operation.Status
	Limit     int
}

// RegistryFilter narrows registry listings.
type RegistryFilter struct {
	ModuleType  string
	Publisher   string
	ChainID     string
	AuditedOnly bool
	ActiveOnly  bool
	Search      string
}

// TokenStore persists token master records.
type TokenStore interface {
	CreateToken(ctx context.Context, tok token.Token) (token.Token, error)
	UpdateToken(ctx context.Context, tok token.Token) (token.Token, error)
	GetToken(ctx context.Context, id string) (token.Token, error)
	ListTokens(ctx context.Context, projectID string) ([]token.Token, error)
}

// PropertiesStore persists per-standard token property records.
type PropertiesStore interface {
	UpsertProperties(ctx context.Context, rec token.PropertiesRecord) (token.PropertiesRecord, error)
	GetProperties(ctx context.Context, tokenID string, recordIndex int) (token.PropertiesRecord, error)
	ListProperties(ctx context.Context, tokenID string) ([]token.PropertiesRecord, error)
	SetPropertyField(ctx context.Context, tokenID string, recordIndex int, field string, value interface{}) (token.PropertiesRecord, error)
}

// OperationStore persists the append-only operation log.
type OperationStore interface {
	CreateOperation(ctx context.Context, rec operation.Record) (operation.Record, error)
	UpdateOperationStatus(ctx context.Context, id string, status operation.Status, message string) (operation.Record, error)
	GetOperation(ctx context.Context, id string) (operation.Record, error)
	ListOperations(ctx context.Context, tokenID string, filter OperationFilter) ([]operation.Record, error)
	ListOperationsByStatus(ctx context.Context, status operation.Status, limit int) ([]operation.Record, error)
}

// ModuleStore persists module attachment rows.
type ModuleStore interface {
	CreateAttachment(ctx context.Context, att module.Attachment) (module.Attachment, error)
	UpdateAttachment(ctx context.Context, att module.Attachment) (module.Attachment, error)
	GetAttachment(ctx context.Context, id string) (module.Attachment, error)
	GetActiveAttachment(ctx context.Context, tokenID, moduleType string) (module.Attachment, error)
	ListAttachments(ctx context.Context, tokenID string) ([]module.Attachment, error)

	// ReplaceActiveAttachment atomically deactivates the active attachment for
	// the token and module type, if any, and inserts next as the new active
	// row. At most one row per token and module type is ever active.
	ReplaceActiveAttachment(ctx context.Context, next module.Attachment) (module.Attachment, error)
}

// RegistryStore reads and seeds the module contracts registry.
type RegistryStore interface {
	UpsertRegistryEntry(ctx context.Context, entry module.RegistryEntry) (module.RegistryEntry, error)
	GetRegistryEntry(ctx context.Context, id string) (module.RegistryEntry, error)
	ListRegistryEntries(ctx context.Context, filter RegistryFilter) ([]module.RegistryEntry, error)
	ListModuleVersions(ctx context.Context, moduleType string) ([]module.RegistryEntry, error)
}

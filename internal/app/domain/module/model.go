package module

import (
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
)

// Attachment associates a deployed module contract with a token. At most one
// attachment per token and module type is active at a time; upgrades
// deactivate the prior row before inserting the replacement.
type Attachment struct {
	ID            string
	ProjectID     string
	TokenID       string
	ModuleType    string
	ModuleAddress string
	Config        map[string]interface{}
	Active        bool
	AttachedAt    time.Time
	DetachedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegistryEntry is one published module version in the contracts registry.
type RegistryEntry struct {
	ID           string
	ModuleType   string
	Name         string
	Version      string
	Address      string
	ChainID      string
	Publisher    string
	Audited      bool
	Active       bool
	ConfigSchema schema.Schema
	Description  string
	CreatedAt    time.Time
}

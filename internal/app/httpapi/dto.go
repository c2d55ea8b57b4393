package httpapi

import (
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/workflow"
)

type tokenDTO struct {
	ID               string            `json:"id"`
	ProjectID        string            `json:"project_id"`
	Standard         string            `json:"standard"`
	Name             string            `json:"name"`
	Symbol           string            `json:"symbol"`
	Decimals         int               `json:"decimals"`
	TotalSupply      string            `json:"total_supply"`
	MaxSupply        string            `json:"max_supply"`
	Address          string            `json:"address,omitempty"`
	ChainID          string            `json:"chain_id,omitempty"`
	DeploymentStatus string            `json:"deployment_status"`
	Paused           bool              `json:"paused"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func tokenDTOFrom(t token.Token) tokenDTO {
	return tokenDTO{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		Standard:         string(t.Standard),
		Name:             t.Name,
		Symbol:           t.Symbol,
		Decimals:         t.Decimals,
		TotalSupply:      t.TotalSupply,
		MaxSupply:        t.MaxSupply,
		Address:          t.Address,
		ChainID:          t.ChainID,
		DeploymentStatus: string(t.DeploymentStatus),
		Paused:           t.Paused,
		Metadata:         t.Metadata,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

type propertiesDTO struct {
	ID          string                 `json:"id"`
	TokenID     string                 `json:"token_id"`
	Standard    string                 `json:"standard"`
	RecordIndex int                    `json:"record_index"`
	Fields      map[string]interface{} `json:"fields"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func propertiesDTOFrom(rec token.PropertiesRecord) propertiesDTO {
	return propertiesDTO{
		ID:          rec.ID,
		TokenID:     rec.TokenID,
		Standard:    string(rec.Standard),
		RecordIndex: rec.RecordIndex,
		Fields:      rec.Fields,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type operationDTO struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"project_id"`
	TokenID         string            `json:"token_id"`
	Operation       string            `json:"operation"`
	Initiator       string            `json:"initiator,omitempty"`
	Target          string            `json:"target,omitempty"`
	Amount          string            `json:"amount,omitempty"`
	Partition       string            `json:"partition,omitempty"`
	Role            string            `json:"role,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	TransactionHash string            `json:"transaction_hash,omitempty"`
	NonceUsed       int64             `json:"nonce_used,omitempty"`
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func operationDTOFrom(rec operation.Record) operationDTO {
	return operationDTO{
		ID:              rec.ID,
		ProjectID:       rec.ProjectID,
		TokenID:         rec.TokenID,
		Operation:       string(rec.Operation),
		Initiator:       rec.Initiator,
		Target:          rec.Target,
		Amount:          rec.Amount,
		Partition:       rec.Partition,
		Role:            rec.Role,
		Reason:          rec.Reason,
		TransactionHash: rec.TransactionHash,
		NonceUsed:       rec.NonceUsed,
		Status:          string(rec.Status),
		Message:         rec.Message,
		Metadata:        rec.Metadata,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

type attachmentDTO struct {
	ID            string                 `json:"id"`
	ProjectID     string                 `json:"project_id"`
	TokenID       string                 `json:"token_id"`
	ModuleType    string                 `json:"module_type"`
	ModuleAddress string                 `json:"module_address"`
	Config        map[string]interface{} `json:"config,omitempty"`
	Active        bool                   `json:"active"`
	AttachedAt    time.Time              `json:"attached_at"`
	DetachedAt    *time.Time             `json:"detached_at,omitempty"`
}

func attachmentDTOFrom(att module.Attachment) attachmentDTO {
	dto := attachmentDTO{
		ID:            att.ID,
		ProjectID:     att.ProjectID,
		TokenID:       att.TokenID,
		ModuleType:    att.ModuleType,
		ModuleAddress: att.ModuleAddress,
		Config:        att.Config,
		Active:        att.Active,
		AttachedAt:    att.AttachedAt,
	}
	if !att.DetachedAt.IsZero() {
		detached := att.DetachedAt
		dto.DetachedAt = &detached
	}
	return dto
}

type registryDTO struct {
	ID          string    `json:"id"`
	ModuleType  string    `json:"module_type"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Address     string    `json:"address"`
	ChainID     string    `json:"chain_id,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Audited     bool      `json:"audited"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func registryDTOsFrom(entries []module.RegistryEntry) []registryDTO {
	out := make([]registryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, registryDTO{
			ID:          e.ID,
			ModuleType:  e.ModuleType,
			Name:        e.Name,
			Version:     e.Version,
			Address:     e.Address,
			ChainID:     e.ChainID,
			Publisher:   e.Publisher,
			Audited:     e.Audited,
			Active:      e.Active,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

type sessionDTO struct {
	SessionID string            `json:"session_id"`
	ProjectID string            `json:"project_id"`
	TokenID   string            `json:"token_id"`
	Operation string            `json:"operation"`
	CreatedAt time.Time         `json:"created_at"`
	Snapshot  workflow.Snapshot `json:"snapshot"`
}

func sessionDTOFrom(s *workflow.Session) sessionDTO {
	return sessionDTO{
		SessionID: s.ID,
		ProjectID: s.ProjectID,
		TokenID:   s.TokenID,
		Operation: string(s.Operation),
		CreatedAt: s.CreatedAt,
		Snapshot:  s.Instance.Snapshot(),
	}
}

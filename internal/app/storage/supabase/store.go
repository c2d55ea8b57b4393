// Package supabase implements the storage interfaces over the Supabase
// PostgREST API. Token property records live in the legacy per-standard
// tables (token_erc20_properties, ...) carried over from the hosted schema.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/supabase/client"
)

// Store talks to Supabase through the PostgREST client.
type Store struct {
	client *client.Client
}

var _ storage.TokenStore = (*Store)(nil)
var _ storage.PropertiesStore = (*Store)(nil)
var _ storage.OperationStore = (*Store)(nil)
var _ storage.ModuleStore = (*Store)(nil)
var _ storage.RegistryStore = (*Store)(nil)

// New wraps a configured Supabase client.
func New(c *client.Client) *Store {
	return &Store{client: c}
}

// propertiesTable maps a token standard onto its legacy table.
func propertiesTable(std token.Standard) string {
	return fmt.Sprintf("token_%s_properties", std)
}

// --- row types --------------------------------------------------------------

type tokenRow struct {
	ID               string            `json:"id"`
	ProjectID        string            `json:"project_id"`
	Standard         string            `json:"standard"`
	Name             string            `json:"name"`
	Symbol           string            `json:"symbol"`
	Decimals         int               `json:"decimals"`
	TotalSupply      string            `json:"total_supply"`
	MaxSupply        string            `json:"max_supply"`
	Address          string            `json:"address"`
	ChainID          string            `json:"chain_id"`
	DeploymentStatus string            `json:"deployment_status"`
	Paused           bool              `json:"paused"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func fromToken(tok token.Token) tokenRow {
	return tokenRow{
		ID:               tok.ID,
		ProjectID:        tok.ProjectID,
		Standard:         string(tok.Standard),
		Name:             tok.Name,
		Symbol:           tok.Symbol,
		Decimals:         tok.Decimals,
		TotalSupply:      tok.TotalSupply,
		MaxSupply:        tok.MaxSupply,
		Address:          tok.Address,
		ChainID:          tok.ChainID,
		DeploymentStatus: string(tok.DeploymentStatus),
		Paused:           tok.Paused,
		Metadata:         tok.Metadata,
		CreatedAt:        tok.CreatedAt,
		UpdatedAt:        tok.UpdatedAt,
	}
}

func (r tokenRow) toToken() token.Token {
	return token.Token{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		Standard:         token.Standard(r.Standard),
		Name:             r.Name,
		Symbol:           r.Symbol,
		Decimals:         r.Decimals,
		TotalSupply:      r.TotalSupply,
		MaxSupply:        r.MaxSupply,
		Address:          r.Address,
		ChainID:          r.ChainID,
		DeploymentStatus: token.DeploymentStatus(r.DeploymentStatus),
		Paused:           r.Paused,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type propertiesRow struct {
	ID          string                 `json:"id"`
	TokenID     string                 `json:"token_id"`
	RecordIndex int                    `json:"record_index"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type operationRow struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"project_id"`
	TokenID         string            `json:"token_id"`
	Operation       string            `json:"operation"`
	Initiator       string            `json:"initiator"`
	Target          string            `json:"target"`
	Amount          string            `json:"amount"`
	Partition       string            `json:"partition"`
	Role            string            `json:"role"`
	Reason          string            `json:"reason"`
	TransactionHash string            `json:"transaction_hash"`
	NonceUsed       int64             `json:"nonce_used"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func fromOperation(rec operation.Record) operationRow {
	return operationRow{
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

func (r operationRow) toOperation() operation.Record {
	return operation.Record{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		TokenID:         r.TokenID,
		Operation:       operation.Type(r.Operation),
		Initiator:       r.Initiator,
		Target:          r.Target,
		Amount:          r.Amount,
		Partition:       r.Partition,
		Role:            r.Role,
		Reason:          r.Reason,
		TransactionHash: r.TransactionHash,
		NonceUsed:       r.NonceUsed,
		Status:          operation.Status(r.Status),
		Message:         r.Message,
		Metadata:        r.Metadata,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type attachmentRow struct {
	ID            string                 `json:"id"`
	ProjectID     string                 `json:"project_id"`
	TokenID       string                 `json:"token_id"`
	ModuleType    string                 `json:"module_type"`
	ModuleAddress string                 `json:"module_address"`
	Config        map[string]interface{} `json:"config,omitempty"`
	Active        bool                   `json:"active"`
	AttachedAt    time.Time              `json:"attached_at"`
	DetachedAt    *time.Time             `json:"detached_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func fromAttachment(att module.Attachment) attachmentRow {
	row := attachmentRow{
		ID:            att.ID,
		ProjectID:     att.ProjectID,
		TokenID:       att.TokenID,
		ModuleType:    att.ModuleType,
		ModuleAddress: att.ModuleAddress,
		Config:        att.Config,
		Active:        att.Active,
		AttachedAt:    att.AttachedAt,
		CreatedAt:     att.CreatedAt,
		UpdatedAt:     att.UpdatedAt,
	}
	if !att.DetachedAt.IsZero() {
		detached := att.DetachedAt
		row.DetachedAt = &detached
	}
	return row
}

func (r attachmentRow) toAttachment() module.Attachment {
	att := module.Attachment{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		TokenID:       r.TokenID,
		ModuleType:    r.ModuleType,
		ModuleAddress: r.ModuleAddress,
		Config:        r.Config,
		Active:        r.Active,
		AttachedAt:    r.AttachedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.DetachedAt != nil {
		att.DetachedAt = *r.DetachedAt
	}
	return att
}

type registryRow struct {
	ID           string          `json:"id"`
	ModuleType   string          `json:"module_type"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Address      string          `json:"address"`
	ChainID      string          `json:"chain_id"`
	Publisher    string          `json:"publisher"`
	Audited      bool            `json:"audited"`
	Active       bool            `json:"active"`
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
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
		Description: r.Description,
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

// --- TokenStore -------------------------------------------------------------

func (s *Store) CreateToken(ctx context.Context, tok token.Token) (token.Token, error) {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tok.CreatedAt = now
	tok.UpdatedAt = now

	resp, err := s.client.From("tokens").ExecuteInsert(ctx, fromToken(tok))
	if err != nil {
		return token.Token{}, err
	}
	if err := resp.Error(); err != nil {
		if resp.StatusCode == 409 {
			return token.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrDuplicateKey)
		}
		return token.Token{}, err
	}
	return tok, nil
}

func (s *Store) UpdateToken(ctx context.Context, tok token.Token) (token.Token, error) {
	existing, err := s.GetToken(ctx, tok.ID)
	if err != nil {
		return token.Token{}, err
	}

	tok.ProjectID = existing.ProjectID
	tok.CreatedAt = existing.CreatedAt
	tok.UpdatedAt = time.Now().UTC()

	resp, err := s.client.From("tokens").Eq("id", tok.ID).ExecuteUpdate(ctx, fromToken(tok))
	if err != nil {
		return token.Token{}, err
	}
	if err := resp.Error(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (token.Token, error) {
	resp, err := s.client.From("tokens").Select("*").Eq("id", id).Single().Execute(ctx)
	if err != nil {
		return token.Token{}, err
	}
	if resp.NotFound() {
		return token.Token{}, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return token.Token{}, err
	}

	var row tokenRow
	if err := resp.JSON(&row); err != nil {
		return token.Token{}, err
	}
	return row.toToken(), nil
}

func (s *Store) ListTokens(ctx context.Context, projectID string) ([]token.Token, error) {
	q := s.client.From("tokens").Select("*").Order("created_at", true)
	if projectID != "" {
		q = q.Eq("project_id", projectID)
	}
	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []tokenRow
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	result := make([]token.Token, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toToken())
	}
	return result, nil
}

// --- PropertiesStore --------------------------------------------------------

func (s *Store) UpsertProperties(ctx context.Context, rec token.PropertiesRecord) (token.PropertiesRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	row := propertiesRow{
		ID:          rec.ID,
		TokenID:     rec.TokenID,
		RecordIndex: rec.RecordIndex,
		Fields:      rec.Fields,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	resp, err := s.client.From(propertiesTable(rec.Standard)).
		Upsert("token_id,record_index").
		ExecuteInsert(ctx, row)
	if err != nil {
		return token.PropertiesRecord{}, err
	}
	if err := resp.Error(); err != nil {
		return token.PropertiesRecord{}, err
	}
	return s.GetProperties(ctx, rec.TokenID, rec.RecordIndex)
}

// standardForToken resolves a token's standard so property calls can address
// the right legacy table.
func (s *Store) standardForToken(ctx context.Context, tokenID string) (token.Standard, error) {
	tok, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return tok.Standard, nil
}

func (s *Store) GetProperties(ctx context.Context, tokenID string, recordIndex int) (token.PropertiesRecord, error) {
	std, err := s.standardForToken(ctx, tokenID)
	if err != nil {
		return token.PropertiesRecord{}, err
	}

	resp, err := s.client.From(propertiesTable(std)).
		Select("*").
		Eq("token_id", tokenID).
		Eq("record_index", recordIndex).
		Single().
		Execute(ctx)
	if err != nil {
		return token.PropertiesRecord{}, err
	}
	if resp.NotFound() {
		return token.PropertiesRecord{}, fmt.Errorf("properties for token %s record %d: %w", tokenID, recordIndex, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return token.PropertiesRecord{}, err
	}

	var row propertiesRow
	if err := resp.JSON(&row); err != nil {
		return token.PropertiesRecord{}, err
	}
	return token.PropertiesRecord{
		ID:          row.ID,
		TokenID:     row.TokenID,
		Standard:    std,
		RecordIndex: row.RecordIndex,
		Fields:      row.Fields,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (s *Store) ListProperties(ctx context.Context, tokenID string) ([]token.PropertiesRecord, error) {
	std, err := s.standardForToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.From(propertiesTable(std)).
		Select("*").
		Eq("token_id", tokenID).
		Order("record_index", true).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []propertiesRow
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	result := make([]token.PropertiesRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, token.PropertiesRecord{
			ID:          row.ID,
			TokenID:     row.TokenID,
			Standard:    std,
			RecordIndex: row.RecordIndex,
			Fields:      row.Fields,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return result, nil
}

func (s *Store) SetPropertyField(ctx context.Context, tokenID string, recordIndex int, field string, value interface{}) (token.PropertiesRecord, error) {
	rec, err := s.GetProperties(ctx, tokenID, recordIndex)
	if err != nil {
		return token.PropertiesRecord{}, err
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]interface{})
	}
	rec.Fields[field] = value

	resp, err := s.client.From(propertiesTable(rec.Standard)).
		Eq("token_id", tokenID).
		Eq("record_index", recordIndex).
		ExecuteUpdate(ctx, map[string]interface{}{
			"fields":     rec.Fields,
			"updated_at": time.Now().UTC(),
		})
	if err != nil {
		return token.PropertiesRecord{}, err
	}
	if err := resp.Error(); err != nil {
		return token.PropertiesRecord{}, err
	}
	return s.GetProperties(ctx, tokenID, recordIndex)
}

// --- OperationStore ---------------------------------------------------------

func (s *Store) CreateOperation(ctx context.Context, rec operation.Record) (operation.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	resp, err := s.client.From("token_operations").ExecuteInsert(ctx, fromOperation(rec))
	if err != nil {
		return operation.Record{}, err
	}
	if err := resp.Error(); err != nil {
		if resp.StatusCode == 409 {
			return operation.Record{}, fmt.Errorf("operation %s: %w", rec.ID, storage.ErrDuplicateKey)
		}
		return operation.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateOperationStatus(ctx context.Context, id string, status operation.Status, message string) (operation.Record, error) {
	resp, err := s.client.From("token_operations").Eq("id", id).ExecuteUpdate(ctx, map[string]interface{}{
		"status":     string(status),
		"message":    message,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return operation.Record{}, err
	}
	if err := resp.Error(); err != nil {
		return operation.Record{}, err
	}

	var rows []operationRow
	if err := resp.JSON(&rows); err != nil {
		return operation.Record{}, err
	}
	if len(rows) == 0 {
		return operation.Record{}, fmt.Errorf("operation %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toOperation(), nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (operation.Record, error) {
	resp, err := s.client.From("token_operations").Select("*").Eq("id", id).Single().Execute(ctx)
	if err != nil {
		return operation.Record{}, err
	}
	if resp.NotFound() {
		return operation.Record{}, fmt.Errorf("operation %s: %w", id, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return operation.Record{}, err
	}

	var row operationRow
	if err := resp.JSON(&row); err != nil {
		return operation.Record{}, err
	}
	return row.toOperation(), nil
}

func (s *Store) ListOperations(ctx context.Context, tokenID string, filter storage.OperationFilter) ([]operation.Record, error) {
	q := s.client.From("token_operations").Select("*").Order("created_at", false)
	if tokenID != "" {
		q = q.Eq("token_id", tokenID)
	}
	if filter.Operation != "" {
		q = q.Eq("operation", string(filter.Operation))
	}
	if filter.Status != "" {
		q = q.Eq("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []operationRow
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	result := make([]operation.Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toOperation())
	}
	return result, nil
}

func (s *Store) ListOperationsByStatus(ctx context.Context, status operation.Status, limit int) ([]operation.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	resp, err := s.client.From("token_operations").
		Select("*").
		Eq("status", string(status)).
		Order("created_at", true).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []operationRow
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	result := make([]operation.Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toOperation())
	}
	return result, nil
}

// --- ModuleStore ------------------------------------------------------------

func (s *Store) CreateAttachment(ctx context.Context, att module.Attachment) (module.Attachment, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	att.CreatedAt = now
	att.UpdatedAt = now
	if att.AttachedAt.IsZero() {
		att.AttachedAt = now
	}

	resp, err := s.client.From("token_modules").ExecuteInsert(ctx, fromAttachment(att))
	if err != nil {
		return module.Attachment{}, err
	}
	if err := resp.Error(); err != nil {
		if resp.StatusCode == 409 {
			return module.Attachment{}, fmt.Errorf("attachment %s: %w", att.ID, storage.ErrDuplicateKey)
		}
		return module.Attachment{}, err
	}
	return att, nil
}

func (s *Store) UpdateAttachment(ctx context.Context, att module.Attachment) (module.Attachment, error) {
	existing, err := s.GetAttachment(ctx, att.ID)
	if err != nil {
		return module.Attachment{}, err
	}

	att.ProjectID = existing.ProjectID
	att.TokenID = existing.TokenID
	att.CreatedAt = existing.CreatedAt
	if att.AttachedAt.IsZero() {
		att.AttachedAt = existing.AttachedAt
	}
	att.UpdatedAt = time.Now().UTC()

	resp, err := s.client.From("token_modules").Eq("id", att.ID).ExecuteUpdate(ctx, fromAttachment(att))
	if err != nil {
		return module.Attachment{}, err
	}
	if err := resp.Error(); err != nil {
		return module.Attachment{}, err
	}
	return att, nil
}

func (s *Store) GetAttachment(ctx context.Context, id string) (module.Attachment, error) {
	resp, err := s.client.From("token_modules").Select("*").Eq("id", id).Single().Execute(ctx)
	if err != nil {
		return module.Attachment{}, err
	}
	if resp.NotFound() {
		return module.Attachment{}, fmt.Errorf("attachment %s: %w", id, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return module.Attachment{}, err
	}

	var row attachmentRow
	if err := resp.JSON(&row); err != nil {
		return module.Attachment{}, err
	}
	return row.toAttachment(), nil
}

func (s *Store) GetActiveAttachment(ctx context.Context, tokenID, moduleType string) (module.Attachment, error) {
	resp, err := s.client.From("token_modules").
		Select("*").
		Eq("token_id", tokenID).
		Eq("module_type", moduleType).
		Is("active", true).
		Single().
		Execute(ctx)
	if err != nil {
		return module.Attachment{}, err
	}
	if resp.NotFound() {
		return module.Attachment{}, fmt.Errorf("active %s attachment for token %s: %w", moduleType, tokenID, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return module.Attachment{}, err
	}

	var row attachmentRow
	if err := resp.JSON(&row); err != nil {
		return module.Attachment{}, err
	}
	return row.toAttachment(), nil
}

func (s *Store) ListAttachments(ctx context.Context, tokenID string) ([]module.Attachment, error) {
	q := s.client.From("token_modules").Select("*").Order("created_at", true)
	if tokenID != "" {
		q = q.Eq("token_id", tokenID)
	}
	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []attachmentRow
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	result := make([]module.Attachment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toAttachment())
	}
	return result, nil
}

// ReplaceActiveAttachment delegates the deactivate-and-insert step to a
// database function so the swap stays atomic on the PostgREST path.
func (s *Store) ReplaceActiveAttachment(ctx context.Context, next module.Attachment) (module.Attachment, error) {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.Active = true
	now := time.Now().UTC()
	next.CreatedAt = now
	next.UpdatedAt = now
	if next.AttachedAt.IsZero() {
		next.AttachedAt = now
	}

	resp, err := s.client.RPC(ctx, "replace_active_token_module", map[string]interface{}{
		"attachment": fromAttachment(next),
	})
	if err != nil {
		return module.Attachment{}, err
	}
	if err := resp.Error(); err != nil {
		return module.Attachment{}, err
	}
	return next, nil
}

// --- RegistryStore ----------------------------------------------------------

func (s *Store) UpsertRegistryEntry(ctx context.Context, entry module.RegistryEntry) (module.RegistryEntry, error) {
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
	row := registryRow{
		ID:           entry.ID,
		ModuleType:   entry.ModuleType,
		Name:         entry.Name,
		Version:      entry.Version,
		Address:      entry.Address,
		ChainID:      entry.ChainID,
		Publisher:    entry.Publisher,
		Audited:      entry.Audited,
		Active:       entry.Active,
		ConfigSchema: schemaJSON,
		Description:  entry.Description,
		CreatedAt:    entry.CreatedAt,
	}

	resp, err := s.client.From("contract_masters").
		Upsert("module_type,version,chain_id").
		ExecuteInsert(ctx, row)
	if err != nil {
		return module.RegistryEntry{}, err
	}
	if err := resp.Error(); err != nil {
		return module.RegistryEntry{}, err
	}

	var rows []registryRow
	if err := resp.JSON(&rows); err != nil {
		return module.RegistryEntry{}, err
	}
	if len(rows) > 0 {
		return rows[0].toEntry()
	}
	return entry, nil
}

func (s *Store) GetRegistryEntry(ctx context.Context, id string) (module.RegistryEntry, error) {
	resp, err := s.client.From("contract_masters").Select("*").Eq("id", id).Single().Execute(ctx)
	if err != nil {
		return module.RegistryEntry{}, err
	}
	if resp.NotFound() {
		return module.RegistryEntry{}, fmt.Errorf("registry entry %s: %w", id, storage.ErrNotFound)
	}
	if err := resp.Error(); err != nil {
		return module.RegistryEntry{}, err
	}

	var row registryRow
	if err := resp.JSON(&row); err != nil {
		return module.RegistryEntry{}, err
	}
	return row.toEntry()
}

func (s *Store) ListRegistryEntries(ctx context.Context, filter storage.RegistryFilter) ([]module.RegistryEntry, error) {
	q := s.client.From("contract_masters").Select("*").Order("module_type", true).Order("version", true)
	if filter.ModuleType != "" {
		q = q.Eq("module_type", filter.ModuleType)
	}
	if filter.Publisher != "" {
		q = q.ILike("publisher", filter.Publisher)
	}
	if filter.ChainID != "" {
		q = q.Eq("chain_id", filter.ChainID)
	}
	if filter.AuditedOnly {
		q = q.Is("audited", true)
	}
	if filter.ActiveOnly {
		q = q.Is("active", true)
	}
	if filter.Search != "" {
		q = q.ILike("name", "*"+filter.Search+"*")
	}

	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []registryRow
	if err := resp.JSON(&rows); err != nil {
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

func (s *Store) ListModuleVersions(ctx context.Context, moduleType string) ([]module.RegistryEntry, error) {
	resp, err := s.client.From("contract_masters").
		Select("*").
		Eq("module_type", moduleType).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var rows []registryRow
	if err := resp.JSON(&rows); err != nil {
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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.TokenStore = (*Store)(nil)
var _ storage.PropertiesStore = (*Store)(nil)
var _ storage.OperationStore = (*Store)(nil)
var _ storage.ModuleStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// mapErr translates driver errors into the package sentinels so callers never
// depend on database/sql or lib/pq directly.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w", storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", pqErr.Constraint, storage.ErrDuplicateKey)
	}
	return err
}

// --- TokenStore -------------------------------------------------------------

func (s *Store) CreateToken(ctx context.Context, tok token.Token) (token.Token, error) {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tok.CreatedAt = now
	tok.UpdatedAt = now

	metadataJSON, err := json.Marshal(tok.Metadata)
	if err != nil {
		return token.Token{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, project_id, standard, name, symbol, decimals, total_supply, max_supply, address, chain_id, deployment_status, paused, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, tok.ID, tok.ProjectID, tok.Standard, tok.Name, tok.Symbol, tok.Decimals, tok.TotalSupply, tok.MaxSupply,
		tok.Address, tok.ChainID, tok.DeploymentStatus, tok.Paused, metadataJSON, tok.CreatedAt, tok.UpdatedAt)
	if err != nil {
		return token.Token{}, mapErr(err)
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

	metadataJSON, err := json.Marshal(tok.Metadata)
	if err != nil {
		return token.Token{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tokens
		SET standard = $2, name = $3, symbol = $4, decimals = $5, total_supply = $6, max_supply = $7,
		    address = $8, chain_id = $9, deployment_status = $10, paused = $11, metadata = $12, updated_at = $13
		WHERE id = $1
	`, tok.ID, tok.Standard, tok.Name, tok.Symbol, tok.Decimals, tok.TotalSupply, tok.MaxSupply,
		tok.Address, tok.ChainID, tok.DeploymentStatus, tok.Paused, metadataJSON, tok.UpdatedAt)
	if err != nil {
		return token.Token{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return token.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrNotFound)
	}
	return tok, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (token.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, standard, name, symbol, decimals, total_supply, max_supply, address, chain_id, deployment_status, paused, metadata, created_at, updated_at
		FROM tokens
		WHERE id = $1
	`, id)

	tok, err := scanToken(row)
	if err != nil {
		return token.Token{}, mapErr(err)
	}
	return tok, nil
}

func (s *Store) ListTokens(ctx context.Context, projectID string) ([]token.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, standard, name, symbol, decimals, total_supply, max_supply, address, chain_id, deployment_status, paused, metadata, created_at, updated_at
		FROM tokens
		WHERE $1 = '' OR project_id = $1
		ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []token.Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tok)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (token.Token, error) {
	var (
		tok         token.Token
		metadataRaw []byte
	)
	if err := row.Scan(&tok.ID, &tok.ProjectID, &tok.Standard, &tok.Name, &tok.Symbol, &tok.Decimals,
		&tok.TotalSupply, &tok.MaxSupply, &tok.Address, &tok.ChainID, &tok.DeploymentStatus, &tok.Paused,
		&metadataRaw, &tok.CreatedAt, &tok.UpdatedAt); err != nil {
		return token.Token{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &tok.Metadata)
	}
	return tok, nil
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

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return token.PropertiesRecord{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_properties (id, token_id, standard, record_index, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token_id, record_index)
		DO UPDATE SET standard = EXCLUDED.standard, fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.TokenID, rec.Standard, rec.RecordIndex, fieldsJSON, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return token.PropertiesRecord{}, mapErr(err)
	}
	return s.GetProperties(ctx, rec.TokenID, rec.RecordIndex)
}

func (s *Store) GetProperties(ctx context.Context, tokenID string, recordIndex int) (token.PropertiesRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_id, standard, record_index, fields, created_at, updated_at
		FROM token_properties
		WHERE token_id = $1 AND record_index = $2
	`, tokenID, recordIndex)

	rec, err := scanProperties(row)
	if err != nil {
		return token.PropertiesRecord{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) ListProperties(ctx context.Context, tokenID string) ([]token.PropertiesRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token_id, standard, record_index, fields, created_at, updated_at
		FROM token_properties
		WHERE token_id = $1
		ORDER BY record_index
	`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []token.PropertiesRecord
	for rows.Next() {
		rec, err := scanProperties(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) SetPropertyField(ctx context.Context, tokenID string, recordIndex int, field string, value interface{}) (token.PropertiesRecord, error) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return token.PropertiesRecord{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE token_properties
		SET fields = jsonb_set(COALESCE(fields, '{}'::jsonb), $3, $4, true), updated_at = $5
		WHERE token_id = $1 AND record_index = $2
	`, tokenID, recordIndex, pq.Array([]string{field}), valueJSON, time.Now().UTC())
	if err != nil {
		return token.PropertiesRecord{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return token.PropertiesRecord{}, fmt.Errorf("properties for token %s record %d: %w", tokenID, recordIndex, storage.ErrNotFound)
	}
	return s.GetProperties(ctx, tokenID, recordIndex)
}

func scanProperties(row rowScanner) (token.PropertiesRecord, error) {
	var (
		rec       token.PropertiesRecord
		fieldsRaw []byte
	)
	if err := row.Scan(&rec.ID, &rec.TokenID, &rec.Standard, &rec.RecordIndex, &fieldsRaw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return token.PropertiesRecord{}, err
	}
	if len(fieldsRaw) > 0 {
		_ = json.Unmarshal(fieldsRaw, &rec.Fields)
	}
	return rec, nil
}

// --- OperationStore ---------------------------------------------------------

func (s *Store) CreateOperation(ctx context.Context, rec operation.Record) (operation.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return operation.Record{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_operations (id, project_id, token_id, operation, initiator, target, amount, partition, role, reason, transaction_hash, nonce_used, status, message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, rec.ID, rec.ProjectID, rec.TokenID, rec.Operation, rec.Initiator, rec.Target, rec.Amount, rec.Partition,
		rec.Role, rec.Reason, rec.TransactionHash, rec.NonceUsed, rec.Status, rec.Message, metadataJSON,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return operation.Record{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) UpdateOperationStatus(ctx context.Context, id string, status operation.Status, message string) (operation.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE token_operations
		SET status = $2, message = $3, updated_at = $4
		WHERE id = $1
	`, id, status, message, time.Now().UTC())
	if err != nil {
		return operation.Record{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return operation.Record{}, fmt.Errorf("operation %s: %w", id, storage.ErrNotFound)
	}
	return s.GetOperation(ctx, id)
}

func (s *Store) GetOperation(ctx context.Context, id string) (operation.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, token_id, operation, initiator, target, amount, partition, role, reason, transaction_hash, nonce_used, status, message, metadata, created_at, updated_at
		FROM token_operations
		WHERE id = $1
	`, id)

	rec, err := scanOperation(row)
	if err != nil {
		return operation.Record{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) ListOperations(ctx context.Context, tokenID string, filter storage.OperationFilter) ([]operation.Record, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, project_id, token_id, operation, initiator, target, amount, partition, role, reason, transaction_hash, nonce_used, status, message, metadata, created_at, updated_at
		FROM token_operations
		WHERE ($1 = '' OR token_id = $1)
		  AND ($2 = '' OR operation = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`)
	args := []interface{}{tokenID, string(filter.Operation), string(filter.Status)}
	if filter.Limit > 0 {
		query.WriteString(" LIMIT $4")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []operation.Record
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) ListOperationsByStatus(ctx context.Context, status operation.Status, limit int) ([]operation.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, token_id, operation, initiator, target, amount, partition, role, reason, transaction_hash, nonce_used, status, message, metadata, created_at, updated_at
		FROM token_operations
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []operation.Record
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanOperation(row rowScanner) (operation.Record, error) {
	var (
		rec         operation.Record
		metadataRaw []byte
	)
	if err := row.Scan(&rec.ID, &rec.ProjectID, &rec.TokenID, &rec.Operation, &rec.Initiator, &rec.Target,
		&rec.Amount, &rec.Partition, &rec.Role, &rec.Reason, &rec.TransactionHash, &rec.NonceUsed,
		&rec.Status, &rec.Message, &metadataRaw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return operation.Record{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &rec.Metadata)
	}
	return rec, nil
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

	configJSON, err := json.Marshal(att.Config)
	if err != nil {
		return module.Attachment{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_modules (id, project_id, token_id, module_type, module_address, config, active, attached_at, detached_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, att.ID, att.ProjectID, att.TokenID, att.ModuleType, att.ModuleAddress, configJSON, att.Active,
		att.AttachedAt, toNullTime(att.DetachedAt), att.CreatedAt, att.UpdatedAt)
	if err != nil {
		return module.Attachment{}, mapErr(err)
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

	configJSON, err := json.Marshal(att.Config)
	if err != nil {
		return module.Attachment{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE token_modules
		SET module_type = $2, module_address = $3, config = $4, active = $5, attached_at = $6, detached_at = $7, updated_at = $8
		WHERE id = $1
	`, att.ID, att.ModuleType, att.ModuleAddress, configJSON, att.Active, att.AttachedAt, toNullTime(att.DetachedAt), att.UpdatedAt)
	if err != nil {
		return module.Attachment{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return module.Attachment{}, fmt.Errorf("attachment %s: %w", att.ID, storage.ErrNotFound)
	}
	return att, nil
}

func (s *Store) GetAttachment(ctx context.Context, id string) (module.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, token_id, module_type, module_address, config, active, attached_at, detached_at, created_at, updated_at
		FROM token_modules
		WHERE id = $1
	`, id)

	att, err := scanAttachment(row)
	if err != nil {
		return module.Attachment{}, mapErr(err)
	}
	return att, nil
}

func (s *Store) GetActiveAttachment(ctx context.Context, tokenID, moduleType string) (module.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, token_id, module_type, module_address, config, active, attached_at, detached_at, created_at, updated_at
		FROM token_modules
		WHERE token_id = $1 AND module_type = $2 AND active
	`, tokenID, moduleType)

	att, err := scanAttachment(row)
	if err != nil {
		return module.Attachment{}, mapErr(err)
	}
	return att, nil
}

func (s *Store) ListAttachments(ctx context.Context, tokenID string) ([]module.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, token_id, module_type, module_address, config, active, attached_at, detached_at, created_at, updated_at
		FROM token_modules
		WHERE $1 = '' OR token_id = $1
		ORDER BY created_at
	`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []module.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}
	return result, rows.Err()
}

func (s *Store) ReplaceActiveAttachment(ctx context.Context, next module.Attachment) (module.Attachment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return module.Attachment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE token_modules
		SET active = false, detached_at = $3, updated_at = $3
		WHERE token_id = $1 AND module_type = $2 AND active
	`, next.TokenID, next.ModuleType, now); err != nil {
		return module.Attachment{}, mapErr(err)
	}

	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.Active = true
	next.CreatedAt = now
	next.UpdatedAt = now
	if next.AttachedAt.IsZero() {
		next.AttachedAt = now
	}

	configJSON, err := json.Marshal(next.Config)
	if err != nil {
		return module.Attachment{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_modules (id, project_id, token_id, module_type, module_address, config, active, attached_at, detached_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, next.ID, next.ProjectID, next.TokenID, next.ModuleType, next.ModuleAddress, configJSON, next.Active,
		next.AttachedAt, toNullTime(next.DetachedAt), next.CreatedAt, next.UpdatedAt); err != nil {
		return module.Attachment{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return module.Attachment{}, err
	}
	return next, nil
}

func scanAttachment(row rowScanner) (module.Attachment, error) {
	var (
		att        module.Attachment
		configRaw  []byte
		detachedAt sql.NullTime
	)
	if err := row.Scan(&att.ID, &att.ProjectID, &att.TokenID, &att.ModuleType, &att.ModuleAddress, &configRaw,
		&att.Active, &att.AttachedAt, &detachedAt, &att.CreatedAt, &att.UpdatedAt); err != nil {
		return module.Attachment{}, err
	}
	if len(configRaw) > 0 {
		_ = json.Unmarshal(configRaw, &att.Config)
	}
	if detachedAt.Valid {
		att.DetachedAt = detachedAt.Time.UTC()
	}
	return att, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

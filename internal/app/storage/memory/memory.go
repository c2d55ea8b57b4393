package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	nextID         int64
	tokens         map[string]token.Token
	properties     map[string]token.PropertiesRecord
	propertyIndex  map[string]string // tokenID/recordIndex -> properties ID
	operations     map[string]operation.Record
	operationOrder []string
	attachments    map[string]module.Attachment
	registry       map[string]module.RegistryEntry
}

var _ storage.TokenStore = (*Store)(nil)
var _ storage.PropertiesStore = (*Store)(nil)
var _ storage.OperationStore = (*Store)(nil)
var _ storage.ModuleStore = (*Store)(nil)
var _ storage.RegistryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		tokens:        make(map[string]token.Token),
		properties:    make(map[string]token.PropertiesRecord),
		propertyIndex: make(map[string]string),
		operations:    make(map[string]operation.Record),
		attachments:   make(map[string]module.Attachment),
		registry:      make(map[string]module.RegistryEntry),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func propertyKey(tokenID string, recordIndex int) string {
	return fmt.Sprintf("%s/%d", tokenID, recordIndex)
}

// TokenStore implementation ---------------------------------------------------

func (s *Store) CreateToken(_ context.Context, tok token.Token) (token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.ID == "" {
		tok.ID = s.nextIDLocked()
	} else if _, exists := s.tokens[tok.ID]; exists {
		return token.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrDuplicateKey)
	}

	now := time.Now().UTC()
	tok.CreatedAt = now
	tok.UpdatedAt = now
	tok.Metadata = cloneStringMap(tok.Metadata)

	s.tokens[tok.ID] = tok
	return cloneToken(tok), nil
}

func (s *Store) UpdateToken(_ context.Context, tok token.Token) (token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tokens[tok.ID]
	if !ok {
		return token.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrNotFound)
	}

	tok.CreatedAt = original.CreatedAt
	tok.UpdatedAt = time.Now().UTC()
	tok.Metadata = cloneStringMap(tok.Metadata)

	s.tokens[tok.ID] = tok
	return cloneToken(tok), nil
}

func (s *Store) GetToken(_ context.Context, id string) (token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[id]
	if !ok {
		return token.Token{}, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	return cloneToken(tok), nil
}

func (s *Store) ListTokens(_ context.Context, projectID string) ([]token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]token.Token, 0)
	for _, tok := range s.tokens {
		if projectID == "" || tok.ProjectID == projectID {
			result = append(result, cloneToken(tok))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// PropertiesStore implementation ----------------------------------------------

func (s *Store) UpsertProperties(_ context.Context, rec token.PropertiesRecord) (token.PropertiesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := propertyKey(rec.TokenID, rec.RecordIndex)

	if id, ok := s.propertyIndex[key]; ok {
		original := s.properties[id]
		rec.ID = original.ID
		rec.CreatedAt = original.CreatedAt
	} else {
		if rec.ID == "" {
			rec.ID = s.nextIDLocked()
		}
		rec.CreatedAt = now
		s.propertyIndex[key] = rec.ID
	}
	rec.UpdatedAt = now
	rec.Fields = cloneFieldMap(rec.Fields)

	s.properties[rec.ID] = rec
	return cloneProperties(rec), nil
}

func (s *Store) GetProperties(_ context.Context, tokenID string, recordIndex int) (token.PropertiesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.propertyIndex[propertyKey(tokenID, recordIndex)]
	if !ok {
		return token.PropertiesRecord{}, fmt.Errorf("properties for token %s record %d: %w", tokenID, recordIndex, storage.ErrNotFound)
	}
	return cloneProperties(s.properties[id]), nil
}

func (s *Store) ListProperties(_ context.Context, tokenID string) ([]token.PropertiesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]token.PropertiesRecord, 0)
	for _, rec := range s.properties {
		if rec.TokenID == tokenID {
			result = append(result, cloneProperties(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecordIndex < result[j].RecordIndex })
	return result, nil
}

func (s *Store) SetPropertyField(_ context.Context, tokenID string, recordIndex int, field string, value interface{}) (token.PropertiesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.propertyIndex[propertyKey(tokenID, recordIndex)]
	if !ok {
		return token.PropertiesRecord{}, fmt.Errorf("properties for token %s record %d: %w", tokenID, recordIndex, storage.ErrNotFound)
	}

	rec := s.properties[id]
	rec.Fields = cloneFieldMap(rec.Fields)
	if rec.Fields == nil {
		rec.Fields = make(map[string]interface{})
	}
	rec.Fields[field] = value
	rec.UpdatedAt = time.Now().UTC()

	s.properties[id] = rec
	return cloneProperties(rec), nil
}

// OperationStore implementation -----------------------------------------------

func (s *Store) CreateOperation(_ context.Context, rec operation.Record) (operation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	} else if _, exists := s.operations[rec.ID]; exists {
		return operation.Record{}, fmt.Errorf("operation %s: %w", rec.ID, storage.ErrDuplicateKey)
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Metadata = cloneStringMap(rec.Metadata)

	s.operations[rec.ID] = rec
	s.operationOrder = append(s.operationOrder, rec.ID)
	return cloneOperation(rec), nil
}

func (s *Store) UpdateOperationStatus(_ context.Context, id string, status operation.Status, message string) (operation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.operations[id]
	if !ok {
		return operation.Record{}, fmt.Errorf("operation %s: %w", id, storage.ErrNotFound)
	}

	rec.Status = status
	rec.Message = message
	rec.UpdatedAt = time.Now().UTC()

	s.operations[id] = rec
	return cloneOperation(rec), nil
}

func (s *Store) GetOperation(_ context.Context, id string) (operation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.operations[id]
	if !ok {
		return operation.Record{}, fmt.Errorf("operation %s: %w", id, storage.ErrNotFound)
	}
	return cloneOperation(rec), nil
}

func (s *Store) ListOperations(_ context.Context, tokenID string, filter storage.OperationFilter) ([]operation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]operation.Record, 0)
	// Newest first.
	for i := len(s.operationOrder) - 1; i >= 0; i-- {
		rec := s.operations[s.operationOrder[i]]
		if tokenID != "" && rec.TokenID != tokenID {
			continue
		}
		if filter.Operation != "" && rec.Operation != filter.Operation {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		result = append(result, cloneOperation(rec))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListOperationsByStatus(_ context.Context, status operation.Status, limit int) ([]operation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]operation.Record, 0)
	for _, id := range s.operationOrder {
		rec := s.operations[id]
		if rec.Status != status {
			continue
		}
		result = append(result, cloneOperation(rec))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// ModuleStore implementation --------------------------------------------------

func (s *Store) CreateAttachment(_ context.Context, att module.Attachment) (module.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAttachmentLocked(att)
}

func (s *Store) insertAttachmentLocked(att module.Attachment) (module.Attachment, error) {
	if att.ID == "" {
		att.ID = s.nextIDLocked()
	} else if _, exists := s.attachments[att.ID]; exists {
		return module.Attachment{}, fmt.Errorf("attachment %s: %w", att.ID, storage.ErrDuplicateKey)
	}

	now := time.Now().UTC()
	att.CreatedAt = now
	att.UpdatedAt = now
	if att.AttachedAt.IsZero() {
		att.AttachedAt = now
	}
	att.Config = cloneFieldMap(att.Config)

	s.attachments[att.ID] = att
	return cloneAttachment(att), nil
}

func (s *Store) UpdateAttachment(_ context.Context, att module.Attachment) (module.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.attachments[att.ID]
	if !ok {
		return module.Attachment{}, fmt.Errorf("attachment %s: %w", att.ID, storage.ErrNotFound)
	}

	att.CreatedAt = original.CreatedAt
	if att.AttachedAt.IsZero() {
		att.AttachedAt = original.AttachedAt
	}
	att.UpdatedAt = time.Now().UTC()
	att.Config = cloneFieldMap(att.Config)

	s.attachments[att.ID] = att
	return cloneAttachment(att), nil
}

func (s *Store) GetAttachment(_ context.Context, id string) (module.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[id]
	if !ok {
		return module.Attachment{}, fmt.Errorf("attachment %s: %w", id, storage.ErrNotFound)
	}
	return cloneAttachment(att), nil
}

func (s *Store) GetActiveAttachment(_ context.Context, tokenID, moduleType string) (module.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, att := range s.attachments {
		if att.TokenID == tokenID && att.ModuleType == moduleType && att.Active {
			return cloneAttachment(att), nil
		}
	}
	return module.Attachment{}, fmt.Errorf("active %s attachment for token %s: %w", moduleType, tokenID, storage.ErrNotFound)
}

func (s *Store) ListAttachments(_ context.Context, tokenID string) ([]module.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]module.Attachment, 0)
	for _, att := range s.attachments {
		if tokenID == "" || att.TokenID == tokenID {
			result = append(result, cloneAttachment(att))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ReplaceActiveAttachment(_ context.Context, next module.Attachment) (module.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for id, att := range s.attachments {
		if att.TokenID == next.TokenID && att.ModuleType == next.ModuleType && att.Active {
			att.Active = false
			att.DetachedAt = now
			att.UpdatedAt = now
			s.attachments[id] = att
		}
	}

	next.Active = true
	return s.insertAttachmentLocked(next)
}

// RegistryStore implementation ------------------------------------------------

func (s *Store) UpsertRegistryEntry(_ context.Context, entry module.RegistryEntry) (module.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		for _, existing := range s.registry {
			if existing.ModuleType == entry.ModuleType && existing.Version == entry.Version && existing.ChainID == entry.ChainID {
				entry.ID = existing.ID
				break
			}
		}
	}
	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	if original, ok := s.registry[entry.ID]; ok {
		entry.CreatedAt = original.CreatedAt
	} else {
		entry.CreatedAt = time.Now().UTC()
	}

	s.registry[entry.ID] = entry
	return entry, nil
}

func (s *Store) GetRegistryEntry(_ context.Context, id string) (module.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.registry[id]
	if !ok {
		return module.RegistryEntry{}, fmt.Errorf("registry entry %s: %w", id, storage.ErrNotFound)
	}
	return entry, nil
}

func (s *Store) ListRegistryEntries(_ context.Context, filter storage.RegistryFilter) ([]module.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]module.RegistryEntry, 0)
	for _, entry := range s.registry {
		if !matchRegistryFilter(entry, filter) {
			continue
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ModuleType != result[j].ModuleType {
			return result[i].ModuleType < result[j].ModuleType
		}
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (s *Store) ListModuleVersions(_ context.Context, moduleType string) ([]module.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]module.RegistryEntry, 0)
	for _, entry := range s.registry {
		if entry.ModuleType == moduleType {
			result = append(result, entry)
		}
	}
	// Newest published first.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Version > result[j].Version
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func matchRegistryFilter(entry module.RegistryEntry, filter storage.RegistryFilter) bool {
	if filter.ModuleType != "" && entry.ModuleType != filter.ModuleType {
		return false
	}
	if filter.Publisher != "" && !strings.EqualFold(entry.Publisher, filter.Publisher) {
		return false
	}
	if filter.ChainID != "" && entry.ChainID != filter.ChainID {
		return false
	}
	if filter.AuditedOnly && !entry.Audited {
		return false
	}
	if filter.ActiveOnly && !entry.Active {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(entry.Name), needle) &&
			!strings.Contains(strings.ToLower(entry.Description), needle) {
			return false
		}
	}
	return true
}

// Clone helpers ----------------------------------------------------------------

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFieldMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneToken(tok token.Token) token.Token {
	tok.Metadata = cloneStringMap(tok.Metadata)
	return tok
}

func cloneProperties(rec token.PropertiesRecord) token.PropertiesRecord {
	rec.Fields = cloneFieldMap(rec.Fields)
	return rec
}

func cloneOperation(rec operation.Record) operation.Record {
	rec.Metadata = cloneStringMap(rec.Metadata)
	return rec
}

func cloneAttachment(att module.Attachment) module.Attachment {
	att.Config = cloneFieldMap(att.Config)
	return att
}

// Package tokens manages the token master records and their per-standard
// property sets.
package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// Service manages token records.
type Service struct {
	store      storage.TokenStore
	properties storage.PropertiesStore
	log        *logger.Logger
}

// New constructs a token service.
func New(store storage.TokenStore, properties storage.PropertiesStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tokens")
	}
	return &Service{
		store:      store,
		properties: properties,
		log:        log,
	}
}

// CreateInput carries the fields accepted when registering a token.
type CreateInput struct {
	Standard    string
	Name        string
	Symbol      string
	Decimals    int
	MaxSupply   string
	Address     string
	ChainID     string
	Metadata    map[string]string
	Properties  map[string]interface{}
	RecordIndex int
}

// Create registers a token in draft state (or deployed, when an address is
// supplied) and seeds its first properties record.
func (s *Service) Create(ctx context.Context, projectID string, in CreateInput) (token.Token, error) {
	projectID = strings.TrimSpace(projectID)
	name := strings.TrimSpace(in.Name)
	symbol := strings.TrimSpace(in.Symbol)
	standard := token.Standard(strings.ToLower(strings.TrimSpace(in.Standard)))

	if projectID == "" {
		return token.Token{}, errors.InvalidInput("project_id is required")
	}
	if !standard.Valid() {
		return token.Token{}, errors.InvalidInput(fmt.Sprintf("unknown token standard %q", in.Standard))
	}
	if name == "" || symbol == "" {
		return token.Token{}, errors.InvalidInput("name and symbol are required")
	}
	if in.Decimals < 0 || in.Decimals > 36 {
		return token.Token{}, errors.InvalidInput("decimals must be between 0 and 36")
	}

	maxSupply := strings.TrimSpace(in.MaxSupply)
	if maxSupply == "" {
		maxSupply = token.UnlimitedSupply
	}
	if _, err := token.ParseRawAmount(maxSupply); err != nil {
		return token.Token{}, errors.InvalidInput(fmt.Sprintf("max_supply: %v", err))
	}

	status := token.DeploymentDraft
	address := strings.TrimSpace(in.Address)
	if address != "" {
		normalized, err := token.NormalizeAddress(address)
		if err != nil {
			return token.Token{}, errors.InvalidInput(fmt.Sprintf("address: %v", err))
		}
		address = normalized
		status = token.DeploymentDeployed
	}

	tok := token.Token{
		ProjectID:        projectID,
		Standard:         standard,
		Name:             name,
		Symbol:           symbol,
		Decimals:         in.Decimals,
		TotalSupply:      "0",
		MaxSupply:        maxSupply,
		Address:          address,
		ChainID:          strings.TrimSpace(in.ChainID),
		DeploymentStatus: status,
		Metadata:         in.Metadata,
	}
	tok, err := s.store.CreateToken(ctx, tok)
	if err != nil {
		return token.Token{}, err
	}

	if s.properties != nil {
		if _, err := s.properties.UpsertProperties(ctx, token.PropertiesRecord{
			TokenID:     tok.ID,
			Standard:    tok.Standard,
			RecordIndex: in.RecordIndex,
			Fields:      in.Properties,
		}); err != nil {
			return token.Token{}, fmt.Errorf("seed properties: %w", err)
		}
	}

	s.log.WithField("token_id", tok.ID).
		WithField("project_id", projectID).
		WithField("standard", string(standard)).
		Info("token registered")
	return tok, nil
}

// UpdateInput carries the mutable basic-info fields.
type UpdateInput struct {
	Name             *string
	Symbol           *string
	MaxSupply        *string
	Address          *string
	ChainID          *string
	DeploymentStatus *string
	Paused           *bool
	Metadata         map[string]string
}

// Update patches a token's basic info. Standard and decimals are immutable.
func (s *Service) Update(ctx context.Context, projectID, id string, in UpdateInput) (token.Token, error) {
	tok, err := s.Get(ctx, projectID, id)
	if err != nil {
		return token.Token{}, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return token.Token{}, errors.InvalidInput("name cannot be empty")
		}
		tok.Name = strings.TrimSpace(*in.Name)
	}
	if in.Symbol != nil {
		if strings.TrimSpace(*in.Symbol) == "" {
			return token.Token{}, errors.InvalidInput("symbol cannot be empty")
		}
		tok.Symbol = strings.TrimSpace(*in.Symbol)
	}
	if in.MaxSupply != nil {
		maxSupply := strings.TrimSpace(*in.MaxSupply)
		if _, err := token.ParseRawAmount(maxSupply); err != nil {
			return token.Token{}, errors.InvalidInput(fmt.Sprintf("max_supply: %v", err))
		}
		tok.MaxSupply = maxSupply
	}
	if in.Address != nil {
		address := strings.TrimSpace(*in.Address)
		if address != "" {
			normalized, err := token.NormalizeAddress(address)
			if err != nil {
				return token.Token{}, errors.InvalidInput(fmt.Sprintf("address: %v", err))
			}
			address = normalized
		}
		tok.Address = address
	}
	if in.ChainID != nil {
		tok.ChainID = strings.TrimSpace(*in.ChainID)
	}
	if in.DeploymentStatus != nil {
		status := token.DeploymentStatus(strings.ToLower(strings.TrimSpace(*in.DeploymentStatus)))
		switch status {
		case token.DeploymentDraft, token.DeploymentDeploying, token.DeploymentDeployed, token.DeploymentFailed:
			tok.DeploymentStatus = status
		default:
			return token.Token{}, errors.InvalidInput(fmt.Sprintf("unknown deployment status %q", *in.DeploymentStatus))
		}
	}
	if in.Paused != nil {
		tok.Paused = *in.Paused
	}
	if in.Metadata != nil {
		tok.Metadata = in.Metadata
	}

	tok, err = s.store.UpdateToken(ctx, tok)
	if err != nil {
		return token.Token{}, err
	}
	s.log.WithField("token_id", tok.ID).Info("token updated")
	return tok, nil
}

// Get returns a token scoped to the caller's project. Tokens in other
// projects read as not found.
func (s *Service) Get(ctx context.Context, projectID, id string) (token.Token, error) {
	tok, err := s.store.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return token.Token{}, errors.NotFound("token", id)
		}
		return token.Token{}, err
	}
	if projectID != "" && tok.ProjectID != projectID {
		return token.Token{}, errors.NotFound("token", id)
	}
	return tok, nil
}

// List returns the project's tokens.
func (s *Service) List(ctx context.Context, projectID string) ([]token.Token, error) {
	return s.store.ListTokens(ctx, projectID)
}

// Properties returns every property record of a token.
func (s *Service) Properties(ctx context.Context, projectID, id string) ([]token.PropertiesRecord, error) {
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.properties.ListProperties(ctx, id)
}

// SetPropertyField mutates a single property field.
func (s *Service) SetPropertyField(ctx context.Context, projectID, id string, recordIndex int, field string, value interface{}) (token.PropertiesRecord, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return token.PropertiesRecord{}, errors.InvalidInput("field name is required")
	}
	if recordIndex < 0 {
		return token.PropertiesRecord{}, errors.InvalidInput("record index cannot be negative")
	}
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return token.PropertiesRecord{}, err
	}

	rec, err := s.properties.SetPropertyField(ctx, id, recordIndex, field, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return token.PropertiesRecord{}, errors.NotFound("properties record", fmt.Sprintf("%s/%d", id, recordIndex))
		}
		return token.PropertiesRecord{}, err
	}
	s.log.WithField("token_id", id).
		WithField("field", field).
		Info("token property updated")
	return rec, nil
}

// RecordSupplyDelta applies a mint (positive) or burn (negative) delta to the
// cached total supply after a confirmed operation.
func (s *Service) RecordSupplyDelta(ctx context.Context, id, delta string, negative bool) (token.Token, error) {
	tok, err := s.store.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return token.Token{}, errors.NotFound("token", id)
		}
		return token.Token{}, err
	}

	next, err := token.ApplySupplyDelta(tok.TotalSupply, delta, negative)
	if err != nil {
		return token.Token{}, errors.InvalidInput(err.Error())
	}
	tok.TotalSupply = next
	return s.store.UpdateToken(ctx, tok)
}

// Package panels resolves which operations a token's control panel exposes.
package panels

import (
	"context"
	"fmt"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// TokenGetter resolves a token scoped to a project.
type TokenGetter interface {
	Get(ctx context.Context, projectID, id string) (token.Token, error)
}

// Entry describes one operation on a panel.
type Entry struct {
	Operation operation.Type `json:"operation"`
	Enabled   bool           `json:"enabled"`
	Reason    string         `json:"reason,omitempty"`
}

// Panel is the full control surface for a token.
type Panel struct {
	TokenID    string  `json:"token_id"`
	Standard   string  `json:"standard"`
	Deployed   bool    `json:"deployed"`
	Operations []Entry `json:"operations"`
	Modules    bool    `json:"modules"`
}

// Service builds operation panels from the standards matrix.
type Service struct {
	cfg    *config.PanelsConfig
	tokens TokenGetter
	log    *logger.Logger
}

// New constructs a panels service. A nil cfg falls back to the compiled-in
// matrix.
func New(cfg *config.PanelsConfig, tokens TokenGetter, log *logger.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultPanelsConfig()
	}
	if log == nil {
		log = logger.NewDefault("panels")
	}
	return &Service{cfg: cfg, tokens: tokens, log: log}
}

// ForToken returns the panel for a token. Operations outside the standard's
// matrix are omitted entirely; when the token has no live contract every
// listed operation is disabled.
func (s *Service) ForToken(ctx context.Context, projectID, tokenID string) (Panel, error) {
	tok, err := s.tokens.Get(ctx, projectID, tokenID)
	if err != nil {
		return Panel{}, err
	}
	return s.ForStandard(tok)
}

// ForStandard builds the panel from an already-loaded token.
func (s *Service) ForStandard(tok token.Token) (Panel, error) {
	std, ok := s.cfg.Standards[string(tok.Standard)]
	if !ok {
		return Panel{}, errors.InvalidInput(fmt.Sprintf("no panel matrix for standard %q", tok.Standard))
	}

	deployed := tok.Deployed()
	panel := Panel{
		TokenID:    tok.ID,
		Standard:   string(tok.Standard),
		Deployed:   deployed,
		Operations: make([]Entry, 0, len(std.Operations)),
		Modules:    std.Modules && deployed,
	}
	for _, op := range std.Operations {
		entry := Entry{Operation: operation.Type(op), Enabled: deployed}
		if !deployed {
			entry.Reason = "token contract is not deployed"
		}
		panel.Operations = append(panel.Operations, entry)
	}
	return panel, nil
}

// Allows reports whether the standard's matrix includes the operation, for
// callers that gate execution rather than render a panel. Module operations
// follow the Modules flag.
func (s *Service) Allows(standard token.Standard, op operation.Type) bool {
	std, ok := s.cfg.Standards[string(standard)]
	if !ok {
		return false
	}
	switch op {
	case operation.TypeModuleAttach, operation.TypeModuleDetach,
		operation.TypeModuleConfigure, operation.TypeModuleUpgrade:
		return std.Modules
	}
	for _, name := range std.Operations {
		if operation.Type(name) == op {
			return true
		}
	}
	return false
}

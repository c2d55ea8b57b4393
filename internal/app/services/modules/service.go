// Package modules manages the per-token module attachments: the registry-
// driven attach, detach, configure, and upgrade workflow operations plus the
// attachment listings.
package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/internal/workflow"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// Catalog reads published module versions. The registry service implements
// it with its cache in front.
type Catalog interface {
	Versions(ctx context.Context, moduleType string) ([]module.RegistryEntry, error)
}

// Service manages module attachments.
type Service struct {
	tokens    storage.TokenStore
	ops       storage.OperationStore
	modules   storage.ModuleStore
	catalog   Catalog
	gw        gateway.Gateway
	validator policy.Validator
	wallet    gateway.WalletContext
	log       *logger.Logger
}

// Config wires a Service.
type Config struct {
	Tokens    storage.TokenStore
	Ops       storage.OperationStore
	Modules   storage.ModuleStore
	Catalog   Catalog
	Gateway   gateway.Gateway
	Validator policy.Validator
	Wallet    gateway.WalletContext
	Log       *logger.Logger
}

// New constructs the module management service.
func New(cfg Config) (*Service, error) {
	if cfg.Modules == nil {
		return nil, fmt.Errorf("module store is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("module catalog is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("modules")
	}
	return &Service{
		tokens:    cfg.Tokens,
		ops:       cfg.Ops,
		modules:   cfg.Modules,
		catalog:   cfg.Catalog,
		gw:        cfg.Gateway,
		validator: cfg.Validator,
		wallet:    cfg.Wallet,
		log:       log,
	}, nil
}

// Instance builds a workflow machine for a module operation. It satisfies
// the operations service's module-session hook.
func (s *Service) Instance(_ context.Context, projectID, initiator string, tok token.Token, op operation.Type) (workflow.Instance, error) {
	d := deps{
		tok:       tok,
		projectID: projectID,
		initiator: strings.TrimSpace(initiator),
		wallet:    s.wallet,
		gw:        s.gw,
		ops:       s.ops,
		modules:   s.modules,
		catalog:   s.catalog,
		log:       s.log,
	}
	switch op {
	case operation.TypeModuleAttach:
		return workflow.NewMachine[attachPayload](attachHandler{deps: d}, s.validator), nil
	case operation.TypeModuleDetach:
		return workflow.NewMachine[detachPayload](detachHandler{deps: d}, s.validator), nil
	case operation.TypeModuleConfigure:
		return workflow.NewMachine[configurePayload](configureHandler{deps: d}, s.validator), nil
	case operation.TypeModuleUpgrade:
		return workflow.NewMachine[upgradePayload](upgradeHandler{deps: d}, s.validator), nil
	}
	return nil, errors.InvalidInput(fmt.Sprintf("%s is not a module operation", op))
}

// Attachments lists a token's module attachments, project-scoped.
func (s *Service) Attachments(ctx context.Context, projectID, tokenID string) ([]module.Attachment, error) {
	tok, err := s.tokens.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("token", tokenID)
		}
		return nil, err
	}
	if projectID != "" && tok.ProjectID != projectID {
		return nil, errors.NotFound("token", tokenID)
	}
	return s.modules.ListAttachments(ctx, tokenID)
}

// Active returns the active attachment of a module type, if any.
func (s *Service) Active(ctx context.Context, projectID, tokenID, moduleType string) (module.Attachment, error) {
	if _, err := s.Attachments(ctx, projectID, tokenID); err != nil {
		return module.Attachment{}, err
	}
	att, err := s.modules.GetActiveAttachment(ctx, tokenID, strings.ToLower(strings.TrimSpace(moduleType)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return module.Attachment{}, errors.NotFound("module attachment", moduleType)
		}
		return module.Attachment{}, err
	}
	return att, nil
}

// Package operations runs the policy-gated token operation workflow: session
// management, the per-operation handlers, confirmation tracking, and the live
// operation feed.
package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/internal/workflow"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// Matrix gates operations by token standard.
type Matrix interface {
	Allows(standard token.Standard, op operation.Type) bool
}

// ModuleSessions builds workflow instances for the module management
// operations, which live in their own service.
type ModuleSessions interface {
	Instance(ctx context.Context, projectID, initiator string, tok token.Token, op operation.Type) (workflow.Instance, error)
}

// Service owns workflow sessions for token operations.
type Service struct {
	tokens    storage.TokenStore
	ops       storage.OperationStore
	gw        gateway.Gateway
	validator policy.Validator
	wallet    gateway.WalletContext
	matrix    Matrix
	modules   ModuleSessions
	sessions  *workflow.Registry
	feed      *Feed
	recon     *ReconQueue
	log       *logger.Logger
}

// Config wires a Service.
type Config struct {
	Tokens     storage.TokenStore
	Operations storage.OperationStore
	Gateway    gateway.Gateway
	Validator  policy.Validator
	Wallet     gateway.WalletContext
	Matrix     Matrix
	Modules    ModuleSessions
	Feed       *Feed
	Recon      *ReconQueue
	SessionTTL time.Duration
	Log        *logger.Logger
}

// New constructs the operations service.
func New(cfg Config) (*Service, error) {
	if cfg.Tokens == nil || cfg.Operations == nil {
		return nil, fmt.Errorf("token and operation stores are required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("policy validator is required")
	}
	if err := cfg.Wallet.Validate(); err != nil {
		return nil, fmt.Errorf("wallet context: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("operations")
	}
	feed := cfg.Feed
	if feed == nil {
		feed = NewFeed()
	}
	recon := cfg.Recon
	if recon == nil {
		recon = NewReconQueue()
	}
	return &Service{
		tokens:    cfg.Tokens,
		ops:       cfg.Operations,
		gw:        cfg.Gateway,
		validator: cfg.Validator,
		wallet:    cfg.Wallet,
		matrix:    cfg.Matrix,
		modules:   cfg.Modules,
		sessions:  workflow.NewRegistry(cfg.SessionTTL),
		feed:      feed,
		recon:     recon,
		log:       log,
	}, nil
}

// Feed returns the live operation feed hub.
func (s *Service) Feed() *Feed {
	return s.feed
}

// Recon returns the reconciliation queue shared with the poller.
func (s *Service) Recon() *ReconQueue {
	return s.recon
}

// Sessions exposes the registry for the janitor.
func (s *Service) Sessions() *workflow.Registry {
	return s.sessions
}

// StartSession creates a workflow session for an operation on a token.
func (s *Service) StartSession(ctx context.Context, projectID, tokenID, initiator string, op operation.Type) (*workflow.Session, error) {
	if !op.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown operation %q", op))
	}

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
	if s.matrix != nil && !s.matrix.Allows(tok.Standard, op) {
		return nil, errors.Forbidden(fmt.Sprintf("operation %s is not available for standard %s", op, tok.Standard))
	}

	inst, err := s.instance(ctx, projectID, initiator, tok, op)
	if err != nil {
		return nil, err
	}

	session := s.sessions.Create(projectID, tokenID, inst)
	metrics.SetLiveSessions(s.sessions.Len())
	s.log.WithField("session_id", session.ID).
		WithField("token_id", tokenID).
		WithField("operation", string(op)).
		Info("workflow session started")
	return session, nil
}

func (s *Service) instance(ctx context.Context, projectID, initiator string, tok token.Token, op operation.Type) (workflow.Instance, error) {
	switch op {
	case operation.TypeModuleAttach, operation.TypeModuleDetach,
		operation.TypeModuleConfigure, operation.TypeModuleUpgrade:
		if s.modules == nil {
			return nil, errors.InvalidInput("module operations are not enabled")
		}
		return s.modules.Instance(ctx, projectID, initiator, tok, op)
	}

	d := deps{
		tok:       tok,
		projectID: projectID,
		initiator: strings.TrimSpace(initiator),
		wallet:    s.wallet,
		gw:        s.gw,
		ops:       s.ops,
		tokens:    s.tokens,
		recon:     s.recon,
		log:       s.log,
	}

	switch op {
	case operation.TypeMint:
		return workflow.NewMachine[mintPayload](mintHandler{deps: d}, s.validator), nil
	case operation.TypeBurn:
		return workflow.NewMachine[burnPayload](burnHandler{deps: d}, s.validator), nil
	case operation.TypePause:
		return workflow.NewMachine[pausePayload](pauseHandler{deps: d}, s.validator), nil
	case operation.TypeUnpause:
		return workflow.NewMachine[pausePayload](pauseHandler{deps: d, unpause: true}, s.validator), nil
	case operation.TypeLock:
		return workflow.NewMachine[lockPayload](lockHandler{deps: d}, s.validator), nil
	case operation.TypeUnlock:
		h := &unlockHandler{deps: d}
		if err := h.Refresh(ctx); err != nil {
			return nil, errors.Dependency("lock candidates", err)
		}
		return workflow.NewMachine[unlockPayload](h, s.validator), nil
	case operation.TypeBlock:
		return workflow.NewMachine[blockPayload](blockHandler{deps: d}, s.validator), nil
	case operation.TypeUnblock:
		h := &unblockHandler{deps: d}
		if err := h.Refresh(ctx); err != nil {
			return nil, errors.Dependency("blocked address list", err)
		}
		return workflow.NewMachine[unblockPayload](h, s.validator), nil
	case operation.TypeGrantRole:
		return workflow.NewMachine[rolePayload](roleHandler{deps: d}, s.validator), nil
	case operation.TypeRevokeRole:
		return workflow.NewMachine[rolePayload](roleHandler{deps: d, revoke: true}, s.validator), nil
	case operation.TypeUpdateMaxSupply:
		return workflow.NewMachine[maxSupplyPayload](maxSupplyHandler{deps: d}, s.validator), nil
	}
	return nil, errors.InvalidInput(fmt.Sprintf("unknown operation %q", op))
}

// Session returns a live session scoped to the project.
func (s *Service) Session(id, projectID string) (*workflow.Session, error) {
	return s.sessions.Get(id, projectID)
}

// Submit runs the input-to-validation transition for a session.
func (s *Service) Submit(ctx context.Context, id, projectID string, raw []byte) (workflow.Snapshot, error) {
	session, err := s.sessions.Get(id, projectID)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	snap, err := session.Instance.Submit(ctx, raw)
	if err == nil {
		metrics.RecordValidation(string(session.Operation), snap.State == workflow.StateValidation)
	}
	return snap, err
}

// Execute runs the validated operation and publishes the submitted row on
// the feed.
func (s *Service) Execute(ctx context.Context, id, projectID string) (workflow.Snapshot, error) {
	session, err := s.sessions.Get(id, projectID)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	start := time.Now()
	snap, err := session.Instance.Execute(ctx)
	status := "complete"
	if err != nil {
		status = "failed"
	}
	metrics.RecordOperationExecution(string(session.Operation), status, time.Since(start))
	if err != nil {
		return snap, err
	}
	if snap.Receipt != nil {
		s.feed.Publish(Event{
			Type: EventSubmitted,
			Record: operation.Record{
				ProjectID:       projectID,
				TokenID:         session.TokenID,
				Operation:       session.Operation,
				TransactionHash: snap.Receipt.TransactionHash,
				Status:          operation.StatusSubmitted,
			},
			At: time.Now().UTC(),
		})
	}
	return snap, nil
}

// Back returns a session from validation to input.
func (s *Service) Back(id, projectID string) (workflow.Snapshot, error) {
	session, err := s.sessions.Get(id, projectID)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	return session.Instance.Back()
}

// Reset clears a session back to an empty input form.
func (s *Service) Reset(ctx context.Context, id, projectID string) (workflow.Snapshot, error) {
	session, err := s.sessions.Get(id, projectID)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	return session.Instance.Reset(ctx)
}

// History lists a token's operation log, project-scoped.
func (s *Service) History(ctx context.Context, projectID, tokenID string, filter storage.OperationFilter) ([]operation.Record, error) {
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
	return s.ops.ListOperations(ctx, tokenID, filter)
}

// Operation returns one operation log row, project-scoped.
func (s *Service) Operation(ctx context.Context, projectID, id string) (operation.Record, error) {
	rec, err := s.ops.GetOperation(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return operation.Record{}, errors.NotFound("operation", id)
		}
		return operation.Record{}, err
	}
	if projectID != "" && rec.ProjectID != projectID {
		return operation.Record{}, errors.NotFound("operation", id)
	}
	return rec, nil
}

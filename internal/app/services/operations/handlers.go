package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// knownRoles are the access-control roles the role operations accept.
var knownRoles = []string{"admin", "minter", "burner", "pauser", "blocklister", "controller", "operator"}

func roleKnown(role string) bool {
	for _, r := range knownRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// deps carries the collaborators every operation handler needs. The token is
// a snapshot taken at session creation.
type deps struct {
	tok       token.Token
	projectID string
	initiator string
	wallet    gateway.WalletContext
	gw        gateway.Gateway
	ops       storage.OperationStore
	tokens    storage.TokenStore
	recon     *ReconQueue
	log       *logger.Logger
}

func decodeStrict[P any](raw json.RawMessage) (P, error) {
	var payload P
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func (d deps) requireDeployed() []schema.FieldError {
	if !d.tok.Deployed() {
		return []schema.FieldError{{Field: "token", Message: "token contract is not deployed"}}
	}
	return nil
}

func checkAddress(field, value string) *schema.FieldError {
	if err := token.ValidateAddress(value); err != nil {
		return &schema.FieldError{Field: field, Message: err.Error()}
	}
	return nil
}

func checkPositiveAmount(field, value string) *schema.FieldError {
	v, err := token.ParseRawAmount(value)
	if err != nil {
		return &schema.FieldError{Field: field, Message: err.Error()}
	}
	if v.Sign() == 0 {
		return &schema.FieldError{Field: field, Message: "amount must be greater than zero"}
	}
	return nil
}

func (d deps) call(params map[string]interface{}) gateway.Call {
	return gateway.Call{
		Wallet:   d.wallet,
		Contract: d.tok.Address,
		ChainID:  d.tok.ChainID,
		Params:   params,
	}
}

func (d deps) descriptor(op operation.Type, params map[string]interface{}) policy.Descriptor {
	return policy.Descriptor{
		To:   d.tok.Address,
		From: d.wallet.Address,
		Metadata: policy.Metadata{
			Operation: string(op),
			TokenID:   d.tok.ID,
			Standard:  string(d.tok.Standard),
			ChainID:   d.tok.ChainID,
			Params:    params,
		},
	}
}

// appendLog writes the single operation-log row for a completed execution.
// Rows start at submitted; confirmation tracking moves them on.
func (d deps) appendLog(ctx context.Context, rec operation.Record, receipt gateway.Receipt) error {
	rec.ProjectID = d.projectID
	rec.TokenID = d.tok.ID
	rec.Initiator = d.initiator
	rec.TransactionHash = receipt.TransactionHash
	rec.NonceUsed = receipt.NonceUsed
	rec.Status = operation.StatusSubmitted
	if _, err := d.ops.CreateOperation(ctx, rec); err != nil {
		d.log.WithField("token_id", d.tok.ID).
			WithField("operation", string(rec.Operation)).
			WithField("tx_hash", receipt.TransactionHash).
			Errorf("operation log write failed: %v", err)
		if d.recon != nil {
			d.recon.Enqueue(rec)
		}
		return err
	}
	return nil
}

// noRefresh is embedded by handlers without a candidate list.
type noRefresh struct{}

func (noRefresh) Refresh(context.Context) error { return nil }

// mint

type mintPayload struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Partition string `json:"partition,omitempty"`
}

type mintHandler struct {
	noRefresh
	deps
}

func (mintHandler) Operation() operation.Type { return operation.TypeMint }

func (mintHandler) Decode(raw json.RawMessage) (mintPayload, error) {
	p, err := decodeStrict[mintPayload](raw)
	if err != nil {
		return p, err
	}
	p.To = strings.TrimSpace(p.To)
	p.Amount = strings.TrimSpace(p.Amount)
	p.Partition = strings.TrimSpace(p.Partition)
	return p, nil
}

func (h mintHandler) Check(_ context.Context, p mintPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if e := checkAddress("to", p.To); e != nil {
		errs = append(errs, *e)
	}
	if e := checkPositiveAmount("amount", p.Amount); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (h mintHandler) params(p mintPayload) map[string]interface{} {
	params := map[string]interface{}{"to": p.To, "amount": p.Amount}
	if p.Partition != "" {
		params["partition"] = p.Partition
	}
	return params
}

func (h mintHandler) Descriptor(_ context.Context, p mintPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeMint, h.params(p)), nil
}

func (h mintHandler) Execute(ctx context.Context, p mintPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Mint(ctx, h.call(h.params(p)))
}

func (h mintHandler) Record(ctx context.Context, p mintPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeMint,
		Target:    p.To,
		Amount:    p.Amount,
		Partition: p.Partition,
	}, receipt)
}

// burn

type burnPayload struct {
	From   string `json:"from,omitempty"`
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type burnHandler struct {
	noRefresh
	deps
}

func (burnHandler) Operation() operation.Type { return operation.TypeBurn }

func (burnHandler) Decode(raw json.RawMessage) (burnPayload, error) {
	p, err := decodeStrict[burnPayload](raw)
	if err != nil {
		return p, err
	}
	p.From = strings.TrimSpace(p.From)
	p.Amount = strings.TrimSpace(p.Amount)
	p.Reason = strings.TrimSpace(p.Reason)
	return p, nil
}

func (h burnHandler) Check(_ context.Context, p burnPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if p.From != "" {
		if e := checkAddress("from", p.From); e != nil {
			errs = append(errs, *e)
		}
	}
	if e := checkPositiveAmount("amount", p.Amount); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (h burnHandler) params(p burnPayload) map[string]interface{} {
	params := map[string]interface{}{"amount": p.Amount}
	if p.From != "" {
		params["from"] = p.From
	}
	return params
}

func (h burnHandler) Descriptor(_ context.Context, p burnPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeBurn, h.params(p)), nil
}

func (h burnHandler) Execute(ctx context.Context, p burnPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Burn(ctx, h.call(h.params(p)))
}

func (h burnHandler) Record(ctx context.Context, p burnPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeBurn,
		Target:    p.From,
		Amount:    p.Amount,
		Reason:    p.Reason,
	}, receipt)
}

// pause / unpause

type pausePayload struct {
	Reason string `json:"reason,omitempty"`
}

type pauseHandler struct {
	noRefresh
	deps
	unpause bool
}

func (h pauseHandler) Operation() operation.Type {
	if h.unpause {
		return operation.TypeUnpause
	}
	return operation.TypePause
}

func (pauseHandler) Decode(raw json.RawMessage) (pausePayload, error) {
	p, err := decodeStrict[pausePayload](raw)
	if err != nil {
		return p, err
	}
	p.Reason = strings.TrimSpace(p.Reason)
	return p, nil
}

func (h pauseHandler) Check(_ context.Context, _ pausePayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	if h.unpause && !h.tok.Paused {
		return []schema.FieldError{{Field: "token", Message: "token is not paused"}}
	}
	if !h.unpause && h.tok.Paused {
		return []schema.FieldError{{Field: "token", Message: "token is already paused"}}
	}
	return nil
}

func (h pauseHandler) Descriptor(_ context.Context, p pausePayload) (policy.Descriptor, error) {
	return h.descriptor(h.Operation(), map[string]interface{}{"reason": p.Reason}), nil
}

func (h pauseHandler) Execute(ctx context.Context, _ pausePayload, _ policy.Result) (gateway.Receipt, error) {
	if h.unpause {
		return h.gw.Unpause(ctx, h.call(nil))
	}
	return h.gw.Pause(ctx, h.call(nil))
}

func (h pauseHandler) Record(ctx context.Context, p pausePayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: h.Operation(),
		Reason:    p.Reason,
	}, receipt)
}

// lock

type lockPayload struct {
	Target   string `json:"target"`
	Amount   string `json:"amount"`
	Duration int64  `json:"duration"`
	Reason   string `json:"reason"`
}

type lockHandler struct {
	noRefresh
	deps
}

func (lockHandler) Operation() operation.Type { return operation.TypeLock }

func (lockHandler) Decode(raw json.RawMessage) (lockPayload, error) {
	p, err := decodeStrict[lockPayload](raw)
	if err != nil {
		return p, err
	}
	p.Target = strings.TrimSpace(p.Target)
	p.Amount = strings.TrimSpace(p.Amount)
	p.Reason = strings.TrimSpace(p.Reason)
	return p, nil
}

func (h lockHandler) Check(_ context.Context, p lockPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if e := checkAddress("target", p.Target); e != nil {
		errs = append(errs, *e)
	}
	if e := checkPositiveAmount("amount", p.Amount); e != nil {
		errs = append(errs, *e)
	}
	if p.Duration <= 0 {
		errs = append(errs, schema.FieldError{Field: "duration", Message: "duration must be greater than zero"})
	}
	if p.Reason == "" {
		errs = append(errs, schema.FieldError{Field: "reason", Message: "reason is required"})
	}
	return errs
}

func (h lockHandler) params(p lockPayload) map[string]interface{} {
	return map[string]interface{}{
		"target":   p.Target,
		"amount":   p.Amount,
		"duration": p.Duration,
		"reason":   p.Reason,
	}
}

func (h lockHandler) Descriptor(_ context.Context, p lockPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeLock, h.params(p)), nil
}

// Execute goes through the direct descriptor submission path: lock has no
// named gateway method.
func (h lockHandler) Execute(ctx context.Context, p lockPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Submit(ctx, gateway.Submission{
		Wallet:     h.wallet,
		Descriptor: h.descriptor(operation.TypeLock, h.params(p)),
	})
}

func (h lockHandler) Record(ctx context.Context, p lockPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeLock,
		Target:    p.Target,
		Amount:    p.Amount,
		Reason:    p.Reason,
		Metadata:  map[string]string{"duration": fmt.Sprintf("%d", p.Duration)},
	}, receipt)
}

// unlock

type unlockPayload struct {
	LockID string `json:"lock_id"`
	Target string `json:"target"`
}

// unlockHandler validates the lock id against the candidate list of
// confirmed, not-yet-unlocked lock rows. Reset re-fetches the list.
type unlockHandler struct {
	deps

	mu         sync.Mutex
	candidates map[string]operation.Record
}

func (*unlockHandler) Operation() operation.Type { return operation.TypeUnlock }

func (*unlockHandler) Decode(raw json.RawMessage) (unlockPayload, error) {
	p, err := decodeStrict[unlockPayload](raw)
	if err != nil {
		return p, err
	}
	p.LockID = strings.TrimSpace(p.LockID)
	p.Target = strings.TrimSpace(p.Target)
	return p, nil
}

func (h *unlockHandler) Refresh(ctx context.Context) error {
	locks, err := h.ops.ListOperations(ctx, h.tok.ID, storage.OperationFilter{
		Operation: operation.TypeLock,
		Status:    operation.StatusConfirmed,
	})
	if err != nil {
		return fmt.Errorf("list locks: %w", err)
	}
	unlocks, err := h.ops.ListOperations(ctx, h.tok.ID, storage.OperationFilter{
		Operation: operation.TypeUnlock,
	})
	if err != nil {
		return fmt.Errorf("list unlocks: %w", err)
	}

	released := make(map[string]bool, len(unlocks))
	for _, rec := range unlocks {
		if rec.Status == operation.StatusFailed {
			continue
		}
		released[rec.Metadata["lock_id"]] = true
	}

	candidates := make(map[string]operation.Record, len(locks))
	for _, rec := range locks {
		if !released[rec.ID] {
			candidates[rec.ID] = rec
		}
	}

	h.mu.Lock()
	h.candidates = candidates
	h.mu.Unlock()
	return nil
}

// Candidates lists the releasable lock rows for the input form.
func (h *unlockHandler) Candidates() []operation.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]operation.Record, 0, len(h.candidates))
	for _, rec := range h.candidates {
		out = append(out, rec)
	}
	return out
}

func (h *unlockHandler) Check(ctx context.Context, p unlockPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	if p.LockID == "" {
		return []schema.FieldError{{Field: "lock_id", Message: "lock_id is required"}}
	}

	h.mu.Lock()
	_, known := h.candidates[p.LockID]
	h.mu.Unlock()
	if !known {
		return []schema.FieldError{{Field: "lock_id", Message: "lock_id is not a releasable lock"}}
	}
	return nil
}

func (h *unlockHandler) params(p unlockPayload) map[string]interface{} {
	params := map[string]interface{}{"lock_id": p.LockID}
	if p.Target != "" {
		params["target"] = p.Target
	}
	return params
}

func (h *unlockHandler) Descriptor(_ context.Context, p unlockPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeUnlock, h.params(p)), nil
}

func (h *unlockHandler) Execute(ctx context.Context, p unlockPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Unlock(ctx, h.call(h.params(p)))
}

func (h *unlockHandler) Record(ctx context.Context, p unlockPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeUnlock,
		Target:    p.Target,
		Metadata:  map[string]string{"lock_id": p.LockID},
	}, receipt)
}

// block

type blockPayload struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type blockHandler struct {
	noRefresh
	deps
}

func (blockHandler) Operation() operation.Type { return operation.TypeBlock }

func (blockHandler) Decode(raw json.RawMessage) (blockPayload, error) {
	p, err := decodeStrict[blockPayload](raw)
	if err != nil {
		return p, err
	}
	p.Target = strings.TrimSpace(p.Target)
	p.Reason = strings.TrimSpace(p.Reason)
	return p, nil
}

func (h blockHandler) Check(_ context.Context, p blockPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if e := checkAddress("target", p.Target); e != nil {
		errs = append(errs, *e)
	}
	if p.Reason == "" {
		errs = append(errs, schema.FieldError{Field: "reason", Message: "reason is required"})
	}
	return errs
}

func (h blockHandler) params(p blockPayload) map[string]interface{} {
	return map[string]interface{}{"target": p.Target, "reason": p.Reason}
}

func (h blockHandler) Descriptor(_ context.Context, p blockPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeBlock, h.params(p)), nil
}

// Execute goes through the direct descriptor submission path: block has no
// named gateway method.
func (h blockHandler) Execute(ctx context.Context, p blockPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Submit(ctx, gateway.Submission{
		Wallet:     h.wallet,
		Descriptor: h.descriptor(operation.TypeBlock, h.params(p)),
	})
}

func (h blockHandler) Record(ctx context.Context, p blockPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeBlock,
		Target:    p.Target,
		Reason:    p.Reason,
	}, receipt)
}

// unblock

type unblockPayload struct {
	Target string `json:"target"`
}

// unblockHandler validates the target against the list of currently blocked
// addresses derived from the operation log.
type unblockHandler struct {
	deps

	mu      sync.Mutex
	blocked map[string]bool
}

func (*unblockHandler) Operation() operation.Type { return operation.TypeUnblock }

func (*unblockHandler) Decode(raw json.RawMessage) (unblockPayload, error) {
	p, err := decodeStrict[unblockPayload](raw)
	if err != nil {
		return p, err
	}
	p.Target = strings.TrimSpace(p.Target)
	return p, nil
}

func (h *unblockHandler) Refresh(ctx context.Context) error {
	blocks, err := h.ops.ListOperations(ctx, h.tok.ID, storage.OperationFilter{
		Operation: operation.TypeBlock,
		Status:    operation.StatusConfirmed,
	})
	if err != nil {
		return fmt.Errorf("list blocks: %w", err)
	}
	unblocks, err := h.ops.ListOperations(ctx, h.tok.ID, storage.OperationFilter{
		Operation: operation.TypeUnblock,
	})
	if err != nil {
		return fmt.Errorf("list unblocks: %w", err)
	}

	blocked := make(map[string]bool, len(blocks))
	for _, rec := range blocks {
		blocked[strings.ToLower(rec.Target)] = true
	}
	for _, rec := range unblocks {
		if rec.Status == operation.StatusFailed {
			continue
		}
		delete(blocked, strings.ToLower(rec.Target))
	}

	h.mu.Lock()
	h.blocked = blocked
	h.mu.Unlock()
	return nil
}

// Blocked lists the currently blocked addresses for the input form.
func (h *unblockHandler) Blocked() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.blocked))
	for addr := range h.blocked {
		out = append(out, addr)
	}
	return out
}

func (h *unblockHandler) Check(_ context.Context, p unblockPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	if e := checkAddress("target", p.Target); e != nil {
		return []schema.FieldError{*e}
	}

	h.mu.Lock()
	isBlocked := h.blocked[strings.ToLower(p.Target)]
	h.mu.Unlock()
	if !isBlocked {
		return []schema.FieldError{{Field: "target", Message: "target is not currently blocked"}}
	}
	return nil
}

func (h *unblockHandler) Descriptor(_ context.Context, p unblockPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeUnblock, map[string]interface{}{"target": p.Target}), nil
}

func (h *unblockHandler) Execute(ctx context.Context, p unblockPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.Unblock(ctx, h.call(map[string]interface{}{"target": p.Target}))
}

func (h *unblockHandler) Record(ctx context.Context, p unblockPayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeUnblock,
		Target:    p.Target,
	}, receipt)
}

// grant_role / revoke_role

type rolePayload struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

type roleHandler struct {
	noRefresh
	deps
	revoke bool
}

func (h roleHandler) Operation() operation.Type {
	if h.revoke {
		return operation.TypeRevokeRole
	}
	return operation.TypeGrantRole
}

func (roleHandler) Decode(raw json.RawMessage) (rolePayload, error) {
	p, err := decodeStrict[rolePayload](raw)
	if err != nil {
		return p, err
	}
	p.Role = strings.ToLower(strings.TrimSpace(p.Role))
	p.Account = strings.TrimSpace(p.Account)
	return p, nil
}

func (h roleHandler) Check(_ context.Context, p rolePayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if !roleKnown(p.Role) {
		errs = append(errs, schema.FieldError{Field: "role", Message: fmt.Sprintf("unknown role %q", p.Role)})
	}
	if e := checkAddress("account", p.Account); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (h roleHandler) params(p rolePayload) map[string]interface{} {
	return map[string]interface{}{"role": p.Role, "account": p.Account}
}

func (h roleHandler) Descriptor(_ context.Context, p rolePayload) (policy.Descriptor, error) {
	return h.descriptor(h.Operation(), h.params(p)), nil
}

func (h roleHandler) Execute(ctx context.Context, p rolePayload, _ policy.Result) (gateway.Receipt, error) {
	if h.revoke {
		return h.gw.RevokeRole(ctx, h.call(h.params(p)))
	}
	return h.gw.GrantRole(ctx, h.call(h.params(p)))
}

func (h roleHandler) Record(ctx context.Context, p rolePayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: h.Operation(),
		Target:    p.Account,
		Role:      p.Role,
	}, receipt)
}

// update_max_supply

type maxSupplyPayload struct {
	NewMaxSupply string `json:"new_max_supply,omitempty"`
	Unlimited    bool   `json:"unlimited,omitempty"`
}

type maxSupplyHandler struct {
	noRefresh
	deps
}

func (maxSupplyHandler) Operation() operation.Type { return operation.TypeUpdateMaxSupply }

func (maxSupplyHandler) Decode(raw json.RawMessage) (maxSupplyPayload, error) {
	p, err := decodeStrict[maxSupplyPayload](raw)
	if err != nil {
		return p, err
	}
	p.NewMaxSupply = strings.TrimSpace(p.NewMaxSupply)
	return p, nil
}

// rawCap converts the typed whole-token cap to raw base units. The unlimited
// toggle forces zero regardless of any typed number.
func (h maxSupplyHandler) rawCap(p maxSupplyPayload) (*big.Int, error) {
	if p.Unlimited {
		return big.NewInt(0), nil
	}
	return token.ToBaseUnits(p.NewMaxSupply, h.tok.Decimals)
}

// Check rejects a cap below the current total supply locally; the validator
// never sees such a submission.
func (h maxSupplyHandler) Check(_ context.Context, p maxSupplyPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	limit, err := h.rawCap(p)
	if err != nil {
		return []schema.FieldError{{Field: "new_max_supply", Message: err.Error()}}
	}
	if limit.Sign() == 0 {
		return nil
	}
	total, err := token.ParseRawAmount(h.tok.TotalSupply)
	if err != nil {
		return []schema.FieldError{{Field: "token", Message: "token total supply is unreadable"}}
	}
	if limit.Cmp(total) < 0 {
		return []schema.FieldError{{
			Field:   "new_max_supply",
			Message: "new max supply is below the current total supply",
		}}
	}
	return nil
}

func (h maxSupplyHandler) Descriptor(_ context.Context, p maxSupplyPayload) (policy.Descriptor, error) {
	limit, err := h.rawCap(p)
	if err != nil {
		return policy.Descriptor{}, err
	}
	return h.descriptor(operation.TypeUpdateMaxSupply, map[string]interface{}{
		"new_max_supply": limit.String(),
	}), nil
}

func (h maxSupplyHandler) Execute(ctx context.Context, p maxSupplyPayload, _ policy.Result) (gateway.Receipt, error) {
	limit, err := h.rawCap(p)
	if err != nil {
		return gateway.Receipt{}, err
	}
	return h.gw.UpdateMaxSupply(ctx, h.call(map[string]interface{}{
		"new_max_supply": limit.String(),
	}))
}

func (h maxSupplyHandler) Record(ctx context.Context, p maxSupplyPayload, receipt gateway.Receipt) error {
	limit, err := h.rawCap(p)
	if err != nil {
		return err
	}

	tok, err := h.tokens.GetToken(ctx, h.tok.ID)
	if err == nil {
		tok.MaxSupply = limit.String()
		if _, err := h.tokens.UpdateToken(ctx, tok); err != nil {
			h.log.WithField("token_id", h.tok.ID).Errorf("max supply cache update failed: %v", err)
		}
	}

	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeUpdateMaxSupply,
		Amount:    limit.String(),
	}, receipt)
}

package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// deps carries the collaborators shared by the module operation handlers.
type deps struct {
	tok       token.Token
	projectID string
	initiator string
	wallet    gateway.WalletContext
	gw        gateway.Gateway
	ops       storage.OperationStore
	modules   storage.ModuleStore
	catalog   Catalog
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

// configSchema finds the config schema for a module type, preferring the
// registry entry matching the given contract address.
func (d deps) configSchema(ctx context.Context, moduleType, address string) (schema.Schema, bool, error) {
	entries, err := d.catalog.Versions(ctx, moduleType)
	if err != nil {
		return schema.Schema{}, false, err
	}
	if len(entries) == 0 {
		return schema.Schema{}, false, nil
	}
	for _, entry := range entries {
		if address != "" && strings.EqualFold(entry.Address, address) {
			return entry.ConfigSchema, true, nil
		}
	}
	return entries[0].ConfigSchema, true, nil
}

// checkConfig validates a config map against the module's registry schema.
func (d deps) checkConfig(ctx context.Context, moduleType, address string, config map[string]interface{}) []schema.FieldError {
	sch, known, err := d.configSchema(ctx, moduleType, address)
	if err != nil {
		return []schema.FieldError{{Field: "module_type", Message: "module registry unavailable"}}
	}
	if !known {
		return []schema.FieldError{{Field: "module_type", Message: fmt.Sprintf("unknown module type %q", moduleType)}}
	}
	if len(sch.Fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return []schema.FieldError{{Field: "config", Message: "config is not serializable"}}
	}
	return sch.Validate(raw)
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

func (d deps) call(params map[string]interface{}) gateway.Call {
	return gateway.Call{
		Wallet:   d.wallet,
		Contract: d.tok.Address,
		ChainID:  d.tok.ChainID,
		Params:   params,
	}
}

func (d deps) appendLog(ctx context.Context, rec operation.Record, receipt gateway.Receipt) error {
	rec.ProjectID = d.projectID
	rec.TokenID = d.tok.ID
	rec.Initiator = d.initiator
	rec.TransactionHash = receipt.TransactionHash
	rec.NonceUsed = receipt.NonceUsed
	rec.Status = operation.StatusSubmitted
	if receipt.TransactionHash == "" {
		// Off-chain operations have nothing for the poller to confirm.
		rec.Status = operation.StatusConfirmed
	}
	if _, err := d.ops.CreateOperation(ctx, rec); err != nil {
		d.log.WithField("token_id", d.tok.ID).
			WithField("operation", string(rec.Operation)).
			Errorf("operation log write failed: %v", err)
		return err
	}
	return nil
}

func (d deps) activeAttachment(ctx context.Context, moduleType string) (module.Attachment, bool) {
	att, err := d.modules.GetActiveAttachment(ctx, d.tok.ID, moduleType)
	if err != nil {
		return module.Attachment{}, false
	}
	return att, true
}

type noRefresh struct{}

func (noRefresh) Refresh(context.Context) error { return nil }

// attach

type attachPayload struct {
	ModuleType    string                 `json:"module_type"`
	ModuleAddress string                 `json:"module_address"`
	Config        map[string]interface{} `json:"config,omitempty"`
}

type attachHandler struct {
	noRefresh
	deps
}

func (attachHandler) Operation() operation.Type { return operation.TypeModuleAttach }

func (attachHandler) Decode(raw json.RawMessage) (attachPayload, error) {
	p, err := decodeStrict[attachPayload](raw)
	if err != nil {
		return p, err
	}
	p.ModuleType = strings.ToLower(strings.TrimSpace(p.ModuleType))
	p.ModuleAddress = strings.TrimSpace(p.ModuleAddress)
	return p, nil
}

func (h attachHandler) Check(ctx context.Context, p attachPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if p.ModuleType == "" {
		errs = append(errs, schema.FieldError{Field: "module_type", Message: "module_type is required"})
	}
	if err := token.ValidateAddress(p.ModuleAddress); err != nil {
		errs = append(errs, schema.FieldError{Field: "module_address", Message: err.Error()})
	}
	if len(errs) > 0 {
		return errs
	}
	if _, active := h.activeAttachment(ctx, p.ModuleType); active {
		return []schema.FieldError{{
			Field:   "module_type",
			Message: fmt.Sprintf("a %s module is already attached", p.ModuleType),
		}}
	}
	return h.checkConfig(ctx, p.ModuleType, p.ModuleAddress, p.Config)
}

func (h attachHandler) params(p attachPayload) map[string]interface{} {
	return map[string]interface{}{
		"action":         "attach",
		"module_type":    p.ModuleType,
		"module_address": p.ModuleAddress,
		"config":         p.Config,
	}
}

func (h attachHandler) Descriptor(_ context.Context, p attachPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeModuleAttach, h.params(p)), nil
}

func (h attachHandler) Execute(ctx context.Context, p attachPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.SetModule(ctx, h.call(h.params(p)))
}

func (h attachHandler) Record(ctx context.Context, p attachPayload, receipt gateway.Receipt) error {
	if _, err := h.modules.CreateAttachment(ctx, module.Attachment{
		ProjectID:     h.projectID,
		TokenID:       h.tok.ID,
		ModuleType:    p.ModuleType,
		ModuleAddress: p.ModuleAddress,
		Config:        p.Config,
		Active:        true,
	}); err != nil {
		h.log.WithField("token_id", h.tok.ID).Errorf("attachment write failed: %v", err)
	}
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeModuleAttach,
		Target:    p.ModuleAddress,
		Metadata:  map[string]string{"module_type": p.ModuleType},
	}, receipt)
}

// detach

type detachPayload struct {
	ModuleType string `json:"module_type"`
}

type detachHandler struct {
	noRefresh
	deps
}

func (detachHandler) Operation() operation.Type { return operation.TypeModuleDetach }

func (detachHandler) Decode(raw json.RawMessage) (detachPayload, error) {
	p, err := decodeStrict[detachPayload](raw)
	if err != nil {
		return p, err
	}
	p.ModuleType = strings.ToLower(strings.TrimSpace(p.ModuleType))
	return p, nil
}

func (h detachHandler) Check(ctx context.Context, p detachPayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	if p.ModuleType == "" {
		return []schema.FieldError{{Field: "module_type", Message: "module_type is required"}}
	}
	att, active := h.activeAttachment(ctx, p.ModuleType)
	if !active || att.ModuleAddress == "" {
		return []schema.FieldError{{
			Field:   "module_type",
			Message: fmt.Sprintf("no attached %s module to detach", p.ModuleType),
		}}
	}
	return nil
}

func (h detachHandler) params(ctx context.Context, p detachPayload) map[string]interface{} {
	params := map[string]interface{}{
		"action":      "detach",
		"module_type": p.ModuleType,
	}
	if att, ok := h.activeAttachment(ctx, p.ModuleType); ok {
		params["module_address"] = att.ModuleAddress
	}
	return params
}

func (h detachHandler) Descriptor(ctx context.Context, p detachPayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeModuleDetach, h.params(ctx, p)), nil
}

func (h detachHandler) Execute(ctx context.Context, p detachPayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.SetModule(ctx, h.call(h.params(ctx, p)))
}

func (h detachHandler) Record(ctx context.Context, p detachPayload, receipt gateway.Receipt) error {
	target := ""
	if att, ok := h.activeAttachment(ctx, p.ModuleType); ok {
		target = att.ModuleAddress
		att.Active = false
		att.DetachedAt = time.Now().UTC()
		if _, err := h.modules.UpdateAttachment(ctx, att); err != nil {
			h.log.WithField("token_id", h.tok.ID).Errorf("attachment deactivate failed: %v", err)
		}
	}
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeModuleDetach,
		Target:    target,
		Metadata:  map[string]string{"module_type": p.ModuleType},
	}, receipt)
}

// configure

type configurePayload struct {
	ModuleType string                 `json:"module_type"`
	Config     map[string]interface{} `json:"config"`
}

type configureHandler struct {
	noRefresh
	deps
}

func (configureHandler) Operation() operation.Type { return operation.TypeModuleConfigure }

func (configureHandler) Decode(raw json.RawMessage) (configurePayload, error) {
	p, err := decodeStrict[configurePayload](raw)
	if err != nil {
		return p, err
	}
	p.ModuleType = strings.ToLower(strings.TrimSpace(p.ModuleType))
	return p, nil
}

func (h configureHandler) Check(ctx context.Context, p configurePayload) []schema.FieldError {
	if p.ModuleType == "" {
		return []schema.FieldError{{Field: "module_type", Message: "module_type is required"}}
	}
	att, active := h.activeAttachment(ctx, p.ModuleType)
	if !active {
		return []schema.FieldError{{
			Field:   "module_type",
			Message: fmt.Sprintf("no attached %s module to configure", p.ModuleType),
		}}
	}
	return h.checkConfig(ctx, p.ModuleType, att.ModuleAddress, p.Config)
}

func (h configureHandler) Descriptor(_ context.Context, p configurePayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeModuleConfigure, map[string]interface{}{
		"module_type": p.ModuleType,
		"config":      p.Config,
	}), nil
}

// Execute updates the stored config only. Configure never touches the chain.
func (h configureHandler) Execute(ctx context.Context, p configurePayload, _ policy.Result) (gateway.Receipt, error) {
	att, active := h.activeAttachment(ctx, p.ModuleType)
	if !active {
		return gateway.Receipt{}, fmt.Errorf("no attached %s module", p.ModuleType)
	}
	att.Config = p.Config
	if _, err := h.modules.UpdateAttachment(ctx, att); err != nil {
		return gateway.Receipt{}, fmt.Errorf("update attachment config: %w", err)
	}
	return gateway.Receipt{}, nil
}

func (h configureHandler) Record(ctx context.Context, p configurePayload, receipt gateway.Receipt) error {
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeModuleConfigure,
		Metadata:  map[string]string{"module_type": p.ModuleType},
	}, receipt)
}

// upgrade

type upgradePayload struct {
	ModuleType    string                 `json:"module_type"`
	ModuleAddress string                 `json:"module_address"`
	Config        map[string]interface{} `json:"config,omitempty"`
}

type upgradeHandler struct {
	noRefresh
	deps
}

func (upgradeHandler) Operation() operation.Type { return operation.TypeModuleUpgrade }

func (upgradeHandler) Decode(raw json.RawMessage) (upgradePayload, error) {
	p, err := decodeStrict[upgradePayload](raw)
	if err != nil {
		return p, err
	}
	p.ModuleType = strings.ToLower(strings.TrimSpace(p.ModuleType))
	p.ModuleAddress = strings.TrimSpace(p.ModuleAddress)
	return p, nil
}

func (h upgradeHandler) Check(ctx context.Context, p upgradePayload) []schema.FieldError {
	if errs := h.requireDeployed(); errs != nil {
		return errs
	}
	var errs []schema.FieldError
	if p.ModuleType == "" {
		errs = append(errs, schema.FieldError{Field: "module_type", Message: "module_type is required"})
	}
	if err := token.ValidateAddress(p.ModuleAddress); err != nil {
		errs = append(errs, schema.FieldError{Field: "module_address", Message: err.Error()})
	}
	if len(errs) > 0 {
		return errs
	}
	att, active := h.activeAttachment(ctx, p.ModuleType)
	if !active {
		return []schema.FieldError{{
			Field:   "module_type",
			Message: fmt.Sprintf("no attached %s module to upgrade", p.ModuleType),
		}}
	}
	if strings.EqualFold(att.ModuleAddress, p.ModuleAddress) {
		return []schema.FieldError{{
			Field:   "module_address",
			Message: "upgrade address matches the attached module",
		}}
	}
	return h.checkConfig(ctx, p.ModuleType, p.ModuleAddress, p.Config)
}

func (h upgradeHandler) params(p upgradePayload) map[string]interface{} {
	return map[string]interface{}{
		"action":         "upgrade",
		"module_type":    p.ModuleType,
		"module_address": p.ModuleAddress,
		"config":         p.Config,
	}
}

func (h upgradeHandler) Descriptor(_ context.Context, p upgradePayload) (policy.Descriptor, error) {
	return h.descriptor(operation.TypeModuleUpgrade, h.params(p)), nil
}

func (h upgradeHandler) Execute(ctx context.Context, p upgradePayload, _ policy.Result) (gateway.Receipt, error) {
	return h.gw.SetModule(ctx, h.call(h.params(p)))
}

// Record swaps the active attachment in one transaction, then appends the
// log row.
func (h upgradeHandler) Record(ctx context.Context, p upgradePayload, receipt gateway.Receipt) error {
	if _, err := h.modules.ReplaceActiveAttachment(ctx, module.Attachment{
		ProjectID:     h.projectID,
		TokenID:       h.tok.ID,
		ModuleType:    p.ModuleType,
		ModuleAddress: p.ModuleAddress,
		Config:        p.Config,
		Active:        true,
	}); err != nil {
		h.log.WithField("token_id", h.tok.ID).Errorf("attachment replace failed: %v", err)
	}
	return h.appendLog(ctx, operation.Record{
		Operation: operation.TypeModuleUpgrade,
		Target:    p.ModuleAddress,
		Metadata:  map[string]string{"module_type": p.ModuleType},
	}, receipt)
}

package modules

import (
	"context"
	"testing"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/app/storage/memory"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/internal/workflow"
)

const (
	whitelistV1 = "0x00000000000000000000000000000000000000B1"
	whitelistV2 = "0x00000000000000000000000000000000000000B2"
)

type staticCatalog struct {
	entries map[string][]module.RegistryEntry
}

func (c staticCatalog) Versions(_ context.Context, moduleType string) ([]module.RegistryEntry, error) {
	return c.entries[moduleType], nil
}

type fixture struct {
	store *memory.Store
	gw    *gateway.Fake
	svc   *Service
	tok   token.Token
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	gw := gateway.NewFake()

	tok, err := store.CreateToken(context.Background(), token.Token{
		ProjectID:        "proj-1",
		Standard:         token.StandardERC1400,
		Name:             "Bond",
		Symbol:           "BND",
		Address:          "0x1111111111111111111111111111111111111111",
		ChainID:          "1",
		DeploymentStatus: token.DeploymentDeployed,
	})
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}

	catalog := staticCatalog{entries: map[string][]module.RegistryEntry{
		"whitelist": {
			{
				ModuleType: "whitelist",
				Version:    "2.0.0",
				Address:    whitelistV2,
				ConfigSchema: schema.Schema{Fields: []schema.FieldSpec{
					{Name: "max_holders", Type: schema.TypeNumber, Required: true},
				}},
			},
			{
				ModuleType: "whitelist",
				Version:    "1.0.0",
				Address:    whitelistV1,
				ConfigSchema: schema.Schema{Fields: []schema.FieldSpec{
					{Name: "max_holders", Type: schema.TypeNumber, Required: true},
				}},
			},
		},
	}}

	svc, err := New(Config{
		Tokens:    store,
		Ops:       store,
		Modules:   store,
		Catalog:   catalog,
		Gateway:   gw,
		Validator: policy.NewStaticValidator(),
		Wallet:    gateway.WalletContext{Address: "0x00000000000000000000000000000000000000AA", ChainID: "1"},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{store: store, gw: gw, svc: svc, tok: tok}
}

func (f *fixture) run(t *testing.T, op operation.Type, payload string) workflow.Snapshot {
	t.Helper()
	ctx := context.Background()
	inst, err := f.svc.Instance(ctx, "proj-1", "ops@example.com", f.tok, op)
	if err != nil {
		t.Fatalf("instance %s: %v", op, err)
	}
	snap, err := inst.Submit(ctx, []byte(payload))
	if err != nil {
		t.Fatalf("submit %s: %v", op, err)
	}
	if snap.State != workflow.StateValidation {
		return snap
	}
	snap, err = inst.Execute(ctx)
	if err != nil {
		t.Fatalf("execute %s: %v", op, err)
	}
	return snap
}

func TestAttachCreatesActiveAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	if snap.State != workflow.StateComplete {
		t.Fatalf("expected complete, got %s (%+v)", snap.State, snap.FieldErrors)
	}
	if got := f.gw.CallCount("setModule"); got != 1 {
		t.Fatalf("expected one setModule call, got %d", got)
	}

	att, err := f.store.GetActiveAttachment(ctx, f.tok.ID, "whitelist")
	if err != nil {
		t.Fatalf("active attachment: %v", err)
	}
	if att.ModuleAddress != whitelistV1 {
		t.Fatalf("wrong address: %s", att.ModuleAddress)
	}

	recs, _ := f.store.ListOperations(ctx, f.tok.ID, storage.OperationFilter{})
	if len(recs) != 1 || recs[0].Operation != operation.TypeModuleAttach {
		t.Fatalf("log row missing: %+v", recs)
	}
}

func TestAttachRejectsSecondActiveModule(t *testing.T) {
	f := newFixture(t)

	f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	snap := f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV2+`","config":{"max_holders":100}}`)

	if snap.State != workflow.StateInput || len(snap.FieldErrors) == 0 {
		t.Fatalf("expected field error for duplicate attach, got %+v", snap)
	}
}

func TestAttachValidatesConfigAgainstSchema(t *testing.T) {
	f := newFixture(t)

	snap := f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":"many"}}`)
	if snap.State != workflow.StateInput || len(snap.FieldErrors) == 0 {
		t.Fatalf("expected schema violation, got %+v", snap)
	}

	snap = f.run(t, operation.TypeModuleAttach,
		`{"module_type":"vesting","module_address":"`+whitelistV1+`","config":{}}`)
	if snap.State != workflow.StateInput || len(snap.FieldErrors) == 0 {
		t.Fatalf("expected unknown module type error, got %+v", snap)
	}
}

func TestDetachRequiresActiveAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.run(t, operation.TypeModuleDetach, `{"module_type":"whitelist"}`)
	if snap.State != workflow.StateInput || len(snap.FieldErrors) == 0 {
		t.Fatalf("expected field error without attachment, got %+v", snap)
	}

	f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	snap = f.run(t, operation.TypeModuleDetach, `{"module_type":"whitelist"}`)
	if snap.State != workflow.StateComplete {
		t.Fatalf("expected complete, got %s (%+v)", snap.State, snap.FieldErrors)
	}

	if _, err := f.store.GetActiveAttachment(ctx, f.tok.ID, "whitelist"); err == nil {
		t.Fatal("attachment still active after detach")
	}
}

func TestConfigureUpdatesWithoutGatewayCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	before := f.gw.CallCount("setModule")

	snap := f.run(t, operation.TypeModuleConfigure,
		`{"module_type":"whitelist","config":{"max_holders":250}}`)
	if snap.State != workflow.StateComplete {
		t.Fatalf("expected complete, got %s (%+v)", snap.State, snap.FieldErrors)
	}
	if f.gw.CallCount("setModule") != before {
		t.Fatal("configure called the gateway")
	}

	att, err := f.store.GetActiveAttachment(ctx, f.tok.ID, "whitelist")
	if err != nil {
		t.Fatalf("active attachment: %v", err)
	}
	if att.Config["max_holders"] != float64(250) {
		t.Fatalf("config not updated: %v", att.Config)
	}

	recs, _ := f.store.ListOperations(ctx, f.tok.ID, storage.OperationFilter{
		Operation: operation.TypeModuleConfigure,
	})
	if len(recs) != 1 {
		t.Fatalf("configure log row missing: %+v", recs)
	}
}

func TestConfigureRowSettlesWithoutTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	f.run(t, operation.TypeModuleConfigure,
		`{"module_type":"whitelist","config":{"max_holders":250}}`)

	recs, err := f.store.ListOperations(ctx, f.tok.ID, storage.OperationFilter{
		Operation: operation.TypeModuleConfigure,
	})
	if err != nil || len(recs) != 1 {
		t.Fatalf("configure log row: %v %+v", err, recs)
	}
	if recs[0].TransactionHash != "" {
		t.Fatalf("configure row carries a transaction hash: %q", recs[0].TransactionHash)
	}
	// Off-chain rows settle immediately so the confirmation poller never
	// asks the gateway about an empty hash.
	if recs[0].Status != operation.StatusConfirmed {
		t.Fatalf("configure row status = %s, want %s", recs[0].Status, operation.StatusConfirmed)
	}

	pending, err := f.store.ListOperationsByStatus(ctx, operation.StatusSubmitted, 10)
	if err != nil {
		t.Fatalf("list submitted: %v", err)
	}
	for _, rec := range pending {
		if rec.Operation == operation.TypeModuleConfigure {
			t.Fatal("configure row still pending confirmation")
		}
	}
}

func TestUpgradeRequiresDifferingAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run(t, operation.TypeModuleAttach,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)

	snap := f.run(t, operation.TypeModuleUpgrade,
		`{"module_type":"whitelist","module_address":"`+whitelistV1+`","config":{"max_holders":100}}`)
	if snap.State != workflow.StateInput || len(snap.FieldErrors) == 0 {
		t.Fatalf("expected same-address rejection, got %+v", snap)
	}

	snap = f.run(t, operation.TypeModuleUpgrade,
		`{"module_type":"whitelist","module_address":"`+whitelistV2+`","config":{"max_holders":100}}`)
	if snap.State != workflow.StateComplete {
		t.Fatalf("expected complete, got %s (%+v)", snap.State, snap.FieldErrors)
	}

	att, err := f.store.GetActiveAttachment(ctx, f.tok.ID, "whitelist")
	if err != nil {
		t.Fatalf("active attachment: %v", err)
	}
	if att.ModuleAddress != whitelistV2 {
		t.Fatalf("upgrade did not swap address: %s", att.ModuleAddress)
	}

	// Exactly one active row; the prior one kept but deactivated.
	all, _ := f.store.ListAttachments(ctx, f.tok.ID)
	activeCount := 0
	for _, a := range all {
		if a.Active {
			activeCount++
		}
	}
	if activeCount != 1 || len(all) != 2 {
		t.Fatalf("expected 2 rows with 1 active, got %d rows %d active", len(all), activeCount)
	}
}

func TestAttachmentsScopedToProject(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Attachments(context.Background(), "proj-2", f.tok.ID); err == nil {
		t.Fatal("expected not found for foreign project")
	}
}

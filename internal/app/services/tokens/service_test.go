package tokens

import (
	"context"
	"testing"

	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage/memory"
	"github.com/Issuance-Network/token_layer/internal/errors"
)

func newService() (*Service, *memory.Store) {
	store := memory.New()
	return New(store, store, nil), store
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing standard", CreateInput{Name: "Gold", Symbol: "GLD"}},
		{"unknown standard", CreateInput{Standard: "erc9999", Name: "Gold", Symbol: "GLD"}},
		{"missing name", CreateInput{Standard: "erc20", Symbol: "GLD"}},
		{"missing symbol", CreateInput{Standard: "erc20", Name: "Gold"}},
		{"bad decimals", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD", Decimals: 40}},
		{"bad max supply", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD", MaxSupply: "ten"}},
		{"bad address", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD", Address: "0x123"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "proj-1", tc.in); !errors.IsCode(err, errors.CodeInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCreateSeedsProperties(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Create(ctx, "proj-1", CreateInput{
		Standard:   "erc1400",
		Name:       "Bond Token",
		Symbol:     "BND",
		Decimals:   18,
		Properties: map[string]interface{}{"controllable": true},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tok.DeploymentStatus != token.DeploymentDraft {
		t.Fatalf("expected draft status, got %s", tok.DeploymentStatus)
	}
	if tok.TotalSupply != "0" {
		t.Fatalf("expected zero supply, got %s", tok.TotalSupply)
	}

	recs, err := svc.Properties(ctx, "proj-1", tok.ID)
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one properties record, got %d", len(recs))
	}
	if recs[0].Fields["controllable"] != true {
		t.Fatalf("seeded field missing: %v", recs[0].Fields)
	}
}

func TestCreateWithAddressIsDeployed(t *testing.T) {
	svc, _ := newService()

	tok, err := svc.Create(context.Background(), "proj-1", CreateInput{
		Standard: "erc20",
		Name:     "Gold",
		Symbol:   "GLD",
		Decimals: 18,
		Address:  "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !tok.Deployed() {
		t.Fatalf("expected deployed token, got status %s address %s", tok.DeploymentStatus, tok.Address)
	}
}

func TestGetScopesByProject(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Create(ctx, "proj-1", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "proj-2", tok.ID); !errors.IsNotFound(err) {
		t.Fatalf("expected not found for foreign project, got %v", err)
	}
	if _, err := svc.Get(ctx, "proj-1", tok.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestUpdateImmutableAndMutableFields(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Create(ctx, "proj-1", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Gold Reserve"
	paused := true
	updated, err := svc.Update(ctx, "proj-1", tok.ID, UpdateInput{Name: &name, Paused: &paused})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Gold Reserve" || !updated.Paused {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Standard != token.StandardERC20 {
		t.Fatalf("standard changed: %s", updated.Standard)
	}

	empty := "  "
	if _, err := svc.Update(ctx, "proj-1", tok.ID, UpdateInput{Name: &empty}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for empty name, got %v", err)
	}

	bad := "soonish"
	if _, err := svc.Update(ctx, "proj-1", tok.ID, UpdateInput{DeploymentStatus: &bad}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for bad status, got %v", err)
	}
}

func TestSetPropertyField(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Create(ctx, "proj-1", CreateInput{Standard: "erc3525", Name: "Slot Token", Symbol: "SLT"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := svc.SetPropertyField(ctx, "proj-1", tok.ID, 0, "slot_decimals", 6)
	if err != nil {
		t.Fatalf("set field: %v", err)
	}
	if rec.Fields["slot_decimals"] != 6 {
		t.Fatalf("field not set: %v", rec.Fields)
	}

	if _, err := svc.SetPropertyField(ctx, "proj-1", tok.ID, 0, "  ", 1); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for blank field, got %v", err)
	}
	if _, err := svc.SetPropertyField(ctx, "proj-1", tok.ID, 9, "x", 1); !errors.IsNotFound(err) {
		t.Fatalf("expected not found for missing record, got %v", err)
	}
}

func TestRecordSupplyDelta(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Create(ctx, "proj-1", CreateInput{Standard: "erc20", Name: "Gold", Symbol: "GLD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tok, err = svc.RecordSupplyDelta(ctx, tok.ID, "1000", false)
	if err != nil {
		t.Fatalf("mint delta: %v", err)
	}
	if tok.TotalSupply != "1000" {
		t.Fatalf("expected supply 1000, got %s", tok.TotalSupply)
	}

	tok, err = svc.RecordSupplyDelta(ctx, tok.ID, "400", true)
	if err != nil {
		t.Fatalf("burn delta: %v", err)
	}
	if tok.TotalSupply != "600" {
		t.Fatalf("expected supply 600, got %s", tok.TotalSupply)
	}

	if _, err := svc.RecordSupplyDelta(ctx, tok.ID, "601", true); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for underflow, got %v", err)
	}
}

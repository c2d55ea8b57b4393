package panels

import (
	"context"
	"testing"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage/memory"
)

type storeGetter struct {
	store *memory.Store
}

func (g storeGetter) Get(ctx context.Context, projectID, id string) (token.Token, error) {
	return g.store.GetToken(ctx, id)
}

func seedToken(t *testing.T, store *memory.Store, std token.Standard, deployed bool) token.Token {
	t.Helper()
	tok := token.Token{
		ProjectID:        "proj-1",
		Standard:         std,
		Name:             "Test",
		Symbol:           "TST",
		DeploymentStatus: token.DeploymentDraft,
	}
	if deployed {
		tok.DeploymentStatus = token.DeploymentDeployed
		tok.Address = "0x1111111111111111111111111111111111111111"
	}
	tok, err := store.CreateToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return tok
}

func hasOperation(p Panel, op operation.Type) (present, enabled bool) {
	for _, e := range p.Operations {
		if e.Operation == op {
			return true, e.Enabled
		}
	}
	return false, false
}

func TestStandardMatrix(t *testing.T) {
	store := memory.New()
	svc := New(nil, storeGetter{store}, nil)
	ctx := context.Background()

	cases := []struct {
		standard token.Standard
		op       operation.Type
		want     bool
	}{
		{token.StandardERC20, operation.TypeBlock, true},
		{token.StandardERC1400, operation.TypeBlock, true},
		{token.StandardERC721, operation.TypeBlock, false},
		{token.StandardERC1155, operation.TypeUnblock, false},
		{token.StandardERC20, operation.TypeUpdateMaxSupply, true},
		{token.StandardERC1400, operation.TypeUpdateMaxSupply, false},
		{token.StandardERC4626, operation.TypeUpdateMaxSupply, true},
		{token.StandardERC4626, operation.TypeLock, false},
		{token.StandardERC3525, operation.TypeMint, true},
	}
	for _, tc := range cases {
		tok := seedToken(t, store, tc.standard, true)
		panel, err := svc.ForToken(ctx, "proj-1", tok.ID)
		if err != nil {
			t.Fatalf("%s panel: %v", tc.standard, err)
		}
		present, _ := hasOperation(panel, tc.op)
		if present != tc.want {
			t.Errorf("%s %s: present=%v, want %v", tc.standard, tc.op, present, tc.want)
		}
	}
}

func TestNonDeployedTokenDisablesEverything(t *testing.T) {
	store := memory.New()
	svc := New(nil, storeGetter{store}, nil)
	tok := seedToken(t, store, token.StandardERC20, false)

	panel, err := svc.ForToken(context.Background(), "proj-1", tok.ID)
	if err != nil {
		t.Fatalf("panel: %v", err)
	}
	if panel.Deployed {
		t.Fatal("panel reports deployed for a draft token")
	}
	if panel.Modules {
		t.Fatal("modules enabled for a draft token")
	}
	for _, e := range panel.Operations {
		if e.Enabled {
			t.Errorf("%s enabled on a draft token", e.Operation)
		}
		if e.Reason == "" {
			t.Errorf("%s missing disabled reason", e.Operation)
		}
	}
}

func TestAllowsCoversModuleOperations(t *testing.T) {
	svc := New(nil, nil, nil)

	if !svc.Allows(token.StandardERC20, operation.TypeModuleAttach) {
		t.Fatal("erc20 should allow module attach")
	}
	if svc.Allows(token.StandardERC20, operation.Type("self_destruct")) {
		t.Fatal("unknown operation allowed")
	}
	if svc.Allows(token.Standard("erc9999"), operation.TypeMint) {
		t.Fatal("unknown standard allowed")
	}
}

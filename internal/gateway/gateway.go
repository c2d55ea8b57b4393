// Package gateway defines the boundary to the external transaction gateway
// that encodes and submits on-chain calls. Contract call encoding stays on
// the gateway side; this package carries the operation method set, the
// explicit wallet context, and client implementations.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Issuance-Network/token_layer/internal/policy"
)

// WalletContext identifies the operator wallet an operation executes under.
// It is always passed explicitly; nothing in the service reads ambient wallet
// state.
type WalletContext struct {
	Address    string `json:"address"`
	ChainID    string `json:"chain_id"`
	KeyVersion string `json:"key_version,omitempty"`
}

// Validate checks the wallet context is usable.
func (w WalletContext) Validate() error {
	if strings.TrimSpace(w.Address) == "" {
		return fmt.Errorf("wallet address is required")
	}
	if !common.IsHexAddress(w.Address) {
		return fmt.Errorf("wallet address %q is not a valid hex address", w.Address)
	}
	if strings.TrimSpace(w.ChainID) == "" {
		return fmt.Errorf("wallet chain id is required")
	}
	return nil
}

// Call is a named-method gateway invocation.
type Call struct {
	Wallet   WalletContext          `json:"wallet"`
	Contract string                 `json:"contract"`
	ChainID  string                 `json:"chain_id"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// Submission is a descriptor-based direct submission through the
// wallet-nonce-aware path.
type Submission struct {
	Wallet     WalletContext     `json:"wallet"`
	Descriptor policy.Descriptor `json:"descriptor"`
	Urgency    policy.Urgency    `json:"urgency,omitempty"`
}

// Receipt is the gateway's answer to a successful submission.
type Receipt struct {
	TransactionHash string          `json:"transaction_hash"`
	NonceUsed       int64           `json:"nonce_used"`
	GasUsed         string          `json:"gas_used,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// TransactionStatus reports the chain-side fate of a submitted transaction.
type TransactionStatus struct {
	Done       bool
	Success    bool
	Message    string
	RetryAfter time.Duration
}

// Gateway is the operation method set exposed by the transaction gateway.
type Gateway interface {
	Mint(ctx context.Context, call Call) (Receipt, error)
	Burn(ctx context.Context, call Call) (Receipt, error)
	Pause(ctx context.Context, call Call) (Receipt, error)
	Unpause(ctx context.Context, call Call) (Receipt, error)
	SetModule(ctx context.Context, call Call) (Receipt, error)
	GrantRole(ctx context.Context, call Call) (Receipt, error)
	RevokeRole(ctx context.Context, call Call) (Receipt, error)
	Unlock(ctx context.Context, call Call) (Receipt, error)
	Unblock(ctx context.Context, call Call) (Receipt, error)
	UpdateMaxSupply(ctx context.Context, call Call) (Receipt, error)

	// Submit sends a raw descriptor through the direct submission path used
	// by operations without a named method (lock, block).
	Submit(ctx context.Context, sub Submission) (Receipt, error)
}

// StatusSource looks up the fate of a previously submitted transaction.
type StatusSource interface {
	TransactionStatus(ctx context.Context, txHash string) (TransactionStatus, error)
}

package operation

import "time"

// Type identifies a token operation.
type Type string

const (
	TypeMint            Type = "mint"
	TypeBurn            Type = "burn"
	TypePause           Type = "pause"
	TypeUnpause         Type = "unpause"
	TypeLock            Type = "lock"
	TypeUnlock          Type = "unlock"
	TypeBlock           Type = "block"
	TypeUnblock         Type = "unblock"
	TypeGrantRole       Type = "grant_role"
	TypeRevokeRole      Type = "revoke_role"
	TypeUpdateMaxSupply Type = "update_max_supply"
	TypeModuleAttach    Type = "module_attach"
	TypeModuleDetach    Type = "module_detach"
	TypeModuleConfigure Type = "module_configure"
	TypeModuleUpgrade   Type = "module_upgrade"
)

// Types lists every operation the service can run.
func Types() []Type {
	return []Type{
		TypeMint, TypeBurn, TypePause, TypeUnpause,
		TypeLock, TypeUnlock, TypeBlock, TypeUnblock,
		TypeGrantRole, TypeRevokeRole, TypeUpdateMaxSupply,
		TypeModuleAttach, TypeModuleDetach, TypeModuleConfigure, TypeModuleUpgrade,
	}
}

// Valid reports whether t names a known operation.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Status tracks an operation log row through its lifecycle. Rows written by
// the executor start at StatusSubmitted (the transaction hash is known by
// then); confirmation tracking moves them to confirmed or failed. Pending is
// reserved for intent rows written before submission by external writers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Record is one append-only operation log row.
type Record struct {
	ID              string
	ProjectID       string
	TokenID         string
	Operation       Type
	Initiator       string
	Target          string
	Amount          string
	Partition       string
	Role            string
	Reason          string
	TransactionHash string
	NonceUsed       int64
	Status          Status
	Message         string
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

package token

import "time"

// Standard identifies the contract family a token is built on.
type Standard string

const (
	StandardERC20   Standard = "erc20"
	StandardERC721  Standard = "erc721"
	StandardERC1155 Standard = "erc1155"
	StandardERC1400 Standard = "erc1400"
	StandardERC3525 Standard = "erc3525"
	StandardERC4626 Standard = "erc4626"
)

// Standards lists every supported contract family.
func Standards() []Standard {
	return []Standard{
		StandardERC20,
		StandardERC721,
		StandardERC1155,
		StandardERC1400,
		StandardERC3525,
		StandardERC4626,
	}
}

// Valid reports whether the standard is one of the supported families.
func (s Standard) Valid() bool {
	switch s {
	case StandardERC20, StandardERC721, StandardERC1155,
		StandardERC1400, StandardERC3525, StandardERC4626:
		return true
	}
	return false
}

// DeploymentStatus tracks a token's progress toward an on-chain address.
type DeploymentStatus string

const (
	DeploymentDraft     DeploymentStatus = "draft"
	DeploymentDeploying DeploymentStatus = "deploying"
	DeploymentDeployed  DeploymentStatus = "deployed"
	DeploymentFailed    DeploymentStatus = "failed"
)

// Token is the master record for a managed instrument. Supply figures are
// decimal strings in raw base units; MaxSupply "0" means unlimited.
type Token struct {
	ID               string
	ProjectID        string
	Standard         Standard
	Name             string
	Symbol           string
	Decimals         int
	TotalSupply      string
	MaxSupply        string
	Address          string
	ChainID          string
	DeploymentStatus DeploymentStatus
	Paused           bool
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Deployed reports whether the token has a live on-chain contract.
func (t Token) Deployed() bool {
	return t.DeploymentStatus == DeploymentDeployed && t.Address != ""
}

// PropertiesRecord holds the per-standard configuration fields of a token as a
// flat field map, mutated field by field. RecordIndex distinguishes multiple
// records where a standard allows them (partitioned standards).
type PropertiesRecord struct {
	ID          string
	TokenID     string
	Standard    Standard
	RecordIndex int
	Fields      map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

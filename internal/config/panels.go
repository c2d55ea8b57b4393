package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PanelsConfig is the standard → enabled operations matrix served by the
// panels service.
type PanelsConfig struct {
	Standards map[string]*StandardPanel `yaml:"standards"`
}

// StandardPanel lists what a token standard supports.
type StandardPanel struct {
	Operations []string `yaml:"operations"`
	Modules    bool     `yaml:"modules"`
}

// LoadPanelsConfig loads the panels matrix from config/panels.yaml.
func LoadPanelsConfig() (*PanelsConfig, error) {
	return LoadPanelsConfigFromPath(filepath.Join("config", "panels.yaml"))
}

// LoadPanelsConfigFromPath loads the panels matrix from a specific path.
func LoadPanelsConfigFromPath(path string) (*PanelsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read panels config: %w", err)
	}

	var cfg PanelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse panels config: %w", err)
	}

	for std, panel := range cfg.Standards {
		if panel == nil || len(panel.Operations) == 0 {
			return nil, fmt.Errorf("standard %s: operations list is required", std)
		}
	}

	return &cfg, nil
}

// LoadPanelsConfigOrDefault loads the panels matrix, or returns the compiled
// defaults if the file is absent.
func LoadPanelsConfigOrDefault() *PanelsConfig {
	cfg, err := LoadPanelsConfig()
	if err != nil {
		return DefaultPanelsConfig()
	}
	return cfg
}

// DefaultPanelsConfig returns the compiled-in matrix. Block/unblock stay
// limited to the transfer-restricted standards and max-supply updates to the
// fungible ERC-20 family; vault standards carry the administrative subset.
func DefaultPanelsConfig() *PanelsConfig {
	return &PanelsConfig{
		Standards: map[string]*StandardPanel{
			"erc20": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"lock", "unlock", "block", "unblock",
					"grant_role", "revoke_role", "update_max_supply",
				},
				Modules: true,
			},
			"erc721": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"lock", "unlock", "grant_role", "revoke_role",
				},
				Modules: true,
			},
			"erc1155": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"lock", "unlock", "grant_role", "revoke_role",
				},
				Modules: true,
			},
			"erc1400": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"lock", "unlock", "block", "unblock",
					"grant_role", "revoke_role",
				},
				Modules: true,
			},
			"erc3525": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"lock", "unlock", "grant_role", "revoke_role",
				},
				Modules: true,
			},
			"erc4626": {
				Operations: []string{
					"mint", "burn", "pause", "unpause",
					"grant_role", "revoke_role", "update_max_supply",
				},
				Modules: true,
			},
		},
	}
}

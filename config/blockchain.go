package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// BlockchainConfig stores common ledger configuration across all chain types
type BlockchainConfig struct {
	// --- Chain Type Selection ---
	ChainType string `yaml:"chain_type"` // "ethereum", etc.

	// --- Common Behavior Configuration ---
	RequiredConfirmations uint64 `yaml:"required_confirmations"` // Confirmations before a send is final
	TimeoutSeconds        int    `yaml:"timeout_seconds"`        // Timeout for single ledger operations

	// --- Chain-specific Configuration ---
	// This is loaded separately based on chain type.
	ChainSpecific any `yaml:"-"`
}

// SetDefaults sets reasonable default values for the ledger configuration
func (c *BlockchainConfig) SetDefaults() {
	if c.RequiredConfirmations == 0 {
		c.RequiredConfirmations = 1
		fmt.Printf("Warning: blockchain.required_confirmations not set, defaulting to %d\n", c.RequiredConfirmations)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
		fmt.Printf("Warning: blockchain.timeout_seconds not set or invalid, defaulting to %d\n", c.TimeoutSeconds)
	}
}

// LoadBlockchainConfig loads ledger configuration from the specified YAML file path
func LoadBlockchainConfig(path string) (*BlockchainConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}

	var cfg BlockchainConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

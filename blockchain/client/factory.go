package blockchain

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"vaultsync/blockchain/client/ethereum"
	"vaultsync/config"
)

var _ LedgerClient = (*ethereum.Client)(nil) // Compile-time interface check

// ChainType represents the type of ledger client
type ChainType string

const (
	Ethereum ChainType = "ethereum"
	// Future chain types can be added here.
)

// LoadChainSpecificConfig loads chain-specific configuration based on chain type
func LoadChainSpecificConfig(chainType string, configDir string) (any, error) {
	switch ChainType(chainType) {
	case Ethereum, "":
		// Default to Ethereum if not specified
		ethereumConfigPath := filepath.Join(configDir, "clients", "ethereum.yml")
		return ethereum.LoadEthereumConfig(ethereumConfigPath)
	default:
		return nil, fmt.Errorf("unsupported chain type: %s", chainType)
	}
}

// NewLedgerClient creates a ledger client based on the configuration
func NewLedgerClient(cfg *config.BlockchainConfig, logger *logrus.Logger) (LedgerClient, error) {
	switch ChainType(cfg.ChainType) {
	case Ethereum, "":
		return ethereum.NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported chain type: %s", cfg.ChainType)
	}
}

// NewLedgerClientFromFile creates a ledger client from configuration files
func NewLedgerClientFromFile(configPath string, logger *logrus.Logger) (LedgerClient, error) {
	cfg, err := config.LoadBlockchainConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}

	configDir := filepath.Dir(configPath)
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.ChainType, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	return NewLedgerClient(cfg, logger)
}

package ethereum

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// EthereumConfig stores Ethereum-specific configuration
type EthereumConfig struct {
	// --- Node Connection Required ---
	// RPCURL must be a websocket endpoint; log subscriptions do not work
	// over plain HTTP.
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`

	// Transaction Signing Credentials
	PrivateKeyHex  string `yaml:"private_key_hex"`
	PrivateKeyPath string `yaml:"private_key_path"` // Alternative to private_key_hex

	// --- Contract Addresses Required ---
	VaultFactoryAddress string `yaml:"vault_factory_address"`
	TokenAddress        string `yaml:"token_address"`

	// --- Transaction Parameters ---
	GasLimit uint64 `yaml:"gas_limit"`
}

// LoadEthereumConfig loads Ethereum configuration from the specified YAML file path
func LoadEthereumConfig(path string) (*EthereumConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of Ethereum config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Ethereum config file '%s': %w", absPath, err)
	}

	var cfg EthereumConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ethereum YAML config file: %w", err)
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ethereum config: rpc_url is required")
	}
	if cfg.VaultFactoryAddress == "" || cfg.TokenAddress == "" {
		return nil, fmt.Errorf("ethereum config: vault_factory_address and token_address are required")
	}

	return &cfg, nil
}

// privateKeyHex resolves the signing key material from either config field.
func (c *EthereumConfig) privateKeyHex() (string, error) {
	if c.PrivateKeyHex != "" {
		return c.PrivateKeyHex, nil
	}
	if c.PrivateKeyPath == "" {
		return "", fmt.Errorf("ethereum config: one of private_key_hex or private_key_path is required")
	}
	data, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read private key file '%s': %w", c.PrivateKeyPath, err)
	}
	return strings.TrimSpace(string(data)), nil
}

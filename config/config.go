package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration
type Config struct {
	Session    *SessionConfig
	Blockchain *BlockchainConfig
}

// LoadConfig loads all configuration files from a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	// Load session config
	sessionPath := filepath.Join(absDir, "session.defaults.yml")
	if _, err := os.Stat(sessionPath); err == nil {
		sessionCfg, err := LoadSessionConfig(sessionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load session config: %w", err)
		}
		config.Session = sessionCfg
	}

	// Load blockchain config
	blockchainPath := filepath.Join(absDir, "client_config.yml")
	if _, err := os.Stat(blockchainPath); err == nil {
		blockchainCfg, err := LoadBlockchainConfig(blockchainPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load blockchain config: %w", err)
		}
		config.Blockchain = blockchainCfg
	}

	return config, nil
}

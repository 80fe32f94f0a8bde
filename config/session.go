package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ReconcilerConfig defines configuration for the replay/live event merge
type ReconcilerConfig struct {
	LiveBuffer     int    `yaml:"live_buffer"`      // Buffer size of the live event channel
	ReplayBatch    uint64 `yaml:"replay_batch"`     // Max block span per historical query
	CachePath      string `yaml:"cache_path"`       // Badger directory for the local event cache; empty disables caching
	MirrorApplied  bool   `yaml:"mirror_applied"`   // Publish applied mutations to the export producer
	ResubscribeGap string `yaml:"resubscribe_gap"`  // Delay before re-establishing a dropped subscription
}

// SetDefaults sets reasonable default values for reconciler configuration
func (c *ReconcilerConfig) SetDefaults() {
	if c.LiveBuffer <= 0 {
		c.LiveBuffer = 64
		fmt.Printf("Warning: reconciler.live_buffer not set or invalid, defaulting to %d\n", c.LiveBuffer)
	}
	if c.ReplayBatch == 0 {
		c.ReplayBatch = 10000
	}
	if c.ResubscribeGap == "" {
		c.ResubscribeGap = "5s"
	}
}

// SessionConfig defines all configuration for a vault session engine
type SessionConfig struct {
	// Database Configuration (transaction journal)
	Database DatabaseConfig `yaml:"database"`

	// Reconciler Configuration
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	// Content store + export configuration
	ContentStore ContentStoreConfig `yaml:"content_store"`
	Export       ExportConfig       `yaml:"export"`

	// Ledger Client Configuration
	BlockchainClientConfigPath string `yaml:"blockchain_client_config_path"`
}

// LoadSessionConfig loads configuration from the specified YAML file path
func LoadSessionConfig(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg SessionConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.Reconciler.SetDefaults()
	cfg.ContentStore.SetDefaults()
	cfg.Export.SetDefaults()

	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	return &cfg, nil
}

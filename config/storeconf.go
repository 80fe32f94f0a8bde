package config

import (
	"fmt"
	"time"
)

// ContentStoreConfig defines configuration for the content-addressable store
type ContentStoreConfig struct {
	APIAddr       string `yaml:"api_addr"`       // IPFS HTTP API address, e.g. "localhost:5001"
	UploadTimeout string `yaml:"upload_timeout"` // Timeout for a single upload
}

// SetDefaults sets reasonable default values for content store configuration
func (c *ContentStoreConfig) SetDefaults() {
	if c.APIAddr == "" {
		c.APIAddr = "localhost:5001"
		fmt.Printf("Warning: content_store.api_addr not set, defaulting to %s\n", c.APIAddr)
	}
	if c.UploadTimeout == "" {
		c.UploadTimeout = "30s"
	}
}

// UploadTimeoutDuration parses the upload timeout, falling back to 30s.
func (c *ContentStoreConfig) UploadTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.UploadTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ExportConfig defines configuration for mirroring applied mutations to a
// Kafka topic for downstream audit or notification consumers.
type ExportConfig struct {
	Brokers      []string      `yaml:"brokers"`       // e.g. ["kafka1:9092"]; empty disables export
	Topic        string        `yaml:"topic"`         // Topic to publish mutation records to
	RequiredAcks string        `yaml:"required_acks"` // none/one/all
	Async        bool          `yaml:"async"`         // Fire-and-forget publishing
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// Enabled reports whether mutation export is configured.
func (c *ExportConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// SetDefaults sets reasonable default values for export configuration
func (c *ExportConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "one"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

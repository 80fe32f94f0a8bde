package config

import "fmt"

// DatabaseConfig defines the configuration of the transaction journal database.
// The journal is optional; an empty DSN selects the in-memory journal.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" json:"dsn"`                         // PostgreSQL connection string
	MaxConnections int    `yaml:"max_connections" json:"max_connections"` // Maximum number of connections
	MinConnections int    `yaml:"min_connections" json:"min_connections"` // Minimum number of connections
	MaxIdleTime    string `yaml:"max_idle_time" json:"max_idle_time"`     // Maximum time a connection can be idle
	MaxLifetime    string `yaml:"max_lifetime" json:"max_lifetime"`       // Maximum lifetime of a connection
}

// SetDefaults sets sensible default values for the database configuration
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
		fmt.Printf("Warning: database.max_connections not set or invalid, defaulting to %d\n", c.MaxConnections)
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 2
		fmt.Printf("Warning: database.min_connections not set or invalid, defaulting to %d\n", c.MinConnections)
	}
	if c.MaxIdleTime == "" {
		c.MaxIdleTime = "1h"
	}
	if c.MaxLifetime == "" {
		c.MaxLifetime = "24h"
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		// In-memory journal, nothing to validate.
		return nil
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min_connections (%d) cannot be greater than max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	return nil
}

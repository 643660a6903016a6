// Package config loads the application configuration. The loaded Config is
// an immutable snapshot for the session; nothing mutates it after startup.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Query    QueryConfig    `mapstructure:"query"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds connection defaults.
type DatabaseConfig struct {
	DefaultHost          string        `mapstructure:"default_host"`
	DefaultPort          int           `mapstructure:"default_port"`
	DefaultAuthDB        string        `mapstructure:"default_auth_db"`
	AutoConnectLocalhost bool          `mapstructure:"auto_connect_localhost"`
	AutoConnectDelay     time.Duration `mapstructure:"auto_connect_delay"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout"`
	MaxPoolSize          uint64        `mapstructure:"max_pool_size"`
}

// QueryConfig holds query execution defaults.
type QueryConfig struct {
	DefaultLimit int64 `mapstructure:"default_limit"`
	MaxLimit     int64 `mapstructure:"max_limit"`
	Workers      int64 `mapstructure:"workers"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Database.DefaultHost == "" {
		return fmt.Errorf("database.default_host cannot be empty")
	}
	if c.Database.DefaultPort < 1 || c.Database.DefaultPort > 65535 {
		return fmt.Errorf("database.default_port %d outside [1, 65535]", c.Database.DefaultPort)
	}
	if c.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("database.connect_timeout must be positive")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive")
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit %d outside [1, %d]", c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.Query.MaxLimit < 1 {
		return fmt.Errorf("query.max_limit must be positive")
	}
	if c.Query.Workers < 1 {
		return fmt.Errorf("query.workers must be positive")
	}
	return nil
}

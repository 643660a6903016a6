package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from file with environment overrides. A missing
// config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mongoscope")
		v.AddConfigPath("/etc/mongoscope")
	}

	setDefaults(v)

	v.SetEnvPrefix("MONGOSCOPE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// LoadOrDefault loads configuration or falls back to defaults.
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.default_host", "localhost")
	v.SetDefault("database.default_port", 27017)
	v.SetDefault("database.default_auth_db", "admin")
	v.SetDefault("database.auto_connect_localhost", false)
	v.SetDefault("database.auto_connect_delay", "2s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.query_timeout", "30s")
	v.SetDefault("database.max_pool_size", 50)

	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_limit", 1000)
	v.SetDefault("query.workers", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DefaultHost:      "localhost",
			DefaultPort:      27017,
			DefaultAuthDB:    "admin",
			AutoConnectDelay: 2 * time.Second,
			ConnectTimeout:   10 * time.Second,
			QueryTimeout:     30 * time.Second,
			MaxPoolSize:      50,
		},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     1000,
			Workers:      4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

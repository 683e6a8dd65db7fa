// Package config resolves the two layers of s4 configuration: server
// settings (port, logging, rate limits) loaded through viper, and the
// per-instance credential pair persisted under the instance directory.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is the s4 release version reported by the CLI and the
// identity endpoint.
const Version = "0.3.0"

// Config holds the server-level settings for a running s4 instance.
// The instance credential pair lives in InstanceConfig, not here.
type Config struct {
	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`

		RateLimit struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`

		// MaxBodyBytes bounds the size of request bodies accepted by
		// the SQL endpoint.
		MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	} `mapstructure:"api"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// InstanceDir is the private storage area holding config.json and
	// the default database file.
	InstanceDir string `mapstructure:"instance_dir"`

	// InMemory forces a transient in-memory database for this session,
	// regardless of the persisted instance configuration.
	InMemory bool `mapstructure:"in_memory"`
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.rate_limit.requests_per_second", 100)
	v.SetDefault("api.rate_limit.burst", 100)
	v.SetDefault("api.max_body_bytes", 1<<20) // 1MB
	v.SetDefault("log.level", "info")
	v.SetDefault("instance_dir", "./instance")
	v.SetDefault("in_memory", false)
}

// Load loads server settings from s4.yaml (if present) and S4_*
// environment variables, falling back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("s4")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("S4")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
		// No config file, defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks the settings for values the server cannot run with.
func validate(cfg *Config) error {
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("api.rate_limit.requests_per_second must be positive, got %d", cfg.API.RateLimit.RequestsPerSecond)
	}
	if cfg.API.RateLimit.Burst < 1 {
		return fmt.Errorf("api.rate_limit.burst must be positive, got %d", cfg.API.RateLimit.Burst)
	}
	if cfg.API.MaxBodyBytes < 1 {
		return fmt.Errorf("api.max_body_bytes must be positive, got %d", cfg.API.MaxBodyBytes)
	}
	if cfg.InstanceDir == "" {
		return fmt.Errorf("instance_dir must not be empty")
	}
	return nil
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

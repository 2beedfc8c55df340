// Package config holds all polytrope configuration as typed structs, one file
// per concern. Configuration loads from a YAML file with environment
// overrides; defaults are usable without any file present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all polytrope configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Phase classification tolerance bands
	Tolerance ToleranceConfig `yaml:"tolerance"`

	// Edit arbitration / debounce
	Arbiter ArbiterConfig `yaml:"arbiter"`

	// Property oracle
	Oracle OracleConfig `yaml:"oracle"`

	// Session history persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "polytrope",
		Version: "1.0.0",

		Tolerance: ToleranceConfig{
			TemperatureBand: 0.05,
			PressureBand:    0.005,
		},

		Arbiter: ArbiterConfig{
			SettleInterval: "250ms",
			ResolveTimeout: "10s",
		},

		Oracle: OracleConfig{
			Mode:          "table",
			BaseURL:       "http://localhost:8090",
			Timeout:       "15s",
			MaxConcurrent: 4,
			MinInterval:   "50ms",
			TablePath:     "", // empty means the embedded saturated-water table
		},

		Store: StoreConfig{
			DatabasePath: "data/polytrope.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("POLYTROPE_ORACLE_URL"); url != "" {
		c.Oracle.BaseURL = url
		c.Oracle.Mode = "http"
	}
	if path := os.Getenv("POLYTROPE_TABLE"); path != "" {
		c.Oracle.TablePath = path
	}
	if path := os.Getenv("POLYTROPE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if err := c.Tolerance.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return err
	}
	if _, err := c.Arbiter.GetSettleInterval(); err != nil {
		return fmt.Errorf("invalid settle_interval: %w", err)
	}
	if _, err := c.Arbiter.GetResolveTimeout(); err != nil {
		return fmt.Errorf("invalid resolve_timeout: %w", err)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

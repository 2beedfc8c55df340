package config

import (
	"fmt"
	"time"
)

// OracleConfig configures the property oracle collaborator.
type OracleConfig struct {
	// Mode selects the oracle backend: "table" for the bundled
	// saturated-water table, "http" for an external IAPWS-style service.
	Mode string `yaml:"mode"`

	// BaseURL of the external property service (http mode).
	BaseURL string `yaml:"base_url"`

	// Timeout for one lookup round trip (http mode).
	Timeout string `yaml:"timeout"`

	// MaxConcurrent caps simultaneous in-flight lookups (http mode).
	MaxConcurrent int `yaml:"max_concurrent"`

	// MinInterval spaces consecutive requests (http mode).
	MinInterval string `yaml:"min_interval"`

	// TablePath points at a saturated-water CSV to use instead of the
	// embedded table (table mode). The file is watched and hot-reloaded.
	TablePath string `yaml:"table_path"`
}

// Validate checks oracle configuration consistency.
func (o OracleConfig) Validate() error {
	switch o.Mode {
	case "", "table", "http":
	default:
		return fmt.Errorf("oracle.mode must be \"table\" or \"http\", got %q", o.Mode)
	}
	if o.Mode == "http" && o.BaseURL == "" {
		return fmt.Errorf("oracle.base_url required in http mode")
	}
	if o.MaxConcurrent < 0 {
		return fmt.Errorf("oracle.max_concurrent must not be negative")
	}
	if _, err := o.GetTimeout(); err != nil {
		return fmt.Errorf("invalid oracle.timeout: %w", err)
	}
	if _, err := o.GetMinInterval(); err != nil {
		return fmt.Errorf("invalid oracle.min_interval: %w", err)
	}
	return nil
}

// GetTimeout returns the lookup timeout as a duration.
func (o OracleConfig) GetTimeout() (time.Duration, error) {
	return parseDuration(o.Timeout, 15*time.Second)
}

// GetMinInterval returns the request spacing as a duration.
func (o OracleConfig) GetMinInterval() (time.Duration, error) {
	return parseDuration(o.MinInterval, 50*time.Millisecond)
}

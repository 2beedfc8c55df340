package config

import "fmt"

// ToleranceConfig sets the absolute tolerance bands around the saturation
// curve used by the phase classifier. Floating-point round trips through the
// oracle and user-entered decimals land near, not on, the curve; the band
// absorbs that. The widths are tuning constants, never derived from state,
// and must not be zero.
type ToleranceConfig struct {
	// TemperatureBand is the half-width of the saturated band on the
	// temperature axis, in the substance's temperature unit.
	TemperatureBand float64 `yaml:"temperature_band"`

	// PressureBand is the half-width on the pressure axis, in the
	// substance's pressure unit.
	PressureBand float64 `yaml:"pressure_band"`
}

// Validate rejects zero or negative band widths. Exact equality comparison on
// floating data is unreliable, so a zero band is a misconfiguration.
func (t ToleranceConfig) Validate() error {
	if t.TemperatureBand <= 0 {
		return fmt.Errorf("tolerance.temperature_band must be positive, got %g", t.TemperatureBand)
	}
	if t.PressureBand <= 0 {
		return fmt.Errorf("tolerance.pressure_band must be positive, got %g", t.PressureBand)
	}
	return nil
}

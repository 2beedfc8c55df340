package config

import "time"

// ArbiterConfig configures the edit arbiter. The settle interval affects
// responsiveness only; ordering correctness comes from sequence numbers, not
// the wall clock.
type ArbiterConfig struct {
	// SettleInterval is how long a field must stay quiet before its last
	// keystroke becomes the authoritative settle event.
	SettleInterval string `yaml:"settle_interval"`

	// ResolveTimeout bounds a single resolution, including oracle round
	// trips.
	ResolveTimeout string `yaml:"resolve_timeout"`
}

// GetSettleInterval returns the settle interval as a duration.
func (a ArbiterConfig) GetSettleInterval() (time.Duration, error) {
	return parseDuration(a.SettleInterval, 250*time.Millisecond)
}

// GetResolveTimeout returns the resolution timeout as a duration.
func (a ArbiterConfig) GetResolveTimeout() (time.Duration, error) {
	return parseDuration(a.ResolveTimeout, 10*time.Second)
}

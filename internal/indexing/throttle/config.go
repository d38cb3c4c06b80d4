package throttle

import "time"

// AdaptiveConfig holds configuration for adaptive polling of a network head.
type AdaptiveConfig struct {
	// Enabled controls whether adaptive throttling is active
	Enabled bool

	// Interval bounds
	MinPollInterval time.Duration // Fastest polling rate (default: 200ms)
	MaxPollInterval time.Duration // Slowest polling rate (default: 60s)

	// Lag thresholds for interval adjustment
	LagNormalThreshold uint64 // Below this = half interval (default: 5)
	LagBurstThreshold  uint64 // Above this = max speed (default: 50)
}

// DefaultConfig returns sensible defaults for adaptive throttling.
func DefaultConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Enabled:            true,
		MinPollInterval:    200 * time.Millisecond,
		MaxPollInterval:    60 * time.Second,
		LagNormalThreshold: 5,
		LagBurstThreshold:  50,
	}
}

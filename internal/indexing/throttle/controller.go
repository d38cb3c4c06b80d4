package throttle

import (
	"time"
)

// AdaptiveController computes the realtime polling interval from how far the
// local tip trails the network head.
type AdaptiveController struct {
	basePollInterval time.Duration
	config           AdaptiveConfig

	currentInterval time.Duration
}

// NewAdaptiveController creates a new adaptive controller.
func NewAdaptiveController(basePollInterval time.Duration, config AdaptiveConfig) *AdaptiveController {
	return &AdaptiveController{
		basePollInterval: basePollInterval,
		config:           config,
		currentInterval:  basePollInterval,
	}
}

// ComputeInterval calculates the next polling interval.
//
// Algorithm:
//   - lag == 0: Use base interval (at chain head, save API calls)
//   - lag < normal: Use base interval × 0.5 (slightly behind)
//   - lag < burst: Use min interval × 2 (catching up)
//   - lag ≥ burst: Use min interval (maximum catchup speed)
func (c *AdaptiveController) ComputeInterval(lag uint64) time.Duration {
	if !c.config.Enabled {
		c.currentInterval = c.basePollInterval
		return c.currentInterval
	}

	var interval time.Duration

	switch {
	case lag == 0:
		interval = c.basePollInterval
	case lag < c.config.LagNormalThreshold:
		interval = c.basePollInterval / 2
	case lag < c.config.LagBurstThreshold:
		interval = c.config.MinPollInterval * 2
	default:
		interval = c.config.MinPollInterval
	}

	// Never poll slower than the configured base interval
	if interval > c.basePollInterval {
		interval = c.basePollInterval
	}
	floor := min(c.config.MinPollInterval, c.basePollInterval)
	if interval < floor {
		interval = floor
	}
	if interval > c.config.MaxPollInterval {
		interval = c.config.MaxPollInterval
	}

	c.currentInterval = interval
	return interval
}

// CurrentInterval returns the last computed interval.
func (c *AdaptiveController) CurrentInterval() time.Duration {
	return c.currentInterval
}

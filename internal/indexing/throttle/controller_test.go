package throttle

import (
	"testing"
	"time"
)

func TestComputeInterval(t *testing.T) {
	config := DefaultConfig()
	config.MinPollInterval = 500 * time.Millisecond
	config.MaxPollInterval = 60 * time.Second
	config.LagNormalThreshold = 5
	config.LagBurstThreshold = 50

	basePollInterval := 12 * time.Second
	controller := NewAdaptiveController(basePollInterval, config)

	tests := []struct {
		name     string
		lag      uint64
		expected time.Duration
	}{
		{
			name:     "at chain head (lag=0)",
			lag:      0,
			expected: 12 * time.Second, // base interval
		},
		{
			name:     "slightly behind (lag=3)",
			lag:      3,
			expected: 6 * time.Second, // base / 2
		},
		{
			name:     "catching up (lag=20)",
			lag:      20,
			expected: 1 * time.Second, // min * 2
		},
		{
			name:     "far behind (lag=100)",
			lag:      100,
			expected: 500 * time.Millisecond, // min interval
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := controller.ComputeInterval(tt.lag)
			if result != tt.expected {
				t.Errorf("ComputeInterval(%d) = %v, want %v", tt.lag, result, tt.expected)
			}
			if controller.CurrentInterval() != tt.expected {
				t.Errorf("CurrentInterval() = %v, want %v", controller.CurrentInterval(), tt.expected)
			}
		})
	}
}

func TestComputeInterval_FastBase(t *testing.T) {
	controller := NewAdaptiveController(100*time.Millisecond, DefaultConfig())

	// min*2 would exceed the base interval
	if got := controller.ComputeInterval(20); got != 100*time.Millisecond {
		t.Errorf("expected base interval cap, got %v", got)
	}
	if got := controller.ComputeInterval(100); got != 100*time.Millisecond {
		t.Errorf("expected floor at base interval, got %v", got)
	}
}

func TestComputeInterval_Disabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	controller := NewAdaptiveController(2*time.Second, config)

	if got := controller.ComputeInterval(1000); got != 2*time.Second {
		t.Errorf("expected base interval when disabled, got %v", got)
	}
}

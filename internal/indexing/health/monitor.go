package health

import (
	"sync"
	"time"

	"github.com/vietddude/chainsync/internal/indexing/chainsync"
)

const (
	phaseHistorical = "historical"
	phaseRealtime   = "realtime"
	phaseFinalized  = "finalized"
)

// StatusSource reports the sync service state.
type StatusSource interface {
	Status() chainsync.Status
}

// Thresholds bound how old a realtime network's checkpoint may get.
type Thresholds struct {
	DegradedAge time.Duration
	CriticalAge time.Duration
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedAge: 2 * time.Minute,
		CriticalAge: 10 * time.Minute,
	}
}

// Monitor aggregates health status from the sync service.
type Monitor struct {
	source     StatusSource
	thresholds Thresholds
	cacheTTL   time.Duration
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. Reports are reused for cacheTTL.
func NewMonitor(source StatusSource, thresholds Thresholds, cacheTTL time.Duration) *Monitor {
	if thresholds.DegradedAge <= 0 || thresholds.CriticalAge <= 0 {
		thresholds = DefaultThresholds()
	}
	return &Monitor{
		source:     source,
		thresholds: thresholds,
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
}

// CheckHealth builds a report for all networks.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	st := m.source.Status()
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Networks:     make([]NetworkHealth, 0, len(st.Networks)),
		Sync:         st,
	}

	for _, n := range st.Networks {
		h := m.checkNetwork(now, n)
		if st.Killed {
			h.Status = StatusCritical
		}
		report.SystemStatus = worse(report.SystemStatus, h.Status)
		report.Networks = append(report.Networks, h)
	}
	if st.Killed {
		report.SystemStatus = StatusCritical
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) checkNetwork(now time.Time, n chainsync.NetworkStatus) NetworkHealth {
	h := NetworkHealth{
		Name:               n.Name,
		ChainID:            n.ChainID,
		Status:             StatusHealthy,
		HistoricalComplete: n.HistoricalComplete,
	}

	switch {
	case !n.Realtime:
		h.Phase = phaseFinalized
	case !n.HistoricalComplete:
		h.Phase = phaseHistorical
	default:
		h.Phase = phaseRealtime
	}

	// Only a live realtime network has a checkpoint expected to track wall time.
	if h.Phase != phaseRealtime || n.RealtimeCheckpoint == nil {
		return h
	}

	ts := time.Unix(int64(n.RealtimeCheckpoint.BlockTimestamp), 0)
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	h.CheckpointAge = age.Truncate(time.Second).String()

	switch {
	case age > m.thresholds.CriticalAge:
		h.Status = StatusCritical
	case age > m.thresholds.DegradedAge:
		h.Status = StatusDegraded
	}
	return h
}

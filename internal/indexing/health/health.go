// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/vietddude/chainsync/internal/indexing/chainsync"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// NetworkHealth contains health metrics for a single network.
type NetworkHealth struct {
	Name               string       `json:"name"`
	ChainID            uint64       `json:"chain_id"`
	Status             SystemStatus `json:"status"`
	Phase              string       `json:"phase"`
	CheckpointAge      string       `json:"checkpoint_age"`
	HistoricalComplete bool         `json:"historical_complete"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus     `json:"system_status"`
	Networks     []NetworkHealth  `json:"networks"`
	Sync         chainsync.Status `json:"sync"`
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

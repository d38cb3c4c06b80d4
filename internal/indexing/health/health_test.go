package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/chainsync"
)

type stubSource struct {
	status chainsync.Status
	calls  int
}

func (s *stubSource) Status() chainsync.Status {
	s.calls++
	return s.status
}

var now = time.Unix(1_700_000_000, 0)

func realtimeNetwork(name string, age time.Duration) chainsync.NetworkStatus {
	cp := domain.Checkpoint{BlockTimestamp: uint64(now.Add(-age).Unix()), ChainID: 1, BlockNumber: 100}
	return chainsync.NetworkStatus{
		Name:               name,
		ChainID:            1,
		Realtime:           true,
		HistoricalComplete: true,
		RealtimeCheckpoint: &cp,
	}
}

func newTestMonitor(src StatusSource, ttl time.Duration) *Monitor {
	m := NewMonitor(src, Thresholds{DegradedAge: time.Minute, CriticalAge: 5 * time.Minute}, ttl)
	m.now = func() time.Time { return now }
	return m
}

func TestMonitor_CheckHealth(t *testing.T) {
	tests := []struct {
		name     string
		status   chainsync.Status
		expected SystemStatus
		phases   []string
	}{
		{
			name:     "fresh realtime",
			status:   chainsync.Status{Networks: []chainsync.NetworkStatus{realtimeNetwork("mainnet", 10 * time.Second)}},
			expected: StatusHealthy,
			phases:   []string{phaseRealtime},
		},
		{
			name:     "stale realtime",
			status:   chainsync.Status{Networks: []chainsync.NetworkStatus{realtimeNetwork("mainnet", 2 * time.Minute)}},
			expected: StatusDegraded,
			phases:   []string{phaseRealtime},
		},
		{
			name: "worst network wins",
			status: chainsync.Status{Networks: []chainsync.NetworkStatus{
				realtimeNetwork("mainnet", 2*time.Minute),
				realtimeNetwork("optimism", 10*time.Minute),
			}},
			expected: StatusCritical,
			phases:   []string{phaseRealtime, phaseRealtime},
		},
		{
			name: "historical and finalized networks are not aged",
			status: chainsync.Status{Networks: []chainsync.NetworkStatus{
				{Name: "mainnet", Realtime: true},
				{Name: "old", Realtime: false, HistoricalComplete: true},
			}},
			expected: StatusHealthy,
			phases:   []string{phaseHistorical, phaseFinalized},
		},
		{
			name: "killed",
			status: chainsync.Status{
				Killed:   true,
				Networks: []chainsync.NetworkStatus{realtimeNetwork("mainnet", time.Second)},
			},
			expected: StatusCritical,
			phases:   []string{phaseRealtime},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(&stubSource{status: tt.status}, 0)
			report := m.CheckHealth()

			assert.Equal(t, tt.expected, report.SystemStatus)
			require.Len(t, report.Networks, len(tt.phases))
			for i, phase := range tt.phases {
				assert.Equal(t, phase, report.Networks[i].Phase)
			}
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	src := &stubSource{status: chainsync.Status{}}
	m := newTestMonitor(src, 10*time.Second)

	m.CheckHealth()
	m.CheckHealth()
	assert.Equal(t, 1, src.calls)

	m.now = func() time.Time { return now.Add(11 * time.Second) }
	m.CheckHealth()
	assert.Equal(t, 2, src.calls)
}

func TestServer_Endpoints(t *testing.T) {
	src := &stubSource{status: chainsync.Status{Networks: []chainsync.NetworkStatus{realtimeNetwork("mainnet", time.Second)}}}
	s := NewServer(newTestMonitor(src, 0), 0, 0, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Networks, 1)
	assert.Equal(t, "mainnet", report.Networks[0].Name)
	assert.Equal(t, uint64(100), report.Sync.Networks[0].RealtimeCheckpoint.BlockNumber)

	src.status.Killed = true
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GRPCHealth(t *testing.T) {
	src := &stubSource{status: chainsync.Status{}}
	s := NewServer(newTestMonitor(src, 0), 0, 50051, nil)
	ctx := context.Background()

	s.Refresh()
	resp, err := s.grpcHS.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	src.status.Killed = true
	s.Refresh()
	resp, err = s.grpcHS.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	require.NoError(t, s.Stop(ctx))
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/chainsync"
	"github.com/vietddude/chainsync/internal/indexing/health"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"", false, slog.LevelInfo},
		{"trace", false, LevelTrace},
		{"DEBUG", false, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.level, tt.debug), "level %q debug %t", tt.level, tt.debug)
	}
}

func TestPrintCheckpoint(t *testing.T) {
	cp := checkpoint.FromBlock(1, domain.Block{Number: 100, Timestamp: 1_700_000_000})

	var buf bytes.Buffer
	printCheckpoint(&buf, cp)

	out := buf.String()
	assert.Contains(t, out, "1700000000")
	assert.Contains(t, out, "max")
	assert.Contains(t, out, "encoded: "+checkpoint.Encode(cp))
}

func TestFetchAndPrintReport(t *testing.T) {
	cp := checkpoint.FromBlock(10, domain.Block{Number: 42, Timestamp: 1_700_000_000})
	report := health.HealthReport{
		SystemStatus: health.StatusDegraded,
		Networks: []health.NetworkHealth{
			{Name: "optimism", ChainID: 10, Status: health.StatusDegraded, Phase: "realtime", CheckpointAge: "3m0s"},
		},
		Sync: chainsync.Status{
			Checkpoint:          cp,
			FinalizedCheckpoint: cp,
			Networks: []chainsync.NetworkStatus{
				{Name: "optimism", ChainID: 10, Realtime: true, HistoricalComplete: true, RealtimeCheckpoint: &cp},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/detailed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	got, err := fetchReport(context.Background(), srv.URL+"/health/detailed")
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, got.SystemStatus)

	var buf bytes.Buffer
	printReport(&buf, got)
	out := buf.String()
	assert.Contains(t, out, "status: degraded")
	assert.Contains(t, out, "optimism")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "3m0s")
}

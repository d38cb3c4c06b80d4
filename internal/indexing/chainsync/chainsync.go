// Package chainsync coordinates historical and realtime sync across networks.
//
// # Design
//
// One historical worker and at most one realtime worker run per network.
// Their reports are reduced into two global positions:
//   - the checkpoint, the minimum across networks of what has been ingested
//   - the finalized checkpoint, the minimum across networks of what is final
//
// Realtime events travel over a channel into a single reducer goroutine.
// Historical progress is pulled by the caller through a CheckpointIterator.
// All global and per-network state sits behind one mutex.
//
// # Usage
//
//	svc, err := chainsync.New(ctx, chainsync.Params{...})
//	svc.StartHistorical()
//	for r := range svc.HistoricalCheckpoints().All(ctx) {
//	    // events in [r.From, r.To) are stored
//	}
//	svc.StartRealtime()
//	defer svc.Kill(ctx)
package chainsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/backfill"
	"github.com/vietddude/chainsync/internal/indexing/realtime"
	"github.com/vietddude/chainsync/internal/infra/rpc"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

// LevelTrace is below debug. Every sampled historical checkpoint is logged at it.
const LevelTrace = slog.LevelDebug - 4

var (
	// ErrNoNetworks is returned by New when no network is configured.
	ErrNoNetworks = errors.New("no networks configured")
	// ErrUnknownNetwork is returned for a network the service does not sync.
	ErrUnknownNetwork = errors.New("unknown network")
)

// DefaultHistoricalCheckpointInterval is how often historical progress is sampled.
const DefaultHistoricalCheckpointInterval = 500 * time.Millisecond

// HistoricalWorker backfills one network up to its finalized block.
type HistoricalWorker interface {
	Setup(ctx context.Context, latest, finalized uint64) error
	Start()
	Stop()
}

// RealtimeWorker follows the head of one network.
type RealtimeWorker interface {
	Start()
	Stop(ctx context.Context) error
}

// Common holds process-wide services.
type Common struct {
	Logger *slog.Logger
}

// Params configures the sync service.
type Params struct {
	Common   Common
	Store    storage.SyncStore
	Networks []domain.Network
	Sources  []domain.Source

	// OnRealtimeEvent receives every notification for the consumer. Called
	// from the reducer goroutine, one call at a time.
	OnRealtimeEvent func(domain.SyncNotification)
	// OnFatalError is called when a worker fails for good.
	OnFatalError func(error)

	InitialCheckpoint domain.Checkpoint

	HistoricalCheckpointInterval time.Duration

	// Worker factories. Defaults build JSON-RPC queues and the backfill and
	// realtime workers.
	NewRequestQueue func(domain.Network) rpc.RequestQueue
	NewHistorical   func(backfill.Params) HistoricalWorker
	NewRealtime     func(realtime.Params) RealtimeWorker
}

func (p *Params) setDefaults() {
	if p.Common.Logger == nil {
		p.Common.Logger = slog.Default()
	}
	if p.OnRealtimeEvent == nil {
		p.OnRealtimeEvent = func(domain.SyncNotification) {}
	}
	if p.OnFatalError == nil {
		p.OnFatalError = func(error) {}
	}
	if p.HistoricalCheckpointInterval <= 0 {
		p.HistoricalCheckpointInterval = DefaultHistoricalCheckpointInterval
	}
	if p.NewRequestQueue == nil {
		logger := p.Common.Logger
		p.NewRequestQueue = func(n domain.Network) rpc.RequestQueue {
			return rpc.NewQueueForNetwork(n, rpc.DefaultTimeout, rpc.WithLogger(logger))
		}
	}
	if p.NewHistorical == nil {
		p.NewHistorical = func(bp backfill.Params) HistoricalWorker { return backfill.New(bp) }
	}
	if p.NewRealtime == nil {
		p.NewRealtime = func(rp realtime.Params) RealtimeWorker { return realtime.New(rp) }
	}
}

// CanSkipRealtime reports whether a network needs no realtime polling: every
// source has an end block at or below the finalized block.
func CanSkipRealtime(sources []domain.Source, finalizedBlock uint64) bool {
	for _, s := range sources {
		if s.EndBlock == nil || *s.EndBlock > finalizedBlock {
			return false
		}
	}
	return true
}

package chainsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/indexing/rpccache"
	"github.com/vietddude/chainsync/internal/infra/rpc"
)

// Service is the multi-network sync orchestrator.
type Service struct {
	params Params
	logger *slog.Logger

	networks   []*networkService
	byChainID  map[uint64]*networkService
	byName     map[string]*networkService
	sourceByID map[string]domain.Source

	mu                  sync.Mutex
	checkpoint          domain.Checkpoint
	finalizedCheckpoint domain.Checkpoint

	events      chan domain.RealtimeSyncEvent
	killed      atomic.Bool
	killOnce    sync.Once
	killErr     error
	killCh      chan struct{}
	reducerDone chan struct{}
}

// StartHistorical starts every network's historical worker. Non-blocking.
func (s *Service) StartHistorical() {
	for _, ns := range s.networks {
		ns.historical.worker.Start()
	}
}

// StartRealtime starts the realtime worker of every network that has one. Non-blocking.
func (s *Service) StartRealtime() {
	for _, ns := range s.networks {
		switch rt := ns.realtime.(type) {
		case noRealtime:
			s.logger.Debug("no realtime sources", "network", ns.network.Name)
			metrics.RealtimeIsConnected.WithLabelValues(ns.network.Name).Set(0)
		case *realtimeState:
			// the worker owns the connected gauge of its network
			rt.worker.Start()
		default:
			panic(fmt.Sprintf("chainsync: unhandled realtime sub-state %T", rt))
		}
	}
}

// Kill stops every worker. Historical workers are stopped first, then all
// realtime workers concurrently; Kill returns once they have all stopped or
// ctx is done. Later calls return the first call's result.
func (s *Service) Kill(ctx context.Context) error {
	s.killOnce.Do(func() {
		s.killed.Store(true)
		close(s.killCh)

		for _, ns := range s.networks {
			ns.historical.worker.Stop()
		}

		var g errgroup.Group
		for _, ns := range s.networks {
			if rt, ok := ns.realtime.(*realtimeState); ok {
				g.Go(func() error { return rt.worker.Stop(ctx) })
			}
		}
		s.killErr = g.Wait()

		for _, ns := range s.networks {
			closeQueue(ns)
		}
		s.logger.Info("sync service killed")
	})
	return s.killErr
}

// IsKilled reports whether Kill was called.
func (s *Service) IsKilled() bool { return s.killed.Load() }

// Checkpoint returns the global checkpoint.
func (s *Service) Checkpoint() domain.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

// FinalizedCheckpoint returns the global finalized checkpoint.
func (s *Service) FinalizedCheckpoint() domain.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizedCheckpoint
}

// SourceByID looks up a configured source.
func (s *Service) SourceByID(id string) (domain.Source, bool) {
	src, ok := s.sourceByID[id]
	return src, ok
}

// CachedRequestQueue returns a request queue for the named network that
// serves block-pinned requests from the sync store.
func (s *Service) CachedRequestQueue(networkName string) (rpc.RequestQueue, error) {
	ns, ok := s.byName[networkName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkName)
	}
	return rpccache.New(ns.network, ns.queue, s.params.Store, s.params.Common.Logger), nil
}

// NetworkStatus is a snapshot of one network's sync state.
type NetworkStatus struct {
	Name                       string             `json:"name"`
	ChainID                    uint64             `json:"chain_id"`
	Realtime                   bool               `json:"realtime"`
	HistoricalComplete         bool               `json:"historical_complete"`
	HistoricalCheckpoint       *domain.Checkpoint `json:"historical_checkpoint,omitempty"`
	RealtimeCheckpoint         *domain.Checkpoint `json:"realtime_checkpoint,omitempty"`
	FinalizedCheckpoint        *domain.Checkpoint `json:"finalized_checkpoint,omitempty"`
	InitialFinalizedCheckpoint domain.Checkpoint  `json:"initial_finalized_checkpoint"`
}

// Status is a snapshot of the service.
type Status struct {
	Killed              bool              `json:"killed"`
	Checkpoint          domain.Checkpoint `json:"checkpoint"`
	FinalizedCheckpoint domain.Checkpoint `json:"finalized_checkpoint"`
	Networks            []NetworkStatus   `json:"networks"`
}

// Status returns a snapshot of global and per-network state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Killed:              s.killed.Load(),
		Checkpoint:          s.checkpoint,
		FinalizedCheckpoint: s.finalizedCheckpoint,
		Networks:            make([]NetworkStatus, 0, len(s.networks)),
	}
	for _, ns := range s.networks {
		n := NetworkStatus{
			Name:                       ns.network.Name,
			ChainID:                    ns.network.ChainID,
			HistoricalComplete:         ns.historical.isComplete,
			InitialFinalizedCheckpoint: ns.initialFinalizedCheckpoint,
		}
		if ns.historical.checkpoint != nil {
			cp := *ns.historical.checkpoint
			n.HistoricalCheckpoint = &cp
		}
		if rt, ok := ns.realtime.(*realtimeState); ok {
			n.Realtime = true
			cp, fin := rt.checkpoint, rt.finalizedCheckpoint
			n.RealtimeCheckpoint = &cp
			n.FinalizedCheckpoint = &fin
		}
		st.Networks = append(st.Networks, n)
	}
	return st
}

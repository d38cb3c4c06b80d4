package chainsync

import (
	"fmt"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
)

// deliver hands a realtime event to the reducer. Events sent after Kill are dropped.
func (s *Service) deliver(ev domain.RealtimeSyncEvent) {
	if s.killed.Load() {
		return
	}
	select {
	case s.events <- ev:
	case <-s.killCh:
	}
}

func (s *Service) reduceLoop() {
	defer close(s.reducerDone)
	for {
		select {
		case ev := <-s.events:
			if s.killed.Load() {
				return
			}
			s.reduce(ev)
		case <-s.killCh:
			return
		}
	}
}

// reduce applies one realtime event to the global state and notifies the consumer.
func (s *Service) reduce(ev domain.RealtimeSyncEvent) {
	s.mu.Lock()
	rt, err := s.realtimeFor(ev.Chain())
	if err != nil {
		s.mu.Unlock()
		s.params.OnFatalError(err)
		return
	}

	switch e := ev.(type) {
	case domain.CheckpointEvent:
		rt.checkpoint = e.Checkpoint

		newCheckpoint := checkpoint.Min(s.realtimeCheckpoints()...)
		if !checkpoint.GreaterThan(newCheckpoint, s.checkpoint) {
			s.mu.Unlock()
			return
		}
		notification := domain.NewEventsNotification{From: s.checkpoint, To: newCheckpoint}
		s.checkpoint = newCheckpoint
		s.mu.Unlock()

		metrics.GlobalCheckpointTimestamp.Set(float64(newCheckpoint.BlockTimestamp))
		s.notify(notification)

	case domain.ReorgEvent:
		rt.checkpoint = e.SafeCheckpoint
		if checkpoint.GreaterThan(s.checkpoint, e.SafeCheckpoint) {
			s.checkpoint = e.SafeCheckpoint
			metrics.GlobalCheckpointTimestamp.Set(float64(e.SafeCheckpoint.BlockTimestamp))
		}
		s.mu.Unlock()

		s.logger.Warn("reorg",
			"chain_id", e.ChainID,
			"safe_checkpoint", checkpoint.String(e.SafeCheckpoint),
		)
		s.notify(e)

	case domain.FinalizeEvent:
		rt.finalizedCheckpoint = e.Checkpoint

		newFinalized := checkpoint.Min(s.realtimeFinalizedCheckpoints()...)
		if !checkpoint.GreaterThan(newFinalized, s.finalizedCheckpoint) {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		// the consumer hears about the finalized checkpoint before it becomes
		// visible through FinalizedCheckpoint
		s.notify(domain.FinalizeNotification{Checkpoint: newFinalized})

		s.mu.Lock()
		s.finalizedCheckpoint = newFinalized
		s.mu.Unlock()
		metrics.FinalizedCheckpointTimestamp.Set(float64(newFinalized.BlockTimestamp))

	default:
		s.mu.Unlock()
		panic(fmt.Sprintf("chainsync: unhandled realtime sync event %T", ev))
	}
}

// realtimeFor returns the realtime sub-state of a chain. Caller holds s.mu.
func (s *Service) realtimeFor(chainID uint64) (*realtimeState, error) {
	ns, ok := s.byChainID[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: realtime event for chain %d", ErrUnknownNetwork, chainID)
	}
	switch rt := ns.realtime.(type) {
	case *realtimeState:
		return rt, nil
	case noRealtime:
		return nil, fmt.Errorf("realtime event for network %s without realtime sync", ns.network.Name)
	default:
		panic(fmt.Sprintf("chainsync: unhandled realtime sub-state %T", rt))
	}
}

// Caller holds s.mu.
func (s *Service) realtimeCheckpoints() []domain.Checkpoint {
	var out []domain.Checkpoint
	for _, ns := range s.networks {
		if rt, ok := ns.realtime.(*realtimeState); ok {
			out = append(out, rt.checkpoint)
		}
	}
	return out
}

// Caller holds s.mu.
func (s *Service) realtimeFinalizedCheckpoints() []domain.Checkpoint {
	var out []domain.Checkpoint
	for _, ns := range s.networks {
		if rt, ok := ns.realtime.(*realtimeState); ok {
			out = append(out, rt.finalizedCheckpoint)
		}
	}
	return out
}

func (s *Service) notify(n domain.SyncNotification) {
	switch n.(type) {
	case domain.NewEventsNotification:
		metrics.EmittedNotifications.WithLabelValues("new_events").Inc()
	case domain.ReorgEvent:
		metrics.EmittedNotifications.WithLabelValues("reorg").Inc()
	case domain.FinalizeNotification:
		metrics.EmittedNotifications.WithLabelValues("finalize").Inc()
	}
	s.params.OnRealtimeEvent(n)
}

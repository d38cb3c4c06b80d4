package chainsync

import (
	"context"
	"iter"
	"time"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
)

type iteratorState int

const (
	statePolling iteratorState = iota
	stateAwaitingData
	stateComplete
)

func (st iteratorState) String() string {
	switch st {
	case statePolling:
		return "polling"
	case stateAwaitingData:
		return "awaiting_data"
	case stateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// CheckpointIterator yields the advances of the global checkpoint while
// historical sync is in progress, then one last advance to the minimum
// initial finalized checkpoint once every network is complete.
//
// An advance is committed to the global checkpoint when the next value is
// pulled, after the caller has handled it. Not safe for concurrent use.
type CheckpointIterator struct {
	s        *Service
	interval time.Duration
	state    iteratorState
	pending  *domain.Checkpoint
}

// HistoricalCheckpoints returns a new iterator over historical progress.
func (s *Service) HistoricalCheckpoints() *CheckpointIterator {
	return &CheckpointIterator{
		s:        s,
		interval: s.params.HistoricalCheckpointInterval,
		state:    statePolling,
	}
}

// Next blocks until the global checkpoint advances and returns the advanced
// range. ok is false once the iterator is exhausted, the service is killed
// or ctx is done. A done ctx does not exhaust the iterator.
func (it *CheckpointIterator) Next(ctx context.Context) (domain.CheckpointRange, bool) {
	it.commitPending()

	for {
		switch it.state {
		case stateComplete:
			return domain.CheckpointRange{}, false

		case statePolling:
			if it.s.IsKilled() {
				it.state = stateComplete
				return domain.CheckpointRange{}, false
			}
			if r, ok, done := it.s.finalHistoricalRange(); done {
				it.state = stateComplete
				if !ok {
					return domain.CheckpointRange{}, false
				}
				it.pending = &r.To
				return r, true
			}
			it.state = stateAwaitingData

		case stateAwaitingData:
			timer := time.NewTimer(it.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.CheckpointRange{}, false
			case <-it.s.killCh:
				timer.Stop()
				it.state = statePolling
				continue
			case <-timer.C:
			}

			it.state = statePolling
			if r, ok := it.s.historicalRange(); ok {
				it.pending = &r.To
				return r, true
			}
		}
	}
}

// All adapts the iterator for range-over-func.
func (it *CheckpointIterator) All(ctx context.Context) iter.Seq[domain.CheckpointRange] {
	return func(yield func(domain.CheckpointRange) bool) {
		for {
			r, ok := it.Next(ctx)
			if !ok || !yield(r) {
				return
			}
		}
	}
}

func (it *CheckpointIterator) commitPending() {
	if it.pending == nil {
		return
	}
	cp := *it.pending
	it.pending = nil

	it.s.mu.Lock()
	it.s.checkpoint = cp
	it.s.mu.Unlock()
	metrics.GlobalCheckpointTimestamp.Set(float64(cp.BlockTimestamp))
}

// finalHistoricalRange reports whether historical sync is complete on every
// network and, if so, the advance to the minimum initial finalized checkpoint.
func (s *Service) finalHistoricalRange() (r domain.CheckpointRange, ok, complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finalized := make([]domain.Checkpoint, 0, len(s.networks))
	for _, ns := range s.networks {
		if !ns.historical.isComplete {
			return domain.CheckpointRange{}, false, false
		}
		finalized = append(finalized, ns.initialFinalizedCheckpoint)
	}

	finality := checkpoint.Min(finalized...)
	if !checkpoint.GreaterThan(finality, s.checkpoint) {
		return domain.CheckpointRange{}, false, true
	}
	return domain.CheckpointRange{From: s.checkpoint, To: finality}, true, true
}

// historicalRange samples every network's latest historical checkpoint.
// ok is false while a network has not reported or the minimum has not advanced.
func (s *Service) historicalRange() (domain.CheckpointRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reported := make([]domain.Checkpoint, 0, len(s.networks))
	for _, ns := range s.networks {
		if ns.historical.checkpoint == nil {
			return domain.CheckpointRange{}, false
		}
		reported = append(reported, *ns.historical.checkpoint)
	}

	next := checkpoint.Min(reported...)
	if !checkpoint.GreaterThan(next, s.checkpoint) {
		return domain.CheckpointRange{}, false
	}
	return domain.CheckpointRange{From: s.checkpoint, To: next}, true
}

func (s *Service) onHistoricalCheckpoint(ns *networkService, cp domain.Checkpoint) {
	s.mu.Lock()
	ns.historical.checkpoint = &cp
	s.mu.Unlock()

	s.logger.Log(context.Background(), LevelTrace, "new historical checkpoint",
		"network", ns.network.Name,
		"timestamp", cp.BlockTimestamp,
		"chain_id", cp.ChainID,
		"block", cp.BlockNumber,
	)
}

func (s *Service) onHistoricalComplete(ns *networkService) {
	s.mu.Lock()
	ns.historical.isComplete = true
	all := true
	for _, other := range s.networks {
		if !other.historical.isComplete {
			all = false
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("historical sync complete", "network", ns.network.Name)
	if all {
		s.logger.Info("completed historical sync across all networks")
	}
}

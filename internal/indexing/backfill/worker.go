package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/interval"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
)

// Worker backfills the logs of a network's sources up to the finalized block.
type Worker struct {
	params Params
	logger *slog.Logger

	// set by Setup
	ready     bool
	finalized uint64
	todo      map[string][]interval.Interval // per source
	required  []interval.Interval            // union of todo

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	mu        sync.Mutex
	done      chan struct{}
}

// Setup computes the block ranges still missing for every source. latest is
// only logged; work is bounded by finalized.
func (w *Worker) Setup(ctx context.Context, latest, finalized uint64) error {
	chainID := w.params.Network.ChainID
	todo := make(map[string][]interval.Interval, len(w.params.Sources))
	var all []interval.Interval

	for _, s := range w.params.Sources {
		end := finalized
		if s.EndBlock != nil && *s.EndBlock < end {
			end = *s.EndBlock
		}
		if s.StartBlock > end {
			continue
		}
		cached, err := w.params.Store.GetIntervals(ctx, chainID, s.ID)
		if err != nil {
			return fmt.Errorf("failed to get intervals for source %s: %w", s.ID, err)
		}
		missing := interval.Difference([]interval.Interval{{From: s.StartBlock, To: end}}, cached)
		if len(missing) == 0 {
			continue
		}
		todo[s.ID] = missing
		all = append(all, missing...)
	}

	w.todo = todo
	w.required = interval.Union(all)
	w.finalized = finalized
	w.ready = true

	total := interval.Sum(w.required)
	metrics.HistoricalBlocksTotal.WithLabelValues(w.params.Network.Name).Set(float64(total))
	w.logger.Info("historical sync set up",
		"latest", latest,
		"finalized", finalized,
		"sources", len(w.params.Sources),
		"blocks_to_sync", total,
	)
	return nil
}

// Start runs the backfill in the background. Non-blocking.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.cancel != nil {
			// stopped before start
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		go func() {
			defer close(w.done)
			w.run(ctx)
		}()
	})
}

// Stop cancels the backfill. Safe to call multiple times and before Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.cancel == nil {
			w.cancel = func() {}
			close(w.done)
			return
		}
		w.cancel()
	})
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run(ctx context.Context) {
	if !w.ready {
		w.params.OnFatalError(ErrNotSetup)
		return
	}

	start := time.Now()
	for _, r := range w.required {
		for _, chunk := range interval.Chunk(r, w.params.MaxBlockRange) {
			if err := w.syncChunkWithRetry(ctx, chunk); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("historical sync failed", "from", chunk.From, "to", chunk.To, "error", err)
				w.params.OnFatalError(err)
				return
			}
		}
	}

	final, err := w.fetchWithRetry(ctx, w.finalized)
	if err != nil {
		if ctx.Err() == nil {
			w.params.OnFatalError(err)
		}
		return
	}
	w.params.OnCheckpoint(checkpoint.FromBlock(w.params.Network.ChainID, final))

	w.logger.Info("historical sync complete", "finalized", w.finalized, "duration", time.Since(start))
	w.params.OnComplete()
}

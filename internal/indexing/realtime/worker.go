package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/chainsync/internal/indexing/filter"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/indexing/reorg"
	"github.com/vietddude/chainsync/internal/indexing/throttle"
)

// Worker polls one network. The local chain is only touched by the worker goroutine.
type Worker struct {
	params   Params
	logger   *slog.Logger
	chain    *reorg.Chain
	filter   *filter.Filter
	detector *reorg.Detector
	handler  *reorg.Handler
	throttle *throttle.AdaptiveController

	tip atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// fatalError stops the worker without retrying.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Start begins polling in the background. Non-blocking; later calls are no-ops.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
}

// Stop cancels polling and waits for the worker goroutine to exit or ctx to
// end. Safe to call multiple times and before Start.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		if w.cancel != nil {
			w.cancel()
		}
	}
	started := w.started
	w.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop realtime %s: %w", w.params.Network.Name, ctx.Err())
	}
}

// LatestBlock returns the number of the local tip.
func (w *Worker) LatestBlock() uint64 { return w.tip.Load() }

func (w *Worker) run(ctx context.Context) {
	name := w.params.Network.Name
	metrics.RealtimeIsConnected.WithLabelValues(name).Set(1)
	defer metrics.RealtimeIsConnected.WithLabelValues(name).Set(0)

	w.logger.Info("realtime sync started",
		"finalized", w.params.Finalized.Number,
		"interval", w.params.Network.PollingInterval,
	)

	consecutiveErrors := 0
	for {
		lag, err := w.poll(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			var fatal *fatalError
			if errors.As(err, &fatal) {
				w.logger.Error("realtime sync failed", "error", fatal.err)
				w.params.OnFatalError(fatal.err)
				return
			}
			consecutiveErrors++
			w.logger.Warn("poll failed", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= w.params.MaxConsecutiveErrors {
				w.params.OnFatalError(fmt.Errorf("realtime %s failed %d consecutive times: %w",
					name, consecutiveErrors, err))
				return
			}
		} else {
			consecutiveErrors = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.throttle.ComputeInterval(lag)):
		}
	}
}

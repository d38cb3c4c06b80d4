package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/core/interval"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
	"github.com/vietddude/chainsync/internal/infra/rpc/provider"
	"github.com/vietddude/chainsync/internal/infra/rpc/routing"
)

// sourceRange is one eth_getLogs request of a chunk.
type sourceRange struct {
	source domain.Source
	iv     interval.Interval
}

func (w *Worker) syncChunkWithRetry(ctx context.Context, chunk interval.Interval) error {
	var lastErr error
	for attempt := 0; attempt < w.params.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := routing.Backoff(attempt-1, w.params.Retry)
			w.logger.Warn("retrying chunk",
				"from", chunk.From, "to", chunk.To, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := w.syncChunk(ctx, chunk)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isRangeTooLarge(err) && chunk.Len() > 1 {
			mid := chunk.From + (chunk.To-chunk.From)/2
			w.logger.Debug("splitting chunk", "from", chunk.From, "to", chunk.To)
			if err := w.syncChunkWithRetry(ctx, interval.Interval{From: chunk.From, To: mid}); err != nil {
				return err
			}
			return w.syncChunkWithRetry(ctx, interval.Interval{From: mid + 1, To: chunk.To})
		}
		lastErr = err
	}
	return fmt.Errorf("chunk [%d, %d] failed after %d attempts: %w",
		chunk.From, chunk.To, w.params.Retry.MaxAttempts, lastErr)
}

// syncChunk fetches and stores all logs of the chunk and reports a checkpoint
// at its last block. Safe to repeat.
func (w *Worker) syncChunk(ctx context.Context, chunk interval.Interval) error {
	chainID := w.params.Network.ChainID

	var ranges []sourceRange
	for _, s := range w.params.Sources {
		for _, iv := range w.todo[s.ID] {
			if part, ok := interval.Intersect(iv, chunk); ok {
				ranges = append(ranges, sourceRange{source: s, iv: part})
			}
		}
	}

	var (
		mu   sync.Mutex
		logs []domain.Log
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.params.Concurrency)
	for _, r := range ranges {
		g.Go(func() error {
			got, err := w.params.Client.GetLogs(gctx, chainID, evm.LogFilter{
				FromBlock: r.iv.From,
				ToBlock:   r.iv.To,
				Addresses: r.source.Addresses,
				Topics:    r.source.Topics,
			})
			if err != nil {
				return fmt.Errorf("source %s [%d, %d]: %w", r.source.ID, r.iv.From, r.iv.To, err)
			}
			mu.Lock()
			logs = append(logs, got...)
			mu.Unlock()
			metrics.LogsStored.WithLabelValues(w.params.Network.Name, r.source.ID).Add(float64(len(got)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := w.params.Store.InsertLogs(ctx, logs); err != nil {
		return fmt.Errorf("failed to insert logs: %w", err)
	}

	end, err := w.params.Client.GetBlockByNumber(ctx, chunk.To)
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", chunk.To, err)
	}
	if err := w.params.Store.InsertBlock(ctx, chainID, end); err != nil {
		return fmt.Errorf("failed to insert block %d: %w", chunk.To, err)
	}

	for _, r := range ranges {
		if err := w.params.Store.InsertInterval(ctx, chainID, r.source.ID, r.iv); err != nil {
			return fmt.Errorf("failed to insert interval for source %s: %w", r.source.ID, err)
		}
	}

	metrics.HistoricalBlocksProcessed.WithLabelValues(w.params.Network.Name).Add(float64(chunk.Len()))
	w.logger.Debug("synced chunk", "from", chunk.From, "to", chunk.To, "logs", len(logs))
	w.params.OnCheckpoint(checkpoint.FromBlock(chainID, end))
	return nil
}

func (w *Worker) fetchWithRetry(ctx context.Context, number uint64) (domain.Block, error) {
	var lastErr error
	for attempt := 0; attempt < w.params.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(routing.Backoff(attempt-1, w.params.Retry)):
			case <-ctx.Done():
				return domain.Block{}, ctx.Err()
			}
		}
		b, err := w.params.Client.GetBlockByNumber(ctx, number)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return domain.Block{}, fmt.Errorf("failed to fetch block %d: %w", number, lastErr)
}

// isRangeTooLarge reports whether the provider rejected eth_getLogs for
// spanning too many blocks or returning too many results.
func isRangeTooLarge(err error) bool {
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == -32005 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"block range",
		"range too large",
		"query returned more than",
		"response size exceeded",
		"too many results",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/core/interval"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/indexing/reorg"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
)

// poll ingests the blocks between the local tip and the network head. It
// returns how many blocks the local tip still trails the head.
func (w *Worker) poll(ctx context.Context) (uint64, error) {
	latest, err := w.params.Client.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	metrics.RealtimeLatestBlock.WithLabelValues(w.params.Network.Name).Set(float64(latest.Number))

	tip := w.chain.Tip()
	if latest.Number <= tip.Number {
		local, ok := w.chain.Get(latest.Number)
		if ok && !strings.EqualFold(local.Hash, latest.Hash) {
			return 0, w.handleReorg(ctx)
		}
		return 0, nil
	}

	to := min(latest.Number, tip.Number+w.params.MaxBlocksPerPoll)
	for n := tip.Number + 1; n <= to; n++ {
		block := latest
		if n != latest.Number {
			if block, err = w.params.Client.GetBlockByNumber(ctx, n); err != nil {
				return 0, fmt.Errorf("failed to get block %d: %w", n, err)
			}
		}
		if !w.chain.Extends(block) {
			return 0, w.handleReorg(ctx)
		}
		if err := w.ingest(ctx, block); err != nil {
			return 0, err
		}
		if err := w.finalize(ctx); err != nil {
			return 0, err
		}
	}
	return latest.Number - to, nil
}

// ingest stores the block and its matching logs, then reports a checkpoint.
func (w *Worker) ingest(ctx context.Context, block domain.Block) error {
	chainID := w.params.Network.ChainID

	addresses, topics, active := w.filter.Criteria(block.Number)
	if active && evm.BloomMayContain(block, addresses, topics) {
		logs, err := w.params.Client.GetLogs(ctx, chainID, evm.LogFilter{
			BlockHash: block.Hash,
			Addresses: addresses,
			Topics:    topics,
		})
		if err != nil {
			return fmt.Errorf("failed to get logs for block %d: %w", block.Number, err)
		}

		matched := logs[:0]
		for _, l := range logs {
			ids := w.filter.Match(l)
			if len(ids) == 0 {
				continue
			}
			matched = append(matched, l)
			for _, id := range ids {
				metrics.LogsStored.WithLabelValues(w.params.Network.Name, id).Inc()
			}
		}
		if len(matched) > 0 {
			if err := w.params.Store.InsertLogs(ctx, matched); err != nil {
				return fmt.Errorf("failed to insert logs: %w", err)
			}
		}
	}

	if err := w.params.Store.InsertBlock(ctx, chainID, block); err != nil {
		return fmt.Errorf("failed to insert block %d: %w", block.Number, err)
	}
	if err := w.chain.Append(block); err != nil {
		return err
	}
	w.tip.Store(block.Number)

	w.params.OnEvent(domain.CheckpointEvent{
		ChainID:    chainID,
		Checkpoint: checkpoint.FromBlock(chainID, block),
	})
	return nil
}

// handleReorg rolls the local chain back to the common ancestor with the
// canonical chain and reports a reorg event.
func (w *Worker) handleReorg(ctx context.Context) error {
	chainID := w.params.Network.ChainID
	tip := w.chain.Tip()

	info, err := w.detector.FindCommonAncestor(ctx, w.chain)
	if errors.Is(err, reorg.ErrReorgTooDeep) {
		return &fatalError{err: fmt.Errorf("network %s: %w", w.params.Network.Name, err)}
	}
	if err != nil {
		return err
	}
	if info.Depth == 0 && info.Ancestor.Number == tip.Number {
		// head moved between requests; the local chain is still canonical
		return nil
	}

	result, err := w.handler.Rollback(ctx, chainID, w.chain, info)
	if err != nil {
		return err
	}
	w.tip.Store(info.Ancestor.Number)
	metrics.ReorgsTotal.WithLabelValues(w.params.Network.Name).Inc()

	w.logger.Warn("reorg detected",
		"tip", tip.Number,
		"safe_block", result.SafeBlock,
		"depth", info.Depth,
		"orphaned", result.OrphanedBlocks,
	)
	w.params.OnEvent(domain.ReorgEvent{
		ChainID:        chainID,
		SafeCheckpoint: checkpoint.FromBlock(chainID, info.Ancestor),
	})
	return nil
}

// finalize advances the finalized block to tip minus finality once the
// local chain is longer than twice the finality depth. The synced range
// becomes a stored interval for every active source.
func (w *Worker) finalize(ctx context.Context) error {
	finality := w.params.Network.FinalityBlockCount
	tip := w.chain.Tip()
	prev := w.chain.Finalized()
	if tip.Number-prev.Number <= 2*finality {
		return nil
	}

	target := tip.Number - finality
	synced := interval.Interval{From: prev.Number + 1, To: target}
	chainID := w.params.Network.ChainID
	for _, s := range w.filter.Sources() {
		end := synced.To
		if s.EndBlock != nil {
			end = min(end, *s.EndBlock)
		}
		part, ok := interval.Intersect(synced, interval.Interval{From: s.StartBlock, To: end})
		if !ok {
			continue
		}
		if err := w.params.Store.InsertInterval(ctx, chainID, s.ID, part); err != nil {
			return fmt.Errorf("failed to insert interval for source %s: %w", s.ID, err)
		}
	}

	block, ok := w.chain.Finalize(target)
	if !ok {
		return fmt.Errorf("block %d missing from local chain", target)
	}
	w.logger.Debug("finalized", "block", block.Number)
	w.params.OnEvent(domain.FinalizeEvent{
		ChainID:    chainID,
		Checkpoint: checkpoint.FromBlock(chainID, block),
	})
	return nil
}

package reorg

import (
	"context"
	"fmt"
	"time"
)

// RealtimeStore removes realtime data invalidated by a reorg.
type RealtimeStore interface {
	DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error
}

// Handler executes reorg rollback operations.
type Handler struct {
	store RealtimeStore
}

// RollbackResult contains the result of a rollback operation.
type RollbackResult struct {
	ChainID        uint64
	OrphanedBlocks int
	FromBlock      uint64
	SafeBlock      uint64
	Duration       time.Duration
}

// Rollback deletes stored data from info.FromBlock upwards and truncates the
// local chain to the common ancestor.
func (h *Handler) Rollback(
	ctx context.Context,
	chainID uint64,
	chain *Chain,
	info *ReorgInfo,
) (*RollbackResult, error) {
	start := time.Now()

	if err := h.store.DeleteRealtimeData(ctx, chainID, info.FromBlock); err != nil {
		return nil, fmt.Errorf("failed to delete data from block %d: %w", info.FromBlock, err)
	}
	orphaned := chain.Rollback(info.Ancestor.Number)

	return &RollbackResult{
		ChainID:        chainID,
		OrphanedBlocks: orphaned,
		FromBlock:      info.FromBlock,
		SafeBlock:      info.Ancestor.Number,
		Duration:       time.Since(start),
	}, nil
}

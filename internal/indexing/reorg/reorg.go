// Package reorg handles chain reorganization detection and recovery for the
// realtime worker.
//
// # Design: Parent Hash Detection
//
// Detection uses parent hash verification:
//   - The realtime worker keeps the unfinalized blocks it has ingested in a Chain
//   - A new block whose parent hash differs from the local tip signals a reorg
//   - The detector walks the local chain backwards, comparing each block with
//     the canonical block the node now reports, until hashes agree
//
// # Rollback Process
//
//  1. Detect reorg via parent hash mismatch
//  2. Find the common ancestor by walking backwards
//  3. Delete stored realtime data above the ancestor
//  4. Truncate the local chain to the ancestor
//
// A reorg that reaches past the local finalized block cannot be handled and
// is reported as ErrReorgTooDeep.
//
// # Usage
//
//	chain := reorg.NewChain(finalized)
//	detector := reorg.NewDetector(reorg.Config{}, fetchBlock)
//	handler := reorg.NewHandler(store)
//
//	if chain.Extends(block) {
//	    _ = chain.Append(block)
//	} else {
//	    info, _ := detector.FindCommonAncestor(ctx, chain)
//	    handler.Rollback(ctx, chainID, chain, info)
//	}
package reorg

import (
	"context"
	"errors"

	"github.com/vietddude/chainsync/internal/core/domain"
)

var (
	// ErrReorgTooDeep is returned when no common ancestor exists above the
	// local finalized block.
	ErrReorgTooDeep = errors.New("reorg deeper than finalized block")
	// ErrNotContiguous is returned when appending a block that does not extend the tip.
	ErrNotContiguous = errors.New("block does not extend local chain")
)

// BlockFetcher fetches the canonical block at a height from RPC.
type BlockFetcher func(ctx context.Context, number uint64) (domain.Block, error)

// Config holds configuration for reorg detection.
type Config struct {
	MaxDepth int // Maximum depth to search for a common ancestor (default: 100)
}

// NewDetector creates a new reorg detector.
func NewDetector(config Config, fetch BlockFetcher) *Detector {
	if config.MaxDepth <= 0 {
		config.MaxDepth = 100
	}
	return &Detector{
		config: config,
		fetch:  fetch,
	}
}

// NewHandler creates a new reorg handler.
func NewHandler(store RealtimeStore) *Handler {
	return &Handler{store: store}
}

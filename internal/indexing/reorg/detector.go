package reorg

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/chainsync/internal/core/domain"
)

// Detector finds where the local chain diverged from the canonical chain.
type Detector struct {
	config Config
	fetch  BlockFetcher
}

// ReorgInfo contains information about a detected reorganization.
type ReorgInfo struct {
	Depth     int
	FromBlock uint64 // First orphaned block
	Ancestor  domain.Block
}

// FindCommonAncestor walks the local chain backwards from the tip, fetching
// the canonical block at each height, until hashes agree. The finalized
// anchor is checked last; a mismatch there returns ErrReorgTooDeep.
func (d *Detector) FindCommonAncestor(ctx context.Context, chain *Chain) (*ReorgInfo, error) {
	local := chain.Blocks()
	depth := 0

	for i := len(local) - 1; i >= 0; i-- {
		if depth >= d.config.MaxDepth {
			return nil, fmt.Errorf("%w: depth exceeds %d blocks", ErrReorgTooDeep, d.config.MaxDepth)
		}
		remote, err := d.fetch(ctx, local[i].Number)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch block %d: %w", local[i].Number, err)
		}
		if strings.EqualFold(remote.Hash, local[i].Hash) {
			return &ReorgInfo{Depth: depth, FromBlock: local[i].Number + 1, Ancestor: local[i]}, nil
		}
		depth++
	}

	finalized := chain.Finalized()
	remote, err := d.fetch(ctx, finalized.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", finalized.Number, err)
	}
	if !strings.EqualFold(remote.Hash, finalized.Hash) {
		return nil, fmt.Errorf("%w: finalized block %d hash %s, remote %s",
			ErrReorgTooDeep, finalized.Number, finalized.Hash, remote.Hash)
	}
	return &ReorgInfo{Depth: depth, FromBlock: finalized.Number + 1, Ancestor: finalized}, nil
}

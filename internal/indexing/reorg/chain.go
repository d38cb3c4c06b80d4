package reorg

import (
	"fmt"
	"strings"

	"github.com/vietddude/chainsync/internal/core/domain"
)

// Chain is the local view of a network's unfinalized blocks, anchored at the
// last finalized block. Not safe for concurrent use.
type Chain struct {
	finalized domain.Block
	blocks    []domain.Block
}

// NewChain creates a chain whose only block is the finalized one.
func NewChain(finalized domain.Block) *Chain {
	return &Chain{finalized: finalized}
}

// Finalized returns the finalized anchor block.
func (c *Chain) Finalized() domain.Block { return c.finalized }

// Tip returns the highest local block.
func (c *Chain) Tip() domain.Block {
	if len(c.blocks) == 0 {
		return c.finalized
	}
	return c.blocks[len(c.blocks)-1]
}

// Len returns the number of unfinalized blocks.
func (c *Chain) Len() int { return len(c.blocks) }

// Blocks returns a copy of the unfinalized blocks in ascending order.
func (c *Chain) Blocks() []domain.Block {
	out := make([]domain.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Get returns the local block at number, including the finalized anchor.
func (c *Chain) Get(number uint64) (domain.Block, bool) {
	if number == c.finalized.Number {
		return c.finalized, true
	}
	if number < c.finalized.Number || len(c.blocks) == 0 {
		return domain.Block{}, false
	}
	idx := number - c.blocks[0].Number
	if number < c.blocks[0].Number || idx >= uint64(len(c.blocks)) {
		return domain.Block{}, false
	}
	return c.blocks[idx], true
}

// Extends reports whether b is the direct child of the tip.
func (c *Chain) Extends(b domain.Block) bool {
	tip := c.Tip()
	return b.Number == tip.Number+1 && strings.EqualFold(b.ParentHash, tip.Hash)
}

// Append adds b on top of the tip.
func (c *Chain) Append(b domain.Block) error {
	if !c.Extends(b) {
		tip := c.Tip()
		return fmt.Errorf("%w: block %d parent %s, tip %d %s",
			ErrNotContiguous, b.Number, b.ParentHash, tip.Number, tip.Hash)
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// Rollback drops every block above number. Returns the number of blocks removed.
func (c *Chain) Rollback(number uint64) int {
	kept := 0
	for kept < len(c.blocks) && c.blocks[kept].Number <= number {
		kept++
	}
	removed := len(c.blocks) - kept
	c.blocks = c.blocks[:kept]
	return removed
}

// Finalize moves the anchor to the local block at number and drops every
// block at or below it. ok is false if number is not an unfinalized local block.
func (c *Chain) Finalize(number uint64) (domain.Block, bool) {
	if number <= c.finalized.Number {
		return domain.Block{}, false
	}
	b, ok := c.Get(number)
	if !ok {
		return domain.Block{}, false
	}
	idx := number - c.blocks[0].Number
	c.finalized = b
	c.blocks = append([]domain.Block(nil), c.blocks[idx+1:]...)
	return b, true
}

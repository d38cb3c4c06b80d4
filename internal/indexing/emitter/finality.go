package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
)

// FinalityBuffer wraps an Emitter and holds new-event ranges until a
// finalize notification covers them. Ranges invalidated by a reorg are
// trimmed or dropped and never reach the inner emitter, so reorgs are not
// forwarded.
type FinalityBuffer struct {
	inner   Emitter
	pending []domain.CheckpointRange // ascending, non-overlapping
	mu      sync.Mutex
}

// NewFinalityBuffer creates a new buffer in front of inner.
func NewFinalityBuffer(inner Emitter) *FinalityBuffer {
	return &FinalityBuffer{inner: inner}
}

func (f *FinalityBuffer) Emit(ctx context.Context, n domain.SyncNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch v := n.(type) {
	case domain.NewEventsNotification:
		f.pending = append(f.pending, domain.CheckpointRange{From: v.From, To: v.To})
		return nil

	case domain.ReorgEvent:
		f.discardAfter(v.SafeCheckpoint)
		return nil

	case domain.FinalizeNotification:
		return f.flush(ctx, v)

	default:
		return fmt.Errorf("unsupported notification %T", n)
	}
}

// flush emits every pending range up to the finalized checkpoint, then the
// finalize notification itself. Caller holds f.mu.
func (f *FinalityBuffer) flush(ctx context.Context, fin domain.FinalizeNotification) error {
	for len(f.pending) > 0 {
		r := f.pending[0]
		if !checkpoint.GreaterThan(fin.Checkpoint, r.From) {
			break
		}
		emit := r
		if checkpoint.GreaterThan(r.To, fin.Checkpoint) {
			emit.To = fin.Checkpoint
			f.pending[0].From = fin.Checkpoint
		} else {
			f.pending = f.pending[1:]
		}
		if err := f.inner.Emit(ctx, domain.NewEventsNotification{From: emit.From, To: emit.To}); err != nil {
			return fmt.Errorf("failed to emit finalized range: %w", err)
		}
	}
	return f.inner.Emit(ctx, fin)
}

// discardAfter trims pending ranges so nothing beyond safe remains. Caller holds f.mu.
func (f *FinalityBuffer) discardAfter(safe domain.Checkpoint) {
	kept := f.pending[:0]
	for _, r := range f.pending {
		if !checkpoint.GreaterThan(safe, r.From) {
			continue
		}
		if checkpoint.GreaterThan(r.To, safe) {
			r.To = safe
		}
		kept = append(kept, r)
	}
	f.pending = kept
}

// Pending returns the buffered ranges.
func (f *FinalityBuffer) Pending() []domain.CheckpointRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CheckpointRange(nil), f.pending...)
}

func (f *FinalityBuffer) Close() error {
	return f.inner.Close()
}

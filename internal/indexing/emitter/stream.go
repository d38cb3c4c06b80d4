package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
)

// Publisher appends a message to a stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, maxLen int64, values map[string]any) (string, error)
}

// StreamEmitter publishes notifications to a Redis stream. Checkpoints are
// sent in their sortable encoding.
type StreamEmitter struct {
	publisher Publisher
	stream    string
	maxLen    int64
	now       func() time.Time
}

func NewStreamEmitter(publisher Publisher, stream string, maxLen int64) *StreamEmitter {
	return &StreamEmitter{
		publisher: publisher,
		stream:    stream,
		maxLen:    maxLen,
		now:       time.Now,
	}
}

func (e *StreamEmitter) Emit(ctx context.Context, n domain.SyncNotification) error {
	values := map[string]any{
		"id":         uuid.New().String(),
		"type":       Kind(n),
		"emitted_at": e.now().UTC().Format(time.RFC3339Nano),
	}
	switch v := n.(type) {
	case domain.NewEventsNotification:
		values["from"] = checkpoint.Encode(v.From)
		values["to"] = checkpoint.Encode(v.To)
	case domain.ReorgEvent:
		values["chain_id"] = v.ChainID
		values["checkpoint"] = checkpoint.Encode(v.SafeCheckpoint)
	case domain.FinalizeNotification:
		values["checkpoint"] = checkpoint.Encode(v.Checkpoint)
	default:
		return fmt.Errorf("unsupported notification %T", n)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	values["payload"] = string(payload)

	if _, err := e.publisher.Publish(ctx, e.stream, e.maxLen, values); err != nil {
		return fmt.Errorf("publish %s to %s: %w", Kind(n), e.stream, err)
	}
	return nil
}

func (e *StreamEmitter) Close() error { return nil }

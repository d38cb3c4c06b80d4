package emitter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
)

// Emitter delivers sync notifications to a consumer
type Emitter interface {
	// Emit sends a single notification
	Emit(ctx context.Context, n domain.SyncNotification) error

	// Close closes the emitter connection
	Close() error
}

// Kind returns the wire name of a notification.
func Kind(n domain.SyncNotification) string {
	switch n.(type) {
	case domain.NewEventsNotification:
		return "new_events"
	case domain.ReorgEvent:
		return "reorg"
	case domain.FinalizeNotification:
		return "finalize"
	default:
		return "unknown"
	}
}

// LogEmitter writes notifications to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("component", "emitter")}
}

func (e *LogEmitter) Emit(ctx context.Context, n domain.SyncNotification) error {
	switch v := n.(type) {
	case domain.NewEventsNotification:
		e.logger.InfoContext(ctx, "new events",
			"from", checkpoint.String(v.From),
			"to", checkpoint.String(v.To),
		)
	case domain.ReorgEvent:
		e.logger.WarnContext(ctx, "reorg",
			"chain_id", v.ChainID,
			"safe_checkpoint", checkpoint.String(v.SafeCheckpoint),
		)
	case domain.FinalizeNotification:
		e.logger.InfoContext(ctx, "finalized", "checkpoint", checkpoint.String(v.Checkpoint))
	}
	return nil
}

func (e *LogEmitter) Close() error { return nil }

// Multi fans a notification out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, n domain.SyncNotification) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/core/interval"
)

var (
	// ErrCheckpointNotFound is returned when no checkpoint was persisted yet
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// SyncStore holds everything the sync workers fetch from the networks.
type SyncStore interface {
	// InsertLogs stores raw logs, replacing logs at the same position
	InsertLogs(ctx context.Context, logs []domain.Log) error

	// InsertBlock stores a block header
	InsertBlock(ctx context.Context, chainID uint64, block domain.Block) error

	// InsertInterval records that a source is fully synced over a block range
	InsertInterval(ctx context.Context, chainID uint64, sourceID string, iv interval.Interval) error

	// GetIntervals returns the merged synced ranges of a source
	GetIntervals(ctx context.Context, chainID uint64, sourceID string) ([]interval.Interval, error)

	// GetLogs returns the stored logs of a chain in a block range, ordered by position
	GetLogs(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) ([]domain.Log, error)

	// GetRPCRequestResult returns a cached RPC result
	GetRPCRequestResult(ctx context.Context, chainID uint64, request string) (json.RawMessage, bool, error)

	// InsertRPCRequestResult caches an RPC result pinned to a block
	InsertRPCRequestResult(
		ctx context.Context,
		chainID uint64,
		blockNumber uint64,
		request string,
		result json.RawMessage,
	) error

	// DeleteRealtimeData removes logs, blocks, intervals and cached RPC results
	// at or above fromBlock (reorg rollback)
	DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error
}

// CheckpointRepository persists the consumer's global checkpoint
type CheckpointRepository interface {
	// Get returns the persisted checkpoint or ErrCheckpointNotFound
	Get(ctx context.Context) (domain.Checkpoint, error)

	// Save saves/updates the checkpoint
	Save(ctx context.Context, cp domain.Checkpoint) error

	// Reset deletes the persisted checkpoint
	Reset(ctx context.Context) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

const globalCheckpointName = "global"

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Get retrieves the persisted checkpoint.
func (r *CheckpointRepo) Get(ctx context.Context) (domain.Checkpoint, error) {
	var encoded string
	err := r.db.GetContext(ctx, &encoded,
		`SELECT checkpoint FROM sync_checkpoints WHERE name = $1`, globalCheckpointName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	cp, err := checkpoint.Decode(encoded)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

// Save saves the checkpoint.
func (r *CheckpointRepo) Save(ctx context.Context, cp domain.Checkpoint) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sync_checkpoints (name, checkpoint, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
    checkpoint = EXCLUDED.checkpoint,
    updated_at = EXCLUDED.updated_at`,
		globalCheckpointName, checkpoint.Encode(cp), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset deletes the persisted checkpoint.
func (r *CheckpointRepo) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_checkpoints WHERE name = $1`, globalCheckpointName); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/core/interval"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

// SyncStore implements storage.SyncStore using PostgreSQL.
type SyncStore struct {
	db *DB
}

var _ storage.SyncStore = (*SyncStore)(nil)

// NewSyncStore creates a new PostgreSQL sync store.
func NewSyncStore(db *DB) *SyncStore {
	return &SyncStore{db: db}
}

type logRow struct {
	ChainID          int64  `db:"chain_id"`
	BlockNumber      int64  `db:"block_number"`
	LogIndex         int64  `db:"log_index"`
	BlockHash        string `db:"block_hash"`
	TransactionHash  string `db:"transaction_hash"`
	TransactionIndex int64  `db:"transaction_index"`
	Address          string `db:"address"`
	Topics           string `db:"topics"`
	Data             string `db:"data"`
}

func toLogRow(l domain.Log) logRow {
	return logRow{
		ChainID:          int64(l.ChainID),
		BlockNumber:      int64(l.BlockNumber),
		LogIndex:         int64(l.LogIndex),
		BlockHash:        l.BlockHash,
		TransactionHash:  l.TransactionHash,
		TransactionIndex: int64(l.TransactionIndex),
		Address:          l.Address,
		Topics:           strings.Join(l.Topics, ","),
		Data:             l.Data,
	}
}

func (r logRow) toDomain() domain.Log {
	var topics []string
	if r.Topics != "" {
		topics = strings.Split(r.Topics, ",")
	}
	return domain.Log{
		ChainID:          uint64(r.ChainID),
		BlockNumber:      uint64(r.BlockNumber),
		BlockHash:        r.BlockHash,
		TransactionHash:  r.TransactionHash,
		TransactionIndex: uint64(r.TransactionIndex),
		LogIndex:         uint64(r.LogIndex),
		Address:          r.Address,
		Topics:           topics,
		Data:             r.Data,
	}
}

const insertLogsQuery = `
INSERT INTO sync_logs (
    chain_id, block_number, log_index, block_hash, transaction_hash,
    transaction_index, address, topics, data
) VALUES (
    :chain_id, :block_number, :log_index, :block_hash, :transaction_hash,
    :transaction_index, :address, :topics, :data
)
ON CONFLICT (chain_id, block_number, log_index) DO UPDATE SET
    block_hash = EXCLUDED.block_hash,
    transaction_hash = EXCLUDED.transaction_hash,
    transaction_index = EXCLUDED.transaction_index,
    address = EXCLUDED.address,
    topics = EXCLUDED.topics,
    data = EXCLUDED.data`

// logBatchSize keeps multi-row inserts under the postgres parameter limit.
const logBatchSize = 1000

// InsertLogs stores logs with multi-row INSERTs.
func (s *SyncStore) InsertLogs(ctx context.Context, logs []domain.Log) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(logs); start += logBatchSize {
		end := min(start+logBatchSize, len(logs))
		rows := make([]logRow, 0, end-start)
		for _, l := range logs[start:end] {
			rows = append(rows, toLogRow(l))
		}
		if _, err := tx.NamedExecContext(ctx, insertLogsQuery, rows); err != nil {
			return fmt.Errorf("failed to insert logs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit logs: %w", err)
	}
	return nil
}

// InsertBlock stores a block header.
func (s *SyncStore) InsertBlock(ctx context.Context, chainID uint64, block domain.Block) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_blocks (chain_id, number, hash, parent_hash, timestamp)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (chain_id, number) DO UPDATE SET
    hash = EXCLUDED.hash,
    parent_hash = EXCLUDED.parent_hash,
    timestamp = EXCLUDED.timestamp`,
		int64(chainID), int64(block.Number), block.Hash, block.ParentHash, int64(block.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

type intervalRow struct {
	From int64 `db:"from_block"`
	To   int64 `db:"to_block"`
}

func selectIntervals(ctx context.Context, q sqlx.QueryerContext, chainID uint64, sourceID string) ([]interval.Interval, error) {
	var rows []intervalRow
	err := sqlx.SelectContext(ctx, q, &rows, `
SELECT from_block, to_block FROM sync_intervals
WHERE chain_id = $1 AND source_id = $2
ORDER BY from_block`, int64(chainID), sourceID)
	if err != nil {
		return nil, err
	}
	out := make([]interval.Interval, len(rows))
	for i, r := range rows {
		out[i] = interval.Interval{From: uint64(r.From), To: uint64(r.To)}
	}
	return out, nil
}

// InsertInterval merges the interval into the stored ones of the source.
func (s *SyncStore) InsertInterval(
	ctx context.Context,
	chainID uint64,
	sourceID string,
	iv interval.Interval,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// serialize merges per source
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		fmt.Sprintf("%d:%s", chainID, sourceID)); err != nil {
		return fmt.Errorf("failed to lock intervals: %w", err)
	}

	existing, err := selectIntervals(ctx, tx, chainID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get intervals: %w", err)
	}
	merged := interval.Union(append(existing, iv))

	if err := replaceIntervals(ctx, tx, chainID, sourceID, merged); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit intervals: %w", err)
	}
	return nil
}

func replaceIntervals(
	ctx context.Context,
	tx *sqlx.Tx,
	chainID uint64,
	sourceID string,
	intervals []interval.Interval,
) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sync_intervals WHERE chain_id = $1 AND source_id = $2`,
		int64(chainID), sourceID,
	); err != nil {
		return fmt.Errorf("failed to delete intervals: %w", err)
	}
	for _, m := range intervals {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sync_intervals (chain_id, source_id, from_block, to_block)
VALUES ($1, $2, $3, $4)`,
			int64(chainID), sourceID, int64(m.From), int64(m.To),
		); err != nil {
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}
	return nil
}

// GetIntervals returns the stored intervals of a source.
func (s *SyncStore) GetIntervals(ctx context.Context, chainID uint64, sourceID string) ([]interval.Interval, error) {
	out, err := selectIntervals(ctx, s.db, chainID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get intervals: %w", err)
	}
	return out, nil
}

// GetLogs returns the logs of a chain in a block range.
func (s *SyncStore) GetLogs(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) ([]domain.Log, error) {
	var rows []logRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT chain_id, block_number, log_index, block_hash, transaction_hash,
       transaction_index, address, topics, data
FROM sync_logs
WHERE chain_id = $1 AND block_number BETWEEN $2 AND $3
ORDER BY block_number, log_index`, int64(chainID), int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	logs := make([]domain.Log, len(rows))
	for i, r := range rows {
		logs[i] = r.toDomain()
	}
	return logs, nil
}

// GetRPCRequestResult returns a cached RPC result.
func (s *SyncStore) GetRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	request string,
) (json.RawMessage, bool, error) {
	var result string
	err := s.db.GetContext(ctx, &result,
		`SELECT result FROM rpc_request_results WHERE chain_id = $1 AND request = $2`,
		int64(chainID), request,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rpc result: %w", err)
	}
	return json.RawMessage(result), true, nil
}

// InsertRPCRequestResult caches an RPC result.
func (s *SyncStore) InsertRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	blockNumber uint64,
	request string,
	result json.RawMessage,
) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO rpc_request_results (chain_id, request, block_number, result)
VALUES ($1, $2, $3, $4)
ON CONFLICT (chain_id, request) DO UPDATE SET
    block_number = EXCLUDED.block_number,
    result = EXCLUDED.result`,
		int64(chainID), request, int64(blockNumber), string(result),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rpc result: %w", err)
	}
	return nil
}

// DeleteRealtimeData removes everything at or above fromBlock in one transaction.
func (s *SyncStore) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chain, from := int64(chainID), int64(fromBlock)
	for _, q := range []string{
		`DELETE FROM sync_logs WHERE chain_id = $1 AND block_number >= $2`,
		`DELETE FROM sync_blocks WHERE chain_id = $1 AND number >= $2`,
		`DELETE FROM rpc_request_results WHERE chain_id = $1 AND block_number >= $2`,
		`DELETE FROM sync_intervals WHERE chain_id = $1 AND from_block >= $2`,
		`UPDATE sync_intervals SET to_block = $2 - 1 WHERE chain_id = $1 AND to_block >= $2`,
	} {
		if _, err := tx.ExecContext(ctx, q, chain, from); err != nil {
			return fmt.Errorf("failed to delete realtime data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainsync/internal/infra/storage"
)

// Key helpers
func rpcResultKey(chainID uint64, request string) string {
	return fmt.Sprintf("chainsync:rpc:%d:%s", chainID, request)
}

func rpcIndexKey(chainID uint64) string {
	return fmt.Sprintf("chainsync:rpc_index:%d", chainID)
}

// CachedStore puts Redis in front of the RPC result cache of a sync store.
// Every other method goes straight to the wrapped store.
type CachedStore struct {
	storage.SyncStore

	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps store. A zero ttl keeps entries until a reorg removes them.
func NewCachedStore(client *Client, store storage.SyncStore, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		SyncStore: store,
		rdb:       client.rdb,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetRPCRequestResult reads Redis first and falls back to the wrapped store,
// filling Redis on a store hit.
func (s *CachedStore) GetRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	request string,
) (json.RawMessage, bool, error) {
	val, err := s.rdb.Get(ctx, rpcResultKey(chainID, request)).Bytes()
	if err == nil {
		return json.RawMessage(val), true, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("Redis get failed", "chainId", chainID, "error", err)
	}

	result, ok, err := s.SyncStore.GetRPCRequestResult(ctx, chainID, request)
	if err != nil || !ok {
		return result, ok, err
	}
	// block number is unknown here, index it at +inf so any reorg clears it
	if err := s.cache(ctx, chainID, -1, request, result); err != nil {
		s.logger.Warn("Redis fill failed", "chainId", chainID, "error", err)
	}
	return result, true, nil
}

// InsertRPCRequestResult writes the wrapped store and Redis.
func (s *CachedStore) InsertRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	blockNumber uint64,
	request string,
	result json.RawMessage,
) error {
	if err := s.SyncStore.InsertRPCRequestResult(ctx, chainID, blockNumber, request, result); err != nil {
		return err
	}
	if err := s.cache(ctx, chainID, int64(blockNumber), request, result); err != nil {
		s.logger.Warn("Redis set failed", "chainId", chainID, "error", err)
	}
	return nil
}

// cache stores a result and indexes its key by block number. A negative
// block number indexes the key at +inf.
func (s *CachedStore) cache(
	ctx context.Context,
	chainID uint64,
	blockNumber int64,
	request string,
	result json.RawMessage,
) error {
	key := rpcResultKey(chainID, request)
	score := float64(blockNumber)
	if blockNumber < 0 {
		score = maxScore
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, []byte(result), s.ttl)
	pipe.ZAdd(ctx, rpcIndexKey(chainID), redis.Z{Score: score, Member: key})
	_, err := pipe.Exec(ctx)
	return err
}

// maxScore sorts after every block number.
const maxScore = 1 << 62

// DeleteRealtimeData drops cached results at or above fromBlock, then
// deletes from the wrapped store.
func (s *CachedStore) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error {
	index := rpcIndexKey(chainID)
	from := strconv.FormatUint(fromBlock, 10)

	keys, err := s.rdb.ZRangeByScore(ctx, index, &redis.ZRangeBy{Min: from, Max: "+inf"}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(keys) > 0 {
		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, keys...)
		pipe.ZRemRangeByScore(ctx, index, from, "+inf")
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to invalidate rpc cache: %w", err)
		}
	}

	return s.SyncStore.DeleteRealtimeData(ctx, chainID, fromBlock)
}

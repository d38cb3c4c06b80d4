// Package rpccache caches RPC results pinned to a block number in the sync store.
package rpccache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/infra/rpc"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

// blockParamIndex is the position of the block parameter of cacheable methods.
var blockParamIndex = map[string]int{
	"eth_getBlockByNumber":    0,
	"eth_call":                1,
	"eth_getBalance":          1,
	"eth_getCode":             1,
	"eth_getTransactionCount": 1,
	"eth_getStorageAt":        2,
}

// CachedQueue is a read-through cache over a network's request queue.
type CachedQueue struct {
	network domain.Network
	queue   rpc.RequestQueue
	store   storage.SyncStore
	logger  *slog.Logger
}

var _ rpc.RequestQueue = (*CachedQueue)(nil)

// New wraps queue with a cache backed by store.
func New(network domain.Network, queue rpc.RequestQueue, store storage.SyncStore, logger *slog.Logger) *CachedQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedQueue{
		network: network,
		queue:   queue,
		store:   store,
		logger:  logger,
	}
}

// Request serves cacheable requests from the store and forwards the rest.
func (c *CachedQueue) Request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	blockNumber, ok := BlockNumber(method, params)
	if !ok {
		return c.queue.Request(ctx, method, params)
	}

	key, err := RequestKey(method, params)
	if err != nil {
		return nil, err
	}

	cached, found, err := c.store.GetRPCRequestResult(ctx, c.network.ChainID, key)
	if err != nil {
		return nil, fmt.Errorf("read rpc cache: %w", err)
	}
	if found {
		metrics.RPCCacheHits.WithLabelValues(c.network.Name, method).Inc()
		return cached, nil
	}
	metrics.RPCCacheMisses.WithLabelValues(c.network.Name, method).Inc()

	result, err := c.queue.Request(ctx, method, params)
	if err != nil {
		return nil, err
	}

	// the node may not have the block yet
	if strings.TrimSpace(string(result)) == "null" {
		return result, nil
	}

	if err := c.store.InsertRPCRequestResult(ctx, c.network.ChainID, blockNumber, key, result); err != nil {
		c.logger.Warn("Failed to cache RPC result",
			"network", c.network.Name,
			"method", method,
			"error", err,
		)
	}
	return result, nil
}

// RequestKey returns the canonical JSON encoding of a request. Object keys are
// sorted by encoding/json, so equal requests produce equal keys.
func RequestKey(method string, params []any) (string, error) {
	if params == nil {
		params = []any{}
	}
	b, err := json.Marshal(struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
	}{method, params})
	if err != nil {
		return "", fmt.Errorf("encode request key: %w", err)
	}
	return strings.ToLower(string(b)), nil
}

// BlockNumber returns the block a request is pinned to. Requests using block
// tags such as "latest" are not pinned.
func BlockNumber(method string, params []any) (uint64, bool) {
	idx, ok := blockParamIndex[method]
	if !ok || idx >= len(params) {
		return 0, false
	}
	return parseBlockParam(params[idx])
}

func parseBlockParam(v any) (uint64, bool) {
	switch p := v.(type) {
	case string:
		n, err := hexutil.DecodeUint64(p)
		if err != nil {
			return 0, false
		}
		return n, true
	case uint64:
		return p, true
	case int:
		if p < 0 {
			return 0, false
		}
		return uint64(p), true
	case hexutil.Uint64:
		return uint64(p), true
	case map[string]any:
		// EIP-1898 block object; pinning by hash has no number to index on
		if n, ok := p["blockNumber"]; ok {
			return parseBlockParam(n)
		}
	}
	return 0, false
}

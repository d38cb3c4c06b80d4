package rpccache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/infra/storage/memory"
)

type countingQueue struct {
	calls  int
	result string
	err    error
}

func (q *countingQueue) Request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return json.RawMessage(q.result), nil
}

func TestCachedQueue_CachesPinnedRequests(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	inner := &countingQueue{result: `"0xbeef"`}
	network := domain.Network{Name: "cache-test-mainnet", ChainID: 1}
	q := New(network, inner, store, nil)

	params := []any{map[string]any{"to": "0xabc", "data": "0x01"}, "0x10"}

	for i := 0; i < 3; i++ {
		got, err := q.Request(ctx, "eth_call", params)
		require.NoError(t, err)
		assert.Equal(t, `"0xbeef"`, string(got))
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RPCCacheHits.WithLabelValues(network.Name, "eth_call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RPCCacheMisses.WithLabelValues(network.Name, "eth_call")))
}

func TestCachedQueue_TagsPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingQueue{result: `"0x1"`}
	q := New(domain.Network{Name: "mainnet", ChainID: 1}, inner, memory.NewMemoryStorage(), nil)

	for i := 0; i < 2; i++ {
		_, err := q.Request(ctx, "eth_getBalance", []any{"0xabc", "latest"})
		require.NoError(t, err)
		_, err = q.Request(ctx, "eth_blockNumber", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, inner.calls)
}

func TestCachedQueue_NeverServesAcrossNetworks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	mainnet := &countingQueue{result: `"mainnet"`}
	polygon := &countingQueue{result: `"polygon"`}

	a := New(domain.Network{Name: "mainnet", ChainID: 1}, mainnet, store, nil)
	b := New(domain.Network{Name: "polygon", ChainID: 137}, polygon, store, nil)

	params := []any{"0x5", false}
	got, err := a.Request(ctx, "eth_getBlockByNumber", params)
	require.NoError(t, err)
	assert.Equal(t, `"mainnet"`, string(got))

	got, err = b.Request(ctx, "eth_getBlockByNumber", params)
	require.NoError(t, err)
	assert.Equal(t, `"polygon"`, string(got))
	assert.Equal(t, 1, polygon.calls)
}

func TestCachedQueue_NullNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingQueue{result: `null`}
	q := New(domain.Network{Name: "mainnet", ChainID: 1}, inner, memory.NewMemoryStorage(), nil)

	for i := 0; i < 2; i++ {
		_, err := q.Request(ctx, "eth_getBlockByNumber", []any{"0x99", false})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedQueue_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	inner := &countingQueue{err: boom}
	q := New(domain.Network{Name: "mainnet", ChainID: 1}, inner, memory.NewMemoryStorage(), nil)

	_, err := q.Request(ctx, "eth_getCode", []any{"0xabc", "0x1"})
	assert.ErrorIs(t, err, boom)
	_, err = q.Request(ctx, "eth_getCode", []any{"0xabc", "0x1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, inner.calls)
}

func TestRequestKey_Canonical(t *testing.T) {
	a, err := RequestKey("eth_call", []any{map[string]any{"to": "0xABC", "data": "0x01"}, "0x10"})
	require.NoError(t, err)
	b, err := RequestKey("eth_call", []any{map[string]any{"data": "0x01", "to": "0xabc"}, "0x10"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := RequestKey("eth_call", []any{map[string]any{"data": "0x01", "to": "0xabc"}, "0x11"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestBlockNumber(t *testing.T) {
	tests := []struct {
		method string
		params []any
		want   uint64
		ok     bool
	}{
		{"eth_getBlockByNumber", []any{"0x10", true}, 16, true},
		{"eth_getBlockByNumber", []any{"latest", false}, 0, false},
		{"eth_getBlockByNumber", []any{"finalized", false}, 0, false},
		{"eth_getStorageAt", []any{"0xabc", "0x0", "0x20"}, 32, true},
		{"eth_call", []any{map[string]any{}, map[string]any{"blockNumber": "0x7"}}, 7, true},
		{"eth_call", []any{map[string]any{}, map[string]any{"blockHash": "0xabc"}}, 0, false},
		{"eth_call", []any{map[string]any{}}, 0, false},
		{"eth_getLogs", []any{map[string]any{"fromBlock": "0x1"}}, 0, false},
		{"eth_getBalance", []any{"0xabc", uint64(9)}, 9, true},
	}
	for _, tt := range tests {
		got, ok := BlockNumber(tt.method, tt.params)
		assert.Equal(t, tt.ok, ok, "%s %v", tt.method, tt.params)
		assert.Equal(t, tt.want, got, "%s %v", tt.method, tt.params)
	}
}

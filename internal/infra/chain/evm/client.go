// Package evm reads blocks and logs from EVM JSON-RPC endpoints.
package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/infra/rpc"
)

// ErrBlockNotFound is returned when the node has no block for the request.
var ErrBlockNotFound = errors.New("block not found")

// Block tags accepted by eth_getBlockByNumber.
const (
	TagLatest    = "latest"
	TagSafe      = "safe"
	TagFinalized = "finalized"
)

// Client issues typed EVM requests over a request queue.
type Client struct {
	queue rpc.RequestQueue
}

// NewClient wraps a request queue.
func NewClient(queue rpc.RequestQueue) *Client {
	return &Client{queue: queue}
}

type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       string         `json:"hash"`
	ParentHash string         `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	LogsBloom  string         `json:"logsBloom"`
}

type rpcLog struct {
	Address          string         `json:"address"`
	Topics           []string       `json:"topics"`
	Data             string         `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	BlockHash        string         `json:"blockHash"`
	TransactionHash  string         `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

// ChainID returns the result of eth_chainId.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	result, err := c.queue.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId failed: %w", err)
	}
	var id hexutil.Uint64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, fmt.Errorf("decode chain id: %w", err)
	}
	return uint64(id), nil
}

// GetLatestBlock returns the header of the latest block.
func (c *Client) GetLatestBlock(ctx context.Context) (domain.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByNumber", TagLatest)
}

// GetBlockByTag returns the header of a tagged block such as "finalized".
func (c *Client) GetBlockByTag(ctx context.Context, tag string) (domain.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByNumber", tag)
}

// GetBlockByNumber returns the header of a block by number.
func (c *Client) GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number))
}

// GetBlockByHash returns the header of a block by hash.
func (c *Client) GetBlockByHash(ctx context.Context, hash string) (domain.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByHash", hash)
}

func (c *Client) getBlock(ctx context.Context, method, id string) (domain.Block, error) {
	result, err := c.queue.Request(ctx, method, []any{id, false})
	if err != nil {
		return domain.Block{}, fmt.Errorf("%s(%s) failed: %w", method, id, err)
	}
	return decodeBlock(result, id)
}

func decodeBlock(raw json.RawMessage, id string) (domain.Block, error) {
	if isNull(raw) {
		return domain.Block{}, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	var b rpcBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Block{}, fmt.Errorf("decode block %s: %w", id, err)
	}
	return domain.Block{
		Number:     uint64(b.Number),
		Hash:       strings.ToLower(b.Hash),
		ParentHash: strings.ToLower(b.ParentHash),
		Timestamp:  uint64(b.Timestamp),
		LogsBloom:  b.LogsBloom,
	}, nil
}

// LogFilter selects logs for eth_getLogs. Set either BlockHash or the
// FromBlock/ToBlock range.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	BlockHash string
	Addresses []string
	// Topics are alternatives for the first topic position.
	Topics []string
}

func (f LogFilter) params() map[string]any {
	p := map[string]any{}
	if f.BlockHash != "" {
		p["blockHash"] = f.BlockHash
	} else {
		p["fromBlock"] = hexutil.EncodeUint64(f.FromBlock)
		p["toBlock"] = hexutil.EncodeUint64(f.ToBlock)
	}
	if len(f.Addresses) > 0 {
		p["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		p["topics"] = [][]string{f.Topics}
	}
	return p
}

// GetLogs returns the logs matching the filter, dropping logs flagged as removed.
func (c *Client) GetLogs(ctx context.Context, chainID uint64, filter LogFilter) ([]domain.Log, error) {
	result, err := c.queue.Request(ctx, "eth_getLogs", []any{filter.params()})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	if isNull(result) {
		return nil, nil
	}

	var raw []rpcLog
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}

	logs := make([]domain.Log, 0, len(raw))
	for _, l := range raw {
		if l.Removed {
			continue
		}
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = strings.ToLower(t)
		}
		logs = append(logs, domain.Log{
			ChainID:          chainID,
			BlockNumber:      uint64(l.BlockNumber),
			BlockHash:        strings.ToLower(l.BlockHash),
			TransactionHash:  strings.ToLower(l.TransactionHash),
			TransactionIndex: uint64(l.TransactionIndex),
			LogIndex:         uint64(l.LogIndex),
			Address:          strings.ToLower(l.Address),
			Topics:           topics,
			Data:             l.Data,
		})
	}
	return logs, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

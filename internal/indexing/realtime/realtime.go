// Package realtime follows the head of one network.
//
// The worker polls the latest block, ingests every new block on top of its
// local unfinalized chain and reports a checkpoint per block. A block that
// does not extend the local tip triggers reorg handling: the common ancestor
// is located, stored data above it is deleted and a reorg event is reported.
// When the local chain grows past twice the finality depth, the block at
// tip minus finality becomes finalized.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/filter"
	"github.com/vietddude/chainsync/internal/indexing/reorg"
	"github.com/vietddude/chainsync/internal/indexing/throttle"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

// ChainClient is the subset of the EVM client the worker uses.
type ChainClient interface {
	GetLatestBlock(ctx context.Context) (domain.Block, error)
	GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error)
	GetLogs(ctx context.Context, chainID uint64, filter evm.LogFilter) ([]domain.Log, error)
}

// Params configures a realtime worker.
type Params struct {
	Network domain.Network
	Sources []domain.Source
	Client  ChainClient
	Store   storage.SyncStore
	Logger  *slog.Logger

	// Finalized is the finalized block header observed at startup.
	Finalized domain.Block

	OnEvent      func(domain.RealtimeSyncEvent)
	OnFatalError func(error)

	MaxBlocksPerPoll     uint64 // default: 100
	MaxConsecutiveErrors int    // default: 10
	Throttle             throttle.AdaptiveConfig
}

const (
	DefaultMaxBlocksPerPoll     = 100
	DefaultMaxConsecutiveErrors = 10
	DefaultPollingInterval      = time.Second
)

// New creates a realtime worker. Nothing runs until Start.
func New(p Params) *Worker {
	if p.MaxBlocksPerPoll == 0 {
		p.MaxBlocksPerPoll = DefaultMaxBlocksPerPoll
	}
	if p.MaxConsecutiveErrors <= 0 {
		p.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if p.Network.PollingInterval <= 0 {
		p.Network.PollingInterval = DefaultPollingInterval
	}
	if p.Throttle == (throttle.AdaptiveConfig{}) {
		p.Throttle = throttle.DefaultConfig()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.OnEvent == nil {
		p.OnEvent = func(domain.RealtimeSyncEvent) {}
	}
	if p.OnFatalError == nil {
		p.OnFatalError = func(error) {}
	}

	w := &Worker{
		params:   p,
		logger:   p.Logger.With("network", p.Network.Name, "component", "realtime"),
		chain:    reorg.NewChain(p.Finalized),
		filter:   filter.New(p.Sources),
		handler:  reorg.NewHandler(p.Store),
		throttle: throttle.NewAdaptiveController(p.Network.PollingInterval, p.Throttle),
		done:     make(chan struct{}),
	}
	// The local chain never holds more than 2x finality plus one poll of blocks.
	maxDepth := int(2*p.Network.FinalityBlockCount + p.MaxBlocksPerPoll + 1)
	w.detector = reorg.NewDetector(reorg.Config{MaxDepth: maxDepth}, canonicalBlock(p.Client))
	w.tip.Store(p.Finalized.Number)
	return w
}

// canonicalBlock treats a block the node no longer has as a mismatch rather
// than an error, so a reorg to a shorter chain can be walked back.
func canonicalBlock(client ChainClient) reorg.BlockFetcher {
	return func(ctx context.Context, number uint64) (domain.Block, error) {
		b, err := client.GetBlockByNumber(ctx, number)
		if errors.Is(err, evm.ErrBlockNotFound) {
			return domain.Block{Number: number}, nil
		}
		return b, err
	}
}

// Package backfill runs the historical sync of one network.
//
// # Design: Interval Bookkeeping
//
// Every source records the block ranges it has fully synced. On setup the
// worker subtracts those ranges from [StartBlock, min(EndBlock, finalized)],
// so a restart only fetches what is missing.
//
// The remaining work is walked in ascending chunks of MaxBlockRange blocks:
//   - eth_getLogs per overlapping source, bounded by Concurrency
//   - logs, the chunk end block and the synced intervals are stored
//   - a checkpoint at the chunk end block is reported
//
// Once every chunk is done the worker reports the finalized block and calls
// OnComplete exactly once.
//
// # Usage
//
//	w := backfill.New(backfill.Params{Network: n, Sources: s, Client: c, Store: store})
//	if err := w.Setup(ctx, latest, finalized); err != nil { ... }
//	w.Start()
//	defer w.Stop()
package backfill

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
	"github.com/vietddude/chainsync/internal/infra/rpc/routing"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

var (
	// ErrNotSetup is returned by Start when Setup was not called.
	ErrNotSetup = errors.New("historical worker not set up")
)

// ChainClient is the subset of the EVM client the worker uses.
type ChainClient interface {
	GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error)
	GetLogs(ctx context.Context, chainID uint64, filter evm.LogFilter) ([]domain.Log, error)
}

// Params configures a historical worker.
type Params struct {
	Network domain.Network
	Sources []domain.Source
	Client  ChainClient
	Store   storage.SyncStore
	Logger  *slog.Logger

	OnCheckpoint func(domain.Checkpoint)
	OnComplete   func()
	OnFatalError func(error)

	MaxBlockRange uint64 // Blocks per eth_getLogs chunk (default: 2000)
	Concurrency   int    // Parallel eth_getLogs requests per chunk (default: 4)
	Retry         routing.RetryConfig
}

const (
	DefaultMaxBlockRange = 2000
	DefaultConcurrency   = 4
)

// New creates a historical worker.
func New(p Params) *Worker {
	if p.MaxBlockRange == 0 {
		p.MaxBlockRange = DefaultMaxBlockRange
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.Retry.MaxAttempts == 0 {
		p.Retry = routing.RetryConfig{
			MaxAttempts:     5,
			InitialDelay:    500 * time.Millisecond,
			MaxDelay:        30 * time.Second,
			BackoffMultiple: 2.0,
		}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.OnCheckpoint == nil {
		p.OnCheckpoint = func(domain.Checkpoint) {}
	}
	if p.OnComplete == nil {
		p.OnComplete = func() {}
	}
	if p.OnFatalError == nil {
		p.OnFatalError = func(error) {}
	}
	return &Worker{
		params: p,
		logger: p.Logger.With("network", p.Network.Name, "component", "historical"),
		done:   make(chan struct{}),
	}
}

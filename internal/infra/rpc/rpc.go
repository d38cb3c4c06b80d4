// Package rpc provides a resilient JSON-RPC client for EVM networks.
//
// This package offers:
//   - Multiple provider support (Alchemy, Infura, etc.) with failover
//   - Request rate limiting per network
//   - Retry with exponential backoff
//   - Health monitoring
//
// # Quick Start
//
//	import "github.com/vietddude/chainsync/internal/infra/rpc"
//
//	queue := rpc.NewQueueForNetwork(network, 30*time.Second)
//	defer queue.Close()
//
//	result, err := queue.Request(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, monitoring)
//   - routing/  - Provider ordering, retry logic and failover
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/metrics"
	"github.com/vietddude/chainsync/internal/infra/rpc/provider"
	"github.com/vietddude/chainsync/internal/infra/rpc/routing"
)

// RequestQueue issues JSON-RPC requests against one network.
type RequestQueue interface {
	Request(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// DefaultTimeout is the per-request HTTP timeout of providers built from config.
const DefaultTimeout = 30 * time.Second

// Queue is the RequestQueue of a network. Requests pass a rate limiter and are
// retried and failed over across the network's providers.
type Queue struct {
	network string
	router  *routing.Router
	limiter *rate.Limiter
	retry   routing.RetryConfig
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg routing.RetryConfig) Option {
	return func(q *Queue) { q.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// NewQueue creates a queue for the network over the given providers.
func NewQueue(network domain.Network, providers []provider.Provider, opts ...Option) *Queue {
	q := &Queue{
		network: network.Name,
		router:  routing.NewRouter(providers...),
		limiter: newLimiter(network.MaxRequestsPerSecond),
		retry:   routing.DefaultRetryConfig,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewQueueForNetwork creates HTTP providers for every configured endpoint of
// the network and wraps them in a queue.
func NewQueueForNetwork(network domain.Network, timeout time.Duration, opts ...Option) *Queue {
	providers := make([]provider.Provider, 0, len(network.Providers))
	for i, p := range network.Providers {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", network.Name, i)
		}
		providers = append(providers, provider.NewHTTPProvider(name, p.URL, timeout))
	}
	return NewQueue(network, providers, opts...)
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Request issues a JSON-RPC request and returns its raw result.
func (q *Queue) Request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	result, providerName, err := routing.CallWithFailover(ctx, q.router, method, params, q.retry)
	if providerName == "" {
		providerName = "none"
	}

	metrics.RPCCallsTotal.WithLabelValues(q.network, providerName, method).Inc()
	metrics.RPCLatency.WithLabelValues(q.network, providerName, method).Observe(time.Since(start).Seconds())

	if err != nil {
		action := routing.ClassifyError(err)
		metrics.RPCErrorsTotal.WithLabelValues(q.network, providerName, action.String()).Inc()
		if !errors.Is(err, context.Canceled) {
			q.logger.Debug("RPC request failed",
				"network", q.network,
				"method", method,
				"provider", providerName,
				"error", err,
			)
		}
		return nil, fmt.Errorf("%s %s: %w", q.network, method, err)
	}

	return result, nil
}

// Close releases the providers' connections.
func (q *Queue) Close() error {
	return q.router.Close()
}

// Package routing handles provider selection, retry, and failover logic.
//
// This package contains:
//   - Router: provider ordering with a circuit breaker per provider
//   - Retry: exponential backoff, error classification, and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/chainsync/internal/infra/rpc/provider"
)

const (
	circuitOpenAfter    = 5
	circuitOpenDuration = 30 * time.Second
)

// circuitState tracks consecutive failures of one provider.
type circuitState struct {
	consecutiveFails int
	circuitOpenUntil time.Time
}

// Router orders the providers of one network for each call.
type Router struct {
	mu        sync.Mutex
	providers []provider.Provider
	circuits  map[string]*circuitState
	next      int
	now       func() time.Time
}

// NewRouter creates a router over the given providers.
func NewRouter(providers ...provider.Provider) *Router {
	r := &Router{
		circuits: make(map[string]*circuitState, len(providers)),
		now:      time.Now,
	}
	for _, p := range providers {
		r.providers = append(r.providers, p)
		r.circuits[p.GetName()] = &circuitState{}
	}
	return r
}

// Providers returns every provider in call order: usable providers first,
// rotating round-robin among them, then providers that are blocked or whose
// circuit is open as a last resort.
func (r *Router) Providers() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.providers)
	if n == 0 {
		return nil
	}

	now := r.now()
	var usable, fallback []provider.Provider
	for i := 0; i < n; i++ {
		p := r.providers[(r.next+i)%n]
		if p.IsAvailable() && !now.Before(r.circuits[p.GetName()].circuitOpenUntil) {
			usable = append(usable, p)
		} else {
			fallback = append(fallback, p)
		}
	}
	r.next = (r.next + 1) % n

	return append(usable, fallback...)
}

// RecordSuccess closes the provider's circuit.
func (r *Router) RecordSuccess(providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.circuits[providerName]
	if !ok {
		return
	}
	m.consecutiveFails = 0
	m.circuitOpenUntil = time.Time{}
}

// RecordFailure counts a failed call and opens the provider's circuit after
// circuitOpenAfter consecutive failures.
func (r *Router) RecordFailure(providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.circuits[providerName]
	if !ok {
		return
	}
	m.consecutiveFails++
	if m.consecutiveFails >= circuitOpenAfter {
		m.circuitOpenUntil = r.now().Add(circuitOpenDuration)
	}
}

// Close closes every provider.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package chainsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/backfill"
	"github.com/vietddude/chainsync/internal/indexing/realtime"
	"github.com/vietddude/chainsync/internal/infra/rpc"
	"github.com/vietddude/chainsync/internal/infra/storage/memory"
)

// fakeQueue answers eth_chainId and eth_getBlockByNumber for a synthetic
// chain where block n has timestamp n + tsOffset.
type fakeQueue struct {
	chainID  uint64
	latest   uint64
	tsOffset uint64
	err      error
}

func (q *fakeQueue) Request(_ context.Context, method string, params []any) (json.RawMessage, error) {
	if q.err != nil {
		return nil, q.err
	}
	switch method {
	case "eth_chainId":
		return json.Marshal(hexutil.EncodeUint64(q.chainID))
	case "eth_getBlockByNumber":
		n := q.latest
		if tag := params[0].(string); tag != "latest" {
			var err error
			if n, err = hexutil.DecodeUint64(tag); err != nil {
				return nil, err
			}
		}
		return json.Marshal(map[string]string{
			"number":     hexutil.EncodeUint64(n),
			"hash":       fmt.Sprintf("0x%x", n),
			"parentHash": fmt.Sprintf("0x%x", n-1),
			"timestamp":  hexutil.EncodeUint64(n + q.tsOffset),
		})
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

type fakeHistorical struct {
	mu        sync.Mutex
	params    backfill.Params
	latest    uint64
	finalized uint64
	setupErr  error
	starts    int
	stops     int
}

func (h *fakeHistorical) Setup(_ context.Context, latest, finalized uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest, h.finalized = latest, finalized
	return h.setupErr
}

func (h *fakeHistorical) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *fakeHistorical) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
}

func (h *fakeHistorical) counts() (starts, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts, h.stops
}

type fakeRealtime struct {
	mu     sync.Mutex
	params realtime.Params
	starts int
	stops  int
}

func (r *fakeRealtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *fakeRealtime) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRealtime) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

func (r *fakeRealtime) emit(ev domain.RealtimeSyncEvent) { r.params.OnEvent(ev) }

type testNetwork struct {
	network domain.Network
	queue   *fakeQueue
}

// harness builds a Service over fake queues and workers.
type harness struct {
	svc           *Service
	historical    map[string]*fakeHistorical
	realtime      map[string]*fakeRealtime
	notifications chan domain.SyncNotification
	fatal         chan error
}

func newHarness(t *testing.T, networks []testNetwork, sources []domain.Source, initial domain.Checkpoint) *harness {
	t.Helper()
	h, err := buildHarness(networks, sources, initial)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.svc.Kill(context.Background()) })
	return h
}

func buildHarness(networks []testNetwork, sources []domain.Source, initial domain.Checkpoint) (*harness, error) {
	h := &harness{
		historical:    map[string]*fakeHistorical{},
		realtime:      map[string]*fakeRealtime{},
		notifications: make(chan domain.SyncNotification, 64),
		fatal:         make(chan error, 8),
	}
	queues := map[string]*fakeQueue{}
	nets := make([]domain.Network, len(networks))
	for i, n := range networks {
		nets[i] = n.network
		queues[n.network.Name] = n.queue
		h.historical[n.network.Name] = &fakeHistorical{}
	}
	var mu sync.Mutex

	svc, err := New(context.Background(), Params{
		Store:                        memory.NewMemoryStorage(),
		Networks:                     nets,
		Sources:                      sources,
		OnRealtimeEvent:              func(n domain.SyncNotification) { h.notifications <- n },
		OnFatalError:                 func(err error) { h.fatal <- err },
		InitialCheckpoint:            initial,
		HistoricalCheckpointInterval: 5 * time.Millisecond,
		NewRequestQueue:              func(n domain.Network) rpc.RequestQueue { return queues[n.Name] },
		NewHistorical: func(p backfill.Params) HistoricalWorker {
			w := h.historical[p.Network.Name]
			w.params = p
			return w
		},
		NewRealtime: func(p realtime.Params) RealtimeWorker {
			w := &fakeRealtime{params: p}
			mu.Lock()
			h.realtime[p.Network.Name] = w
			mu.Unlock()
			return w
		},
	})
	if err != nil {
		return nil, err
	}
	h.svc = svc
	return h, nil
}

func (h *harness) next(t *testing.T) domain.SyncNotification {
	t.Helper()
	select {
	case n := <-h.notifications:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

// twoNetworks returns mainnet (chain 1, finalized block 50 at t=100) and
// optimism (chain 2, finalized block 40 at t=90).
func twoNetworks() []testNetwork {
	return []testNetwork{
		{
			network: domain.Network{Name: "mainnet", ChainID: 1, FinalityBlockCount: 10},
			queue:   &fakeQueue{chainID: 1, latest: 60, tsOffset: 50},
		},
		{
			network: domain.Network{Name: "optimism", ChainID: 2, FinalityBlockCount: 5},
			queue:   &fakeQueue{chainID: 2, latest: 45, tsOffset: 50},
		},
	}
}

// liveSources gives both test networks an open-ended source, so each gets a
// realtime worker.
func liveSources() []domain.Source {
	return []domain.Source{
		{ID: "a", NetworkName: "mainnet"},
		{ID: "b", NetworkName: "optimism"},
	}
}

// realtimeWorker returns the fake realtime worker of a network.
func (h *harness) realtimeWorker(t *testing.T, network string) *fakeRealtime {
	t.Helper()
	w, ok := h.realtime[network]
	require.True(t, ok, "network %s has no realtime worker", network)
	return w
}

// cp is the block-level checkpoint of a block.
func cp(ts, chainID, block uint64) domain.Checkpoint {
	return checkpoint.FromBlock(chainID, domain.Block{Number: block, Timestamp: ts})
}

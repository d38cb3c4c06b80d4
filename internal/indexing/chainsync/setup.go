package chainsync

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/backfill"
	"github.com/vietddude/chainsync/internal/indexing/realtime"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
)

// eventBufferSize bounds how many realtime events may wait for the reducer.
const eventBufferSize = 256

// New builds the per-network services in parallel and returns a service
// ready to start. Any RPC failure during setup aborts construction.
func New(ctx context.Context, p Params) (*Service, error) {
	if len(p.Networks) == 0 {
		return nil, ErrNoNetworks
	}
	p.setDefaults()

	s := &Service{
		params:      p,
		logger:      p.Common.Logger.With("service", "sync"),
		sourceByID:  make(map[string]domain.Source, len(p.Sources)),
		byChainID:   make(map[uint64]*networkService, len(p.Networks)),
		byName:      make(map[string]*networkService, len(p.Networks)),
		events:      make(chan domain.RealtimeSyncEvent, eventBufferSize),
		killCh:      make(chan struct{}),
		reducerDone: make(chan struct{}),
		checkpoint:  p.InitialCheckpoint,
	}
	for _, src := range p.Sources {
		s.sourceByID[src.ID] = src
	}

	services := make([]*networkService, len(p.Networks))
	g, gctx := errgroup.WithContext(ctx)
	for i, network := range p.Networks {
		g.Go(func() error {
			ns, err := s.setupNetwork(gctx, network)
			if err != nil {
				return fmt.Errorf("setup network %s: %w", network.Name, err)
			}
			services[i] = ns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, ns := range services {
			if ns != nil {
				closeQueue(ns)
			}
		}
		return nil, err
	}

	initialFinalized := make([]domain.Checkpoint, len(services))
	for i, ns := range services {
		s.byChainID[ns.network.ChainID] = ns
		s.byName[ns.network.Name] = ns
		initialFinalized[i] = ns.initialFinalizedCheckpoint
	}
	s.networks = services
	s.finalizedCheckpoint = checkpoint.Min(initialFinalized...)

	go s.reduceLoop()
	return s, nil
}

func (s *Service) setupNetwork(ctx context.Context, network domain.Network) (*networkService, error) {
	logger := s.logger.With("network", network.Name)

	var sources []domain.Source
	for _, src := range s.params.Sources {
		if src.NetworkName == network.Name {
			sources = append(sources, src)
		}
	}

	queue := s.params.NewRequestQueue(network)
	client := evm.NewClient(queue)
	ns := &networkService{network: network, sources: sources, queue: queue, client: client}

	var (
		latest        domain.Block
		remoteChainID uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		latest, err = client.GetLatestBlock(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		remoteChainID, err = client.ChainID(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		closeQueue(ns)
		return nil, err
	}

	var finalizedNumber uint64
	if latest.Number > network.FinalityBlockCount {
		finalizedNumber = latest.Number - network.FinalityBlockCount
	}
	finalized, err := client.GetBlockByNumber(ctx, finalizedNumber)
	if err != nil {
		closeQueue(ns)
		return nil, err
	}

	if remoteChainID != network.ChainID {
		logger.Warn("remote chain id does not match configured chain id",
			"remote_chain_id", remoteChainID,
			"chain_id", network.ChainID,
		)
	}

	ns.initialFinalizedCheckpoint = checkpoint.FromBlock(network.ChainID, finalized)

	ns.historical.worker = s.params.NewHistorical(backfill.Params{
		Network:      network,
		Sources:      sources,
		Client:       client,
		Store:        s.params.Store,
		Logger:       s.params.Common.Logger,
		OnCheckpoint: func(cp domain.Checkpoint) { s.onHistoricalCheckpoint(ns, cp) },
		OnComplete:   func() { s.onHistoricalComplete(ns) },
		OnFatalError: s.params.OnFatalError,
	})
	if err := ns.historical.worker.Setup(ctx, latest.Number, finalized.Number); err != nil {
		closeQueue(ns)
		return nil, fmt.Errorf("historical setup: %w", err)
	}

	if CanSkipRealtime(sources, finalized.Number) {
		ns.realtime = noRealtime{}
	} else {
		ns.realtime = &realtimeState{
			worker: s.params.NewRealtime(realtime.Params{
				Network:      network,
				Sources:      sources,
				Client:       client,
				Store:        s.params.Store,
				Logger:       s.params.Common.Logger,
				Finalized:    finalized,
				OnEvent:      s.deliver,
				OnFatalError: s.params.OnFatalError,
			}),
			checkpoint:          ns.initialFinalizedCheckpoint,
			finalizedCheckpoint: ns.initialFinalizedCheckpoint,
			finalizedBlock:      finalized,
		}
	}

	logger.Info("network set up",
		"latest", latest.Number,
		"finalized", finalized.Number,
		"sources", len(sources),
		"realtime", ns.hasRealtime(),
	)
	return ns, nil
}

func (ns *networkService) hasRealtime() bool {
	_, ok := ns.realtime.(*realtimeState)
	return ok
}

func closeQueue(ns *networkService) {
	if c, ok := ns.queue.(io.Closer); ok {
		_ = c.Close()
	}
}

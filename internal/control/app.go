package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/config"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/indexing/backfill"
	"github.com/vietddude/chainsync/internal/indexing/chainsync"
	"github.com/vietddude/chainsync/internal/indexing/emitter"
	"github.com/vietddude/chainsync/internal/indexing/health"
	redisclient "github.com/vietddude/chainsync/internal/infra/redis"
	"github.com/vietddude/chainsync/internal/infra/rpc"
	"github.com/vietddude/chainsync/internal/infra/storage"
	"github.com/vietddude/chainsync/internal/infra/storage/memory"
	"github.com/vietddude/chainsync/internal/infra/storage/postgres"
)

const (
	emitTimeout     = 10 * time.Second
	shutdownTimeout = 15 * time.Second
	healthCacheTTL  = 5 * time.Second
)

// App wires storage, the sync service, emitters and the health server.
type App struct {
	cfg          *config.AppConfig
	svc          *chainsync.Service
	store        storage.SyncStore
	checkpoints  storage.CheckpointRepository
	sink         emitter.Emitter // historical ranges, already final
	emitter      emitter.Emitter // realtime notifications
	db           *postgres.DB
	redisClient  *redisclient.Client
	healthServer *health.Server
	fatal        chan error
	newQueue     func(domain.Network) rpc.RequestQueue
	log          *slog.Logger
}

// Option customizes an App.
type Option func(*App)

// WithRequestQueue replaces the JSON-RPC queue built for each network.
func WithRequestQueue(fn func(domain.Network) rpc.RequestQueue) Option {
	return func(a *App) { a.newQueue = fn }
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.log = logger }
}

// NewApp connects storage, loads the persisted checkpoint and sets up the
// sync service on every configured network.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		fatal: make(chan error, 1),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.newQueue == nil {
		a.newQueue = func(n domain.Network) rpc.RequestQueue {
			return rpc.NewQueueForNetwork(n, cfg.Sync.RequestTimeout, rpc.WithLogger(a.log))
		}
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	a.initRedis(ctx)
	a.initEmitters()

	initial, err := a.loadCheckpoint(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	maxBlockRange := cfg.Sync.MaxBlockRange
	svc, err := chainsync.New(ctx, chainsync.Params{
		Common:                       chainsync.Common{Logger: a.log},
		Store:                        a.store,
		Networks:                     cfg.DomainNetworks(),
		Sources:                      cfg.DomainSources(),
		OnRealtimeEvent:              a.onRealtimeEvent,
		OnFatalError:                 a.onFatalError,
		InitialCheckpoint:            initial,
		HistoricalCheckpointInterval: cfg.Sync.HistoricalCheckpointInterval,
		NewRequestQueue:              a.newQueue,
		NewHistorical: func(p backfill.Params) chainsync.HistoricalWorker {
			p.MaxBlockRange = maxBlockRange
			return backfill.New(p)
		},
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to set up sync service: %w", err)
	}
	a.svc = svc

	monitor := health.NewMonitor(svc, health.DefaultThresholds(), healthCacheTTL)
	a.healthServer = health.NewServer(monitor, cfg.Server.Port, cfg.Server.GRPCPort, a.log)

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		store := memory.NewMemoryStorage()
		a.store = store
		a.checkpoints = store
		a.log.Info("Using Memory storage")
		return nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	a.db = db
	a.store = postgres.NewSyncStore(db)
	a.checkpoints = postgres.NewCheckpointRepo(db)
	a.log.Info("Using PostgreSQL storage")
	return nil
}

func (a *App) initRedis(ctx context.Context) {
	if a.cfg.Redis.URL == "" {
		return
	}
	client, err := redisclient.NewClient(ctx, a.cfg.Redis.Config)
	if err != nil {
		a.log.Warn("Failed to connect to Redis, cache and stream disabled", "error", err)
		return
	}
	a.redisClient = client
	a.store = redisclient.NewCachedStore(client, a.store, a.cfg.Redis.CacheTTL, a.log)
}

func (a *App) initEmitters() {
	sink := emitter.Multi{emitter.NewLogEmitter(a.log)}
	if a.redisClient != nil {
		sink = append(sink, emitter.NewStreamEmitter(a.redisClient, a.cfg.Redis.Stream, a.cfg.Redis.StreamMaxLen))
	}
	a.sink = sink
	a.emitter = sink
	if a.cfg.Emitter.FinalizedOnly {
		a.emitter = emitter.NewFinalityBuffer(sink)
	}
}

func (a *App) loadCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	cp, err := a.checkpoints.Get(ctx)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return checkpoint.Lowest, nil
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	a.log.Info("Resuming from checkpoint", "checkpoint", checkpoint.String(cp))
	return cp, nil
}

// Service returns the sync service.
func (a *App) Service() *chainsync.Service { return a.svc }

// Run syncs history, then follows the chain heads until ctx is done or a
// worker fails. It always kills the sync service before returning.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatalErr := make(chan error, 1)
	go func() {
		select {
		case err := <-a.fatal:
			cancel()
			fatalErr <- err
		case <-runCtx.Done():
			fatalErr <- nil
		}
	}()

	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	if a.db != nil {
		a.db.StartMetricsCollector(runCtx)
	}

	a.svc.StartHistorical()
	for r := range a.svc.HistoricalCheckpoints().All(runCtx) {
		a.emit(runCtx, a.sink, domain.NewEventsNotification{From: r.From, To: r.To})
		a.persist(runCtx, r.To)
	}

	if runCtx.Err() == nil {
		a.log.Info("Starting realtime sync", "checkpoint", checkpoint.String(a.svc.Checkpoint()))
		a.svc.StartRealtime()
		<-runCtx.Done()
	}

	runErr := <-fatalErr
	if runErr != nil {
		a.log.Error("Sync failed", "error", runErr)
	}
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.log.Info("Stopping sync service...")
	err := a.svc.Kill(ctx)
	if stopErr := a.healthServer.Stop(ctx); stopErr != nil {
		a.log.Warn("Failed to stop health server", "error", stopErr)
	}
	a.close()
	return err
}

func (a *App) close() {
	if a.emitter != nil {
		if err := a.emitter.Close(); err != nil {
			a.log.Warn("Failed to close emitter", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

func (a *App) onRealtimeEvent(n domain.SyncNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	a.emit(ctx, a.emitter, n)
	if f, ok := n.(domain.FinalizeNotification); ok {
		a.persist(ctx, f.Checkpoint)
	}
}

func (a *App) onFatalError(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

func (a *App) emit(ctx context.Context, e emitter.Emitter, n domain.SyncNotification) {
	if err := e.Emit(ctx, n); err != nil {
		a.log.Error("Failed to emit notification", "kind", emitter.Kind(n), "error", err)
	}
}

func (a *App) persist(ctx context.Context, cp domain.Checkpoint) {
	if err := a.checkpoints.Save(ctx, cp); err != nil {
		a.log.Warn("Failed to persist checkpoint", "checkpoint", checkpoint.String(cp), "error", err)
	}
}

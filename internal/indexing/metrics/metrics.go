package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RealtimeIsConnected is 1 while a network's realtime worker is polling and
	// 0 once it stops or fails. Networks without realtime sync report 0.
	RealtimeIsConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsync_realtime_is_connected",
			Help: "Whether the realtime worker of a network is connected",
		},
		[]string{"network"},
	)

	// GlobalCheckpointTimestamp tracks the block timestamp of the global checkpoint
	GlobalCheckpointTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsync_checkpoint_timestamp_seconds",
			Help: "Block timestamp of the global checkpoint",
		},
	)

	// FinalizedCheckpointTimestamp tracks the block timestamp of the global finalized checkpoint
	FinalizedCheckpointTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsync_finalized_checkpoint_timestamp_seconds",
			Help: "Block timestamp of the global finalized checkpoint",
		},
	)

	// HistoricalBlocksProcessed counts blocks covered by historical sync
	HistoricalBlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_historical_blocks_processed_total",
			Help: "Total number of blocks covered by historical sync",
		},
		[]string{"network"},
	)

	// HistoricalBlocksTotal is the number of blocks historical sync has to cover
	HistoricalBlocksTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsync_historical_blocks_total",
			Help: "Number of blocks historical sync has to cover",
		},
		[]string{"network"},
	)

	// RealtimeLatestBlock tracks the latest block seen by the realtime worker
	RealtimeLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsync_realtime_latest_block",
			Help: "Latest block number processed by the realtime worker",
		},
		[]string{"network"},
	)

	// ReorgsTotal counts detected reorganizations
	ReorgsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_reorgs_total",
			Help: "Total number of detected chain reorganizations",
		},
		[]string{"network"},
	)

	// LogsStored counts logs written to the sync store
	LogsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_logs_stored_total",
			Help: "Total number of logs written to the sync store",
		},
		[]string{"network", "source"},
	)

	// RPCCallsTotal tracks RPC calls per network and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per network and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsync_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "provider", "method"},
	)

	// RPCCacheHits counts cached RPC results served from the store
	RPCCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_rpc_cache_hits_total",
			Help: "Total number of RPC requests served from the cache",
		},
		[]string{"network", "method"},
	)

	// RPCCacheMisses counts cacheable RPC requests that went to the network
	RPCCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_rpc_cache_misses_total",
			Help: "Total number of cacheable RPC requests not found in the cache",
		},
		[]string{"network", "method"},
	)

	// DBConnectionsInUse tracks open database connections in use
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsync_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsync_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// EmittedNotifications counts notifications handed to the emitter
	EmittedNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsync_emitted_notifications_total",
			Help: "Total number of sync notifications emitted",
		},
		[]string{"kind"},
	)
)

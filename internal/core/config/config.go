package config

import (
	"time"

	redisclient "github.com/vietddude/chainsync/internal/infra/redis"
	"github.com/vietddude/chainsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database postgres.Config `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	Emitter  EmitterConfig   `yaml:"emitter"`
	Sync     SyncConfig      `yaml:"sync"`
	Networks []NetworkConfig `yaml:"networks"`
	Sources  []SourceConfig  `yaml:"sources"`
}

// ServerConfig holds HTTP and gRPC health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // trace, debug, info, warn, error
}

// RedisConfig holds Redis connection, stream and cache settings.
// An empty URL disables Redis.
type RedisConfig struct {
	redisclient.Config `yaml:",inline"`
	Stream             string        `yaml:"stream"`
	StreamMaxLen       int64         `yaml:"stream_max_len"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
}

// EmitterConfig controls how notifications reach consumers.
type EmitterConfig struct {
	// FinalizedOnly holds new events until they are finalized.
	FinalizedOnly bool `yaml:"finalized_only"`
}

// SyncConfig tunes the sync workers.
type SyncConfig struct {
	HistoricalCheckpointInterval time.Duration `yaml:"historical_checkpoint_interval"`
	MaxBlockRange                uint64        `yaml:"max_block_range"`
	RequestTimeout               time.Duration `yaml:"request_timeout"`
}

// NetworkConfig holds settings for a single chain.
type NetworkConfig struct {
	Name                 string           `yaml:"name"`
	ChainID              uint64           `yaml:"chain_id"`
	FinalityBlockCount   uint64           `yaml:"finality_block_count"`
	PollingInterval      time.Duration    `yaml:"polling_interval"`
	MaxRequestsPerSecond float64          `yaml:"max_requests_per_second"` // 0 = unlimited
	Providers            []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SourceConfig describes contracts to index on one network.
type SourceConfig struct {
	ID         string   `yaml:"id"`
	Network    string   `yaml:"network"`
	Addresses  []string `yaml:"addresses"`
	Topics     []string `yaml:"topics"`
	StartBlock uint64   `yaml:"start_block"`
	EndBlock   *uint64  `yaml:"end_block"` // nil = follow the chain head
}

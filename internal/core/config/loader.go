package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/chainsync/internal/core/domain"
)

// Defaults
const (
	DefaultPort                         = 8080
	DefaultPollingInterval              = time.Second
	DefaultHistoricalCheckpointInterval = 500 * time.Millisecond
	DefaultMaxBlockRange                = 2000
	DefaultRequestTimeout               = 30 * time.Second
	DefaultStream                       = "chainsync:notifications"
	DefaultStreamMaxLen                 = 100_000
	DefaultCacheTTL                     = time.Hour
)

// Number of blocks until a block is considered final, per chain id.
var defaultFinality = map[uint64]uint64{
	1:     65,  // mainnet
	137:   200, // polygon
	10:    30,  // optimism
	8453:  30,  // base
	42161: 240, // arbitrum
}

// DefaultFinality returns the finality block count used when a network does
// not set one.
func DefaultFinality(chainID uint64) uint64 {
	if f, ok := defaultFinality[chainID]; ok {
		return f
	}
	return 5
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, fills defaults and validates it.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = DefaultStream
	}
	if c.Redis.StreamMaxLen == 0 {
		c.Redis.StreamMaxLen = DefaultStreamMaxLen
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = DefaultCacheTTL
	}
	if c.Sync.HistoricalCheckpointInterval == 0 {
		c.Sync.HistoricalCheckpointInterval = DefaultHistoricalCheckpointInterval
	}
	if c.Sync.MaxBlockRange == 0 {
		c.Sync.MaxBlockRange = DefaultMaxBlockRange
	}
	if c.Sync.RequestTimeout == 0 {
		c.Sync.RequestTimeout = DefaultRequestTimeout
	}

	for i := range c.Networks {
		n := &c.Networks[i]
		if n.PollingInterval == 0 {
			n.PollingInterval = DefaultPollingInterval
		}
		if n.FinalityBlockCount == 0 {
			n.FinalityBlockCount = DefaultFinality(n.ChainID)
		}
		for j := range n.Providers {
			if n.Providers[j].Name == "" {
				n.Providers[j].Name = fmt.Sprintf("%s-%d", n.Name, j)
			}
		}
	}
}

// Validate checks cross references between networks and sources.
func (c *AppConfig) Validate() error {
	var errs []error

	names := make(map[string]bool, len(c.Networks))
	chainIDs := make(map[uint64]string, len(c.Networks))
	for _, n := range c.Networks {
		if n.Name == "" {
			errs = append(errs, errors.New("network name is required"))
			continue
		}
		if names[n.Name] {
			errs = append(errs, fmt.Errorf("duplicate network %q", n.Name))
		}
		names[n.Name] = true
		if other, ok := chainIDs[n.ChainID]; ok {
			errs = append(errs, fmt.Errorf("networks %q and %q share chain id %d", other, n.Name, n.ChainID))
		}
		chainIDs[n.ChainID] = n.Name
		if len(n.Providers) == 0 {
			errs = append(errs, fmt.Errorf("network %q has no providers", n.Name))
		}
	}

	ids := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			errs = append(errs, errors.New("source id is required"))
			continue
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate source %q", s.ID))
		}
		ids[s.ID] = true
		if !names[s.Network] {
			errs = append(errs, fmt.Errorf("source %q references unknown network %q", s.ID, s.Network))
		}
		if s.EndBlock != nil && *s.EndBlock < s.StartBlock {
			errs = append(errs, fmt.Errorf("source %q: end_block %d < start_block %d", s.ID, *s.EndBlock, s.StartBlock))
		}
	}

	return errors.Join(errs...)
}

// DomainNetworks converts network settings to domain networks.
func (c *AppConfig) DomainNetworks() []domain.Network {
	out := make([]domain.Network, 0, len(c.Networks))
	for _, n := range c.Networks {
		providers := make([]domain.Provider, 0, len(n.Providers))
		for _, p := range n.Providers {
			providers = append(providers, domain.Provider{Name: p.Name, URL: p.URL})
		}
		out = append(out, domain.Network{
			Name:                 n.Name,
			ChainID:              n.ChainID,
			FinalityBlockCount:   n.FinalityBlockCount,
			PollingInterval:      n.PollingInterval,
			MaxRequestsPerSecond: n.MaxRequestsPerSecond,
			Providers:            providers,
		})
	}
	return out
}

// DomainSources converts source settings to domain sources. Addresses and
// topics are lowercased.
func (c *AppConfig) DomainSources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, domain.Source{
			ID:          s.ID,
			NetworkName: s.Network,
			Addresses:   lower(s.Addresses),
			Topics:      lower(s.Topics),
			StartBlock:  s.StartBlock,
			EndBlock:    s.EndBlock,
		})
	}
	return out
}

func lower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToLower(v)
	}
	return out
}

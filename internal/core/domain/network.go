package domain

import "time"

// Provider is a single RPC endpoint serving a network.
type Provider struct {
	Name string
	URL  string
}

// Network describes one blockchain the sync service follows.
type Network struct {
	Name               string
	ChainID            uint64
	FinalityBlockCount uint64
	PollingInterval    time.Duration
	// MaxRequestsPerSecond limits outgoing RPC requests. 0 = unlimited.
	MaxRequestsPerSecond float64
	Providers            []Provider
}

// Source is a configured event source: a set of contracts on one network.
type Source struct {
	ID          string
	NetworkName string
	Addresses   []string
	Topics      []string
	StartBlock  uint64
	// EndBlock is nil when the source keeps indexing new blocks forever.
	EndBlock *uint64
}

// ActiveAt reports whether the source covers the given block number.
func (s Source) ActiveAt(blockNumber uint64) bool {
	if blockNumber < s.StartBlock {
		return false
	}
	return s.EndBlock == nil || blockNumber <= *s.EndBlock
}

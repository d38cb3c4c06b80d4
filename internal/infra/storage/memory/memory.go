package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/core/interval"
	"github.com/vietddude/chainsync/internal/infra/storage"
)

type logKey struct {
	blockNumber uint64
	logIndex    uint64
}

type intervalKey struct {
	chainID  uint64
	sourceID string
}

type rpcKey struct {
	chainID uint64
	request string
}

type rpcResult struct {
	blockNumber uint64
	result      json.RawMessage
}

// MemoryStorage keeps the sync store and checkpoint in maps.
type MemoryStorage struct {
	mu         sync.RWMutex
	logs       map[uint64]map[logKey]domain.Log
	blocks     map[uint64]map[uint64]domain.Block
	intervals  map[intervalKey][]interval.Interval
	rpc        map[rpcKey]rpcResult
	checkpoint *domain.Checkpoint
}

var (
	_ storage.SyncStore            = (*MemoryStorage)(nil)
	_ storage.CheckpointRepository = (*MemoryStorage)(nil)
)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		logs:      make(map[uint64]map[logKey]domain.Log),
		blocks:    make(map[uint64]map[uint64]domain.Block),
		intervals: make(map[intervalKey][]interval.Interval),
		rpc:       make(map[rpcKey]rpcResult),
	}
}

// -----------------------------------------------------------------------------
// Sync Store
// -----------------------------------------------------------------------------

func (s *MemoryStorage) InsertLogs(ctx context.Context, logs []domain.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		chain, ok := s.logs[l.ChainID]
		if !ok {
			chain = make(map[logKey]domain.Log)
			s.logs[l.ChainID] = chain
		}
		chain[logKey{l.BlockNumber, l.LogIndex}] = l
	}
	return nil
}

func (s *MemoryStorage) InsertBlock(ctx context.Context, chainID uint64, block domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain, ok := s.blocks[chainID]
	if !ok {
		chain = make(map[uint64]domain.Block)
		s.blocks[chainID] = chain
	}
	chain[block.Number] = block
	return nil
}

func (s *MemoryStorage) InsertInterval(
	ctx context.Context,
	chainID uint64,
	sourceID string,
	iv interval.Interval,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := intervalKey{chainID, sourceID}
	s.intervals[key] = interval.Union(append(s.intervals[key], iv))
	return nil
}

func (s *MemoryStorage) GetIntervals(
	ctx context.Context,
	chainID uint64,
	sourceID string,
) ([]interval.Interval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.intervals[intervalKey{chainID, sourceID}]
	return append([]interval.Interval(nil), stored...), nil
}

func (s *MemoryStorage) GetLogs(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) ([]domain.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Log
	for _, l := range s.logs[chainID] {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// GetBlock returns a stored block header.
func (s *MemoryStorage) GetBlock(chainID, number uint64) (domain.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[chainID][number]
	return b, ok
}

func (s *MemoryStorage) GetRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	request string,
) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rpc[rpcKey{chainID, request}]
	if !ok {
		return nil, false, nil
	}
	return r.result, true, nil
}

func (s *MemoryStorage) InsertRPCRequestResult(
	ctx context.Context,
	chainID uint64,
	blockNumber uint64,
	request string,
	result json.RawMessage,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpc[rpcKey{chainID, request}] = rpcResult{
		blockNumber: blockNumber,
		result:      append(json.RawMessage(nil), result...),
	}
	return nil
}

func (s *MemoryStorage) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.logs[chainID] {
		if k.blockNumber >= fromBlock {
			delete(s.logs[chainID], k)
		}
	}
	for n := range s.blocks[chainID] {
		if n >= fromBlock {
			delete(s.blocks[chainID], n)
		}
	}
	for k, r := range s.rpc {
		if k.chainID == chainID && r.blockNumber >= fromBlock {
			delete(s.rpc, k)
		}
	}
	for k, ivs := range s.intervals {
		if k.chainID != chainID {
			continue
		}
		if fromBlock == 0 {
			delete(s.intervals, k)
			continue
		}
		s.intervals[k] = interval.Difference(ivs, []interval.Interval{{From: fromBlock, To: ^uint64(0)}})
	}
	return nil
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

func (s *MemoryStorage) Get(ctx context.Context) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return domain.Checkpoint{}, storage.ErrCheckpointNotFound
	}
	return *s.checkpoint, nil
}

func (s *MemoryStorage) Save(ctx context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &cp
	return nil
}

func (s *MemoryStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = nil
	return nil
}

package domain

// Checkpoint is a position in the merged event timeline of every network.
//
// Checkpoints order lexicographically by (BlockTimestamp, ChainID, BlockNumber,
// TransactionIndex, LogIndex). The two trailing fields only order events that
// share a block; block-level checkpoints fill them with the maximum value.
type Checkpoint struct {
	BlockTimestamp   uint64 `json:"block_timestamp"`
	ChainID          uint64 `json:"chain_id"`
	BlockNumber      uint64 `json:"block_number"`
	TransactionIndex uint64 `json:"transaction_index"`
	LogIndex         uint64 `json:"log_index"`
}

// CheckpointRange is a half-open range [From, To) of the merged timeline.
type CheckpointRange struct {
	From Checkpoint `json:"from"`
	To   Checkpoint `json:"to"`
}

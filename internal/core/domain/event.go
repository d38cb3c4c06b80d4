package domain

// RealtimeSyncEvent is an event pushed by a network's realtime worker.
// The set of implementations is closed: CheckpointEvent, ReorgEvent and
// FinalizeEvent.
type RealtimeSyncEvent interface {
	realtimeSyncEvent()
	Chain() uint64
}

// SyncNotification is what the sync service hands to its consumer.
// Implementations: NewEventsNotification, ReorgEvent and FinalizeNotification.
type SyncNotification interface {
	syncNotification()
}

// CheckpointEvent reports that a network has ingested data up to Checkpoint.
type CheckpointEvent struct {
	ChainID    uint64     `json:"chain_id"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

// ReorgEvent reports a chain reorganization. SafeCheckpoint is the last
// checkpoint known not to be affected by it.
//
// The sync service forwards reorg events to its consumer unchanged.
type ReorgEvent struct {
	ChainID        uint64     `json:"chain_id"`
	SafeCheckpoint Checkpoint `json:"safe_checkpoint"`
}

// FinalizeEvent reports that a network's finalized position advanced.
type FinalizeEvent struct {
	ChainID    uint64     `json:"chain_id"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

// NewEventsNotification tells the consumer that events in [From, To) are available.
type NewEventsNotification struct {
	From Checkpoint `json:"from"`
	To   Checkpoint `json:"to"`
}

// FinalizeNotification carries the new global finalized checkpoint.
type FinalizeNotification struct {
	Checkpoint Checkpoint `json:"checkpoint"`
}

func (CheckpointEvent) realtimeSyncEvent() {}
func (ReorgEvent) realtimeSyncEvent()      {}
func (FinalizeEvent) realtimeSyncEvent()   {}

func (e CheckpointEvent) Chain() uint64 { return e.ChainID }
func (e ReorgEvent) Chain() uint64      { return e.ChainID }
func (e FinalizeEvent) Chain() uint64   { return e.ChainID }

func (NewEventsNotification) syncNotification() {}
func (ReorgEvent) syncNotification()            {}
func (FinalizeNotification) syncNotification()  {}

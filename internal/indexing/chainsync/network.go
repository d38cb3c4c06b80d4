package chainsync

import (
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/infra/chain/evm"
	"github.com/vietddude/chainsync/internal/infra/rpc"
)

// networkService is the runtime state of one network.
type networkService struct {
	network domain.Network
	sources []domain.Source
	queue   rpc.RequestQueue
	client  *evm.Client

	initialFinalizedCheckpoint domain.Checkpoint

	realtime   realtimeSubState
	historical historicalState
}

// realtimeSubState is either noRealtime or *realtimeState.
type realtimeSubState interface {
	isRealtimeSubState()
}

// noRealtime marks a network whose sources all end at or below the
// finalized block observed at startup.
type noRealtime struct{}

type realtimeState struct {
	worker              RealtimeWorker
	checkpoint          domain.Checkpoint
	finalizedCheckpoint domain.Checkpoint
	finalizedBlock      domain.Block
}

func (noRealtime) isRealtimeSubState()     {}
func (*realtimeState) isRealtimeSubState() {}

type historicalState struct {
	worker     HistoricalWorker
	checkpoint *domain.Checkpoint // nil until the first report
	isComplete bool
}

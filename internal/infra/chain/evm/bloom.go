package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/chainsync/internal/core/domain"
)

// BloomMayContain reports whether the block's logs bloom may hold a log from
// one of the addresses and with one of the first topics. Empty address or
// topic lists match anything. A block without a decodable bloom always matches.
func BloomMayContain(block domain.Block, addresses, topics []string) bool {
	raw, err := hexutil.Decode(block.LogsBloom)
	if err != nil || len(raw) != types.BloomByteLength {
		return true
	}
	bloom := types.BytesToBloom(raw)

	if len(addresses) > 0 {
		found := false
		for _, addr := range addresses {
			if bloom.Test(common.HexToAddress(addr).Bytes()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(topics) > 0 {
		for _, topic := range topics {
			if bloom.Test(common.HexToHash(topic).Bytes()) {
				return true
			}
		}
		return false
	}
	return true
}

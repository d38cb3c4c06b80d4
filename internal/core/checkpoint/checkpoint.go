// Package checkpoint implements the ordering algebra over domain.Checkpoint.
//
// Checkpoints compare lexicographically by
//
//	(BlockTimestamp, ChainID, BlockNumber, TransactionIndex, LogIndex)
//
// so the block timestamp orders positions across networks, the chain id breaks
// ties between networks, and the block number breaks ties within one chain.
//
// # Quick Start
//
//	a := checkpoint.FromBlock(1, block)
//	if checkpoint.GreaterThan(a, current) {
//	    current = a
//	}
//	lowest := checkpoint.Min(a, b, c)
package checkpoint

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vietddude/chainsync/internal/core/domain"
)

// ErrInvalidEncoding is returned by Decode for malformed input.
var ErrInvalidEncoding = errors.New("invalid checkpoint encoding")

// Lowest orders before every real checkpoint.
var Lowest = domain.Checkpoint{}

// Highest orders after every real checkpoint. It is the placeholder for positions
// that are not known yet and the base that fills unused fields of block-level
// checkpoints.
var Highest = domain.Checkpoint{
	BlockTimestamp:   math.MaxUint64,
	ChainID:          math.MaxUint64,
	BlockNumber:      math.MaxUint64,
	TransactionIndex: math.MaxUint64,
	LogIndex:         math.MaxUint64,
}

// Compare returns -1 if a < b, 0 if a == b and +1 if a > b.
func Compare(a, b domain.Checkpoint) int {
	for _, pair := range [...][2]uint64{
		{a.BlockTimestamp, b.BlockTimestamp},
		{a.ChainID, b.ChainID},
		{a.BlockNumber, b.BlockNumber},
		{a.TransactionIndex, b.TransactionIndex},
		{a.LogIndex, b.LogIndex},
	} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

// GreaterThan reports whether a is strictly after b.
func GreaterThan(a, b domain.Checkpoint) bool {
	return Compare(a, b) > 0
}

// Equal reports whether all fields of a and b are equal.
func Equal(a, b domain.Checkpoint) bool {
	return a == b
}

// Min returns the smallest checkpoint. It panics when called without arguments.
func Min(cps ...domain.Checkpoint) domain.Checkpoint {
	if len(cps) == 0 {
		panic("checkpoint: Min called with no checkpoints")
	}
	lowest := cps[0]
	for _, cp := range cps[1:] {
		if Compare(cp, lowest) < 0 {
			lowest = cp
		}
	}
	return lowest
}

// Max returns the largest checkpoint. It panics when called without arguments.
func Max(cps ...domain.Checkpoint) domain.Checkpoint {
	if len(cps) == 0 {
		panic("checkpoint: Max called with no checkpoints")
	}
	highest := cps[0]
	for _, cp := range cps[1:] {
		if Compare(cp, highest) > 0 {
			highest = cp
		}
	}
	return highest
}

// FromBlock builds the block-level checkpoint for a block on the given chain.
// Fields below the block number are taken from Highest, so the checkpoint orders
// after every event inside the block.
func FromBlock(chainID uint64, block domain.Block) domain.Checkpoint {
	cp := Highest
	cp.BlockTimestamp = block.Timestamp
	cp.ChainID = chainID
	cp.BlockNumber = block.Number
	return cp
}

const fieldWidth = 20 // digits in math.MaxUint64

// Encode returns a fixed-width decimal encoding whose string order matches
// checkpoint order.
func Encode(cp domain.Checkpoint) string {
	var b strings.Builder
	b.Grow(fieldWidth * 5)
	for _, v := range [...]uint64{
		cp.BlockTimestamp,
		cp.ChainID,
		cp.BlockNumber,
		cp.TransactionIndex,
		cp.LogIndex,
	} {
		fmt.Fprintf(&b, "%0*d", fieldWidth, v)
	}
	return b.String()
}

// Decode parses a string produced by Encode.
func Decode(s string) (domain.Checkpoint, error) {
	if len(s) != fieldWidth*5 {
		return domain.Checkpoint{}, fmt.Errorf("%w: length %d", ErrInvalidEncoding, len(s))
	}
	var fields [5]uint64
	for i := range fields {
		v, err := strconv.ParseUint(s[i*fieldWidth:(i+1)*fieldWidth], 10, 64)
		if err != nil {
			return domain.Checkpoint{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		fields[i] = v
	}
	return domain.Checkpoint{
		BlockTimestamp:   fields[0],
		ChainID:          fields[1],
		BlockNumber:      fields[2],
		TransactionIndex: fields[3],
		LogIndex:         fields[4],
	}, nil
}

// String formats a checkpoint for logs.
func String(cp domain.Checkpoint) string {
	return fmt.Sprintf("timestamp=%d chainId=%d blockNumber=%d", cp.BlockTimestamp, cp.ChainID, cp.BlockNumber)
}

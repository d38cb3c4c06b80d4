package checkpoint

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainsync/internal/core/domain"
)

func cp(ts, chainID, block uint64) domain.Checkpoint {
	return domain.Checkpoint{BlockTimestamp: ts, ChainID: chainID, BlockNumber: block}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Checkpoint
		want int
	}{
		{"equal", cp(100, 1, 50), cp(100, 1, 50), 0},
		{"timestamp dominates chain id", cp(99, 9, 90), cp(100, 1, 1), -1},
		{"chain id breaks timestamp tie", cp(100, 2, 1), cp(100, 1, 50), 1},
		{"block number breaks chain tie", cp(100, 1, 49), cp(100, 1, 50), -1},
		{"transaction index after block", domain.Checkpoint{BlockTimestamp: 1, TransactionIndex: 2}, domain.Checkpoint{BlockTimestamp: 1, TransactionIndex: 1}, 1},
		{"log index last", domain.Checkpoint{LogIndex: 1}, domain.Checkpoint{LogIndex: 2}, -1},
		{"lowest before everything", Lowest, cp(0, 0, 1), -1},
		{"highest after everything", Highest, cp(math.MaxUint64, math.MaxUint64, 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestGreaterThan_StrictTotalOrder(t *testing.T) {
	cps := []domain.Checkpoint{
		cp(100, 1, 50), cp(90, 2, 40), cp(100, 1, 51), cp(100, 2, 1),
		cp(90, 1, 99), Lowest, Highest, cp(90, 2, 40),
	}

	for _, a := range cps {
		assert.False(t, GreaterThan(a, a), "irreflexive for %+v", a)
		for _, b := range cps {
			if a == b {
				assert.False(t, GreaterThan(a, b))
				continue
			}
			// exactly one direction holds for distinct checkpoints
			assert.NotEqual(t, GreaterThan(a, b), GreaterThan(b, a), "%+v vs %+v", a, b)
			for _, c := range cps {
				if GreaterThan(a, b) && GreaterThan(b, c) {
					assert.True(t, GreaterThan(a, c), "transitive")
				}
			}
		}
	}
}

func TestMinMax(t *testing.T) {
	a, b, c := cp(100, 1, 50), cp(90, 2, 40), cp(90, 2, 41)

	assert.Equal(t, b, Min(a, b, c))
	assert.Equal(t, b, Min(c, b, a))
	assert.Equal(t, a, Max(a, b, c))
	assert.Equal(t, a, Max(c, a, b))
	assert.Equal(t, a, Min(a))
	assert.Equal(t, Lowest, Min(a, Lowest))
	assert.Equal(t, Highest, Max(a, Highest))
}

func TestMinMatchesSortedOrder(t *testing.T) {
	cps := []domain.Checkpoint{
		cp(5, 3, 1), cp(5, 1, 9), cp(4, 9, 9), cp(5, 1, 2), cp(6, 0, 0),
	}
	sorted := append([]domain.Checkpoint(nil), cps...)
	sort.Slice(sorted, func(i, j int) bool { return Compare(sorted[i], sorted[j]) < 0 })

	assert.Equal(t, sorted[0], Min(cps...))
	assert.Equal(t, sorted[len(sorted)-1], Max(cps...))
}

func TestMinMax_PanicsWithoutArguments(t *testing.T) {
	assert.Panics(t, func() { Min() })
	assert.Panics(t, func() { Max() })
}

func TestFromBlock(t *testing.T) {
	got := FromBlock(10, domain.Block{Number: 42, Timestamp: 1700000000, Hash: "0xabc"})

	assert.Equal(t, uint64(1700000000), got.BlockTimestamp)
	assert.Equal(t, uint64(10), got.ChainID)
	assert.Equal(t, uint64(42), got.BlockNumber)
	assert.Equal(t, uint64(math.MaxUint64), got.TransactionIndex)
	assert.Equal(t, uint64(math.MaxUint64), got.LogIndex)

	// a block-level checkpoint sorts after every event inside that block
	event := domain.Checkpoint{BlockTimestamp: 1700000000, ChainID: 10, BlockNumber: 42, TransactionIndex: 3, LogIndex: 7}
	assert.True(t, GreaterThan(got, event))
}

func TestEncodeDecode(t *testing.T) {
	for _, c := range []domain.Checkpoint{Lowest, Highest, cp(1700000000, 137, 55_000_000)} {
		enc := Encode(c)
		require.Len(t, enc, 100)

		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, c, dec)
	}
}

func TestEncode_PreservesOrder(t *testing.T) {
	a, b := cp(99, 200, 1), cp(100, 1, 1)
	require.True(t, GreaterThan(b, a))
	assert.Less(t, Encode(a), Encode(b))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("123")
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	bad := Encode(Lowest)
	bad = "x" + bad[1:]
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

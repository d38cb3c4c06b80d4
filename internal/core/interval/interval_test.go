package interval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnion(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{"empty", nil, nil},
		{"overlapping", []Interval{{5, 10}, {1, 6}}, []Interval{{1, 10}}},
		{"adjacent merge", []Interval{{1, 4}, {5, 8}}, []Interval{{1, 8}}},
		{"disjoint stay apart", []Interval{{10, 12}, {1, 3}}, []Interval{{1, 3}, {10, 12}}},
		{"contained", []Interval{{1, 100}, {20, 30}}, []Interval{{1, 100}}},
		{"inverted dropped", []Interval{{9, 3}, {1, 1}}, []Interval{{1, 1}}},
		{"max bound", []Interval{{0, math.MaxUint64}, {5, 6}}, []Interval{{0, math.MaxUint64}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Union(tt.in))
		})
	}
}

func TestDifference(t *testing.T) {
	tests := []struct {
		name         string
		base, remove []Interval
		want         []Interval
	}{
		{"nothing removed", []Interval{{1, 10}}, nil, []Interval{{1, 10}}},
		{"hole in the middle", []Interval{{1, 10}}, []Interval{{4, 6}}, []Interval{{1, 3}, {7, 10}}},
		{"prefix removed", []Interval{{1, 10}}, []Interval{{0, 5}}, []Interval{{6, 10}}},
		{"suffix removed", []Interval{{1, 10}}, []Interval{{8, 20}}, []Interval{{1, 7}}},
		{"fully covered", []Interval{{1, 10}}, []Interval{{1, 10}}, nil},
		{"many holes", []Interval{{0, 20}}, []Interval{{2, 3}, {10, 10}, {18, 25}}, []Interval{{0, 1}, {4, 9}, {11, 17}}},
		{"multiple bases", []Interval{{0, 5}, {10, 15}}, []Interval{{3, 12}}, []Interval{{0, 2}, {13, 15}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Difference(tt.base, tt.remove))
		})
	}
}

func TestSum(t *testing.T) {
	assert.Equal(t, uint64(0), Sum(nil))
	assert.Equal(t, uint64(15), Sum([]Interval{{1, 10}, {5, 15}}))
	assert.Equal(t, uint64(2), Sum([]Interval{{1, 1}, {3, 3}}))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []Interval{{0, 9}, {10, 19}, {20, 25}}, Chunk(Interval{0, 25}, 10))
	assert.Equal(t, []Interval{{5, 5}}, Chunk(Interval{5, 5}, 10))
	assert.Equal(t, []Interval{{0, 9}}, Chunk(Interval{0, 9}, 10))
	assert.Nil(t, Chunk(Interval{0, 9}, 0))
	assert.Equal(t,
		[]Interval{{math.MaxUint64 - 1, math.MaxUint64}},
		Chunk(Interval{math.MaxUint64 - 1, math.MaxUint64}, 5))
}

func TestIntersect(t *testing.T) {
	got, ok := Intersect(Interval{1, 10}, Interval{5, 20})
	assert.True(t, ok)
	assert.Equal(t, Interval{5, 10}, got)

	_, ok = Intersect(Interval{1, 4}, Interval{5, 20})
	assert.False(t, ok)
}

func TestInterval_LenContains(t *testing.T) {
	i := Interval{From: 3, To: 7}
	assert.Equal(t, uint64(5), i.Len())
	assert.True(t, i.Contains(3))
	assert.True(t, i.Contains(7))
	assert.False(t, i.Contains(8))
	assert.Zero(t, Interval{From: 2, To: 1}.Len())
}

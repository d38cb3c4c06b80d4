// Package interval implements arithmetic over inclusive block ranges.
package interval

import "sort"

// Interval is the inclusive block range [From, To].
type Interval struct {
	From uint64 `json:"from" db:"from_block"`
	To   uint64 `json:"to" db:"to_block"`
}

// Len returns the number of blocks in the interval.
func (i Interval) Len() uint64 {
	if i.To < i.From {
		return 0
	}
	return i.To - i.From + 1
}

// Contains reports whether block lies within the interval.
func (i Interval) Contains(block uint64) bool {
	return block >= i.From && block <= i.To
}

// Intersect returns the overlap of a and b and whether one exists.
func Intersect(a, b Interval) (Interval, bool) {
	from, to := max(a.From, b.From), min(a.To, b.To)
	if from > to {
		return Interval{}, false
	}
	return Interval{From: from, To: to}, true
}

// Union sorts the intervals and merges overlapping or adjacent ones.
func Union(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(intervals))
	for _, i := range intervals {
		if i.To >= i.From {
			sorted = append(sorted, i)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].From < sorted[b].From })

	var out []Interval
	for _, i := range sorted {
		if n := len(out); n > 0 && (out[n-1].To == ^uint64(0) || i.From <= out[n-1].To+1) {
			out[n-1].To = max(out[n-1].To, i.To)
			continue
		}
		out = append(out, i)
	}
	return out
}

// Difference returns the parts of base not covered by remove.
func Difference(base, remove []Interval) []Interval {
	base, remove = Union(base), Union(remove)

	var out []Interval
	for _, b := range base {
		cur := b
		open := true
		for _, r := range remove {
			if r.To < cur.From || r.From > cur.To {
				continue
			}
			if r.From > cur.From {
				out = append(out, Interval{From: cur.From, To: r.From - 1})
			}
			if r.To >= cur.To {
				open = false
				break
			}
			cur.From = r.To + 1
		}
		if open {
			out = append(out, cur)
		}
	}
	return out
}

// Sum returns the number of blocks covered by the union of the intervals.
func Sum(intervals []Interval) uint64 {
	var total uint64
	for _, i := range Union(intervals) {
		total += i.Len()
	}
	return total
}

// Chunk splits the interval into consecutive pieces of at most size blocks.
func Chunk(i Interval, size uint64) []Interval {
	if size == 0 || i.To < i.From {
		return nil
	}
	var out []Interval
	for from := i.From; ; {
		to := i.To
		if i.To-from >= size {
			to = from + size - 1
		}
		out = append(out, Interval{From: from, To: to})
		if to == i.To {
			return out
		}
		from = to + 1
	}
}

package interval

import (
	"sort"
	"time"
)

// Index answers conflict queries in O(log n) over a fixed set of intervals.
// Intervals are kept sorted by start; maxEnd[i] is the latest end among the
// first i+1 intervals, so a candidate conflicts iff the prefix of intervals
// starting before candidate.End reaches past candidate.Start.
type Index struct {
	items  []Interval
	maxEnd []time.Time
}

func NewIndex(items []Interval) *Index {
	sorted := make([]Interval, 0, len(items))
	for _, it := range items {
		if it.Valid() {
			sorted = append(sorted, it)
		}
	}
	SortByStart(sorted)

	maxEnd := make([]time.Time, len(sorted))
	for i, it := range sorted {
		maxEnd[i] = it.End
		if i > 0 && maxEnd[i-1].After(it.End) {
			maxEnd[i] = maxEnd[i-1]
		}
	}
	return &Index{items: sorted, maxEnd: maxEnd}
}

// startsBefore returns how many indexed intervals start strictly before t.
func (x *Index) startsBefore(t time.Time) int {
	return sort.Search(len(x.items), func(i int) bool {
		return !x.items[i].Start.Before(t)
	})
}

// Conflicts reports whether candidate overlaps any indexed interval.
func (x *Index) Conflicts(candidate Interval) bool {
	if x == nil || len(x.items) == 0 || !candidate.Valid() {
		return false
	}
	k := x.startsBefore(candidate.End)
	if k == 0 {
		return false
	}
	return x.maxEnd[k-1].After(candidate.Start)
}

// Overlapping lists the indexed intervals that overlap candidate.
func (x *Index) Overlapping(candidate Interval) []Interval {
	if x == nil || !candidate.Valid() {
		return nil
	}
	k := x.startsBefore(candidate.End)
	var out []Interval
	for i := 0; i < k; i++ {
		if x.items[i].End.After(candidate.Start) {
			out = append(out, x.items[i])
		}
	}
	return out
}

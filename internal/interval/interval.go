package interval

import (
	"math"
	"sort"
	"time"
)

// Earliest and Latest bound the instants that fit in unix nanoseconds.
var (
	Earliest = time.Unix(0, math.MinInt64).UTC()
	Latest   = time.Unix(0, math.MaxInt64).UTC()
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Representable reports whether both bounds lie within [Earliest, Latest].
func (i Interval) Representable() bool {
	return !i.Start.Before(Earliest) && !i.End.After(Latest)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two ranges share at least one instant.
// Touching ranges (i.End == o.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Clip returns the part of i that lies inside window.
func (i Interval) Clip(window Interval) (Interval, bool) {
	start := i.Start
	if window.Start.After(start) {
		start = window.Start
	}
	end := i.End
	if window.End.Before(end) {
		end = window.End
	}
	out := Interval{Start: start, End: end}
	return out, out.Valid()
}

// Pad widens the interval by d on both sides.
func (i Interval) Pad(d time.Duration) Interval {
	if d <= 0 {
		return i
	}
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

// HasConflict is the reference O(n) overlap check of a candidate against a
// set of blocking intervals.
func HasConflict(candidate Interval, blocking []Interval) bool {
	for _, b := range blocking {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// SortByStart orders intervals by start, then end.
func SortByStart(items []Interval) {
	sort.Slice(items, func(a, b int) bool {
		if items[a].Start.Equal(items[b].Start) {
			return items[a].End.Before(items[b].End)
		}
		return items[a].Start.Before(items[b].Start)
	})
}

// Normalize merges overlapping and touching intervals and drops empty ones.
// The result is sorted and pairwise disjoint.
func Normalize(items []Interval) []Interval {
	valid := make([]Interval, 0, len(items))
	for _, it := range items {
		if it.Valid() {
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	SortByStart(valid)

	merged := []Interval{valid[0]}
	for _, it := range valid[1:] {
		last := &merged[len(merged)-1]
		if !it.Start.After(last.End) {
			if it.End.After(last.End) {
				last.End = it.End
			}
			continue
		}
		merged = append(merged, it)
	}
	return merged
}

// Subtract returns the pieces of base not covered by any of holes, in order.
func Subtract(base Interval, holes []Interval) []Interval {
	if !base.Valid() {
		return nil
	}
	var out []Interval
	cursor := base.Start
	for _, h := range Normalize(holes) {
		if !h.End.After(cursor) {
			continue
		}
		if !h.Start.Before(base.End) {
			break
		}
		if h.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: h.Start})
		}
		if h.End.After(cursor) {
			cursor = h.End
		}
		if !cursor.Before(base.End) {
			return out
		}
	}
	if cursor.Before(base.End) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

// Package availability projects free/busy segments of a resource over a
// calendar window.
package availability

import (
	"sort"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
)

type State string

const (
	StateAvailable State = "available"
	StateReserved  State = "reserved"
	StateBlackout  State = "blackout"
	StatePast      State = "past"
)

type Segment struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	State State     `json:"state"`
}

func (s Segment) Interval() interval.Interval {
	return interval.Interval{Start: s.Start, End: s.End}
}

// Project labels every instant of window with the highest priority state
// that applies to it: past > reserved > blackout > available. reservations
// are taken as given; callers pass only the ones that occupy the calendar.
func Project(res *models.Resource, window interval.Interval, reservations []*models.Reservation, now time.Time) []Segment {
	if !window.Valid() {
		return nil
	}

	reserved := make([]interval.Interval, 0, len(reservations))
	for _, r := range reservations {
		if clipped, ok := r.Interval().Clip(window); ok {
			reserved = append(reserved, clipped)
		}
	}
	blocked := Unavailable(res, window)

	bounds := []time.Time{window.Start, window.End}
	if now.After(window.Start) && now.Before(window.End) {
		bounds = append(bounds, now)
	}
	for _, iv := range reserved {
		bounds = append(bounds, iv.Start, iv.End)
	}
	for _, iv := range blocked {
		bounds = append(bounds, iv.Start, iv.End)
	}
	bounds = uniqueSorted(bounds)

	reservedIdx := interval.NewIndex(reserved)
	blockedIdx := interval.NewIndex(blocked)

	var out []Segment
	for i := 0; i+1 < len(bounds); i++ {
		piece := interval.Interval{Start: bounds[i], End: bounds[i+1]}
		state := StateAvailable
		switch {
		case !piece.End.After(now):
			state = StatePast
		case reservedIdx.Conflicts(piece):
			state = StateReserved
		case blockedIdx.Conflicts(piece):
			state = StateBlackout
		}

		if n := len(out); n > 0 && out[n-1].State == state && out[n-1].End.Equal(piece.Start) {
			out[n-1].End = piece.End
			continue
		}
		out = append(out, Segment{Start: piece.Start, End: piece.End, State: state})
	}
	return out
}

func uniqueSorted(ts []time.Time) []time.Time {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:0]
	for _, t := range ts {
		if len(out) > 0 && out[len(out)-1].Equal(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Blocked reports whether candidate touches a blackout or leaves the
// business hours of res, and which of the two applies first.
func Blocked(res *models.Resource, candidate interval.Interval) (domain.SlotReason, bool) {
	available, blackout := ExpandRules(res, candidate)

	for _, b := range res.Blackouts {
		if b.Interval().Overlaps(candidate) {
			return domain.ReasonBlackout, true
		}
	}
	if interval.HasConflict(candidate, blackout) {
		return domain.ReasonBlackout, true
	}
	if usesBusinessHours(res) && len(interval.Subtract(candidate, available)) > 0 {
		return domain.ReasonOutsideHours, true
	}
	return "", false
}

// AvailableSlots carves consecutive slots of length d out of the available
// segments, each slot starting at its segment start plus a multiple of d.
func AvailableSlots(segments []Segment, d time.Duration) []interval.Interval {
	if d <= 0 {
		return nil
	}
	var out []interval.Interval
	for _, s := range segments {
		if s.State != StateAvailable {
			continue
		}
		for start := s.Start; !start.Add(d).After(s.End); start = start.Add(d) {
			out = append(out, interval.Interval{Start: start, End: start.Add(d)})
		}
	}
	return out
}

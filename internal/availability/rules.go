package availability

import (
	"time"

	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
)

// ExpandRules turns the weekly rules of res into concrete intervals that
// intersect window, split by kind. Rules are laid out on the wall clock of
// the resource time zone, so DST shifts move the absolute instants.
func ExpandRules(res *models.Resource, window interval.Interval) (available, blackout []interval.Interval) {
	if len(res.Rules) == 0 || !window.Valid() {
		return nil, nil
	}
	loc := res.Location()

	// Start a day early so overnight-adjacent windows in other zones are covered.
	first := window.Start.In(loc).AddDate(0, 0, -1)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	last := window.End.In(loc).AddDate(0, 0, 1)

	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, rule := range res.Rules {
			if rule.Weekday != day.Weekday() {
				continue
			}
			iv := interval.Interval{
				Start: time.Date(day.Year(), day.Month(), day.Day(), 0, rule.StartMinute, 0, 0, loc),
				End:   time.Date(day.Year(), day.Month(), day.Day(), 0, rule.EndMinute, 0, 0, loc),
			}
			clipped, ok := iv.Clip(window)
			if !ok {
				continue
			}
			switch rule.Kind {
			case models.RuleAvailable:
				available = append(available, clipped)
			case models.RuleBlackout:
				blackout = append(blackout, clipped)
			}
		}
	}
	return interval.Normalize(available), interval.Normalize(blackout)
}

// usesBusinessHours reports whether the weekly available rules restrict booking.
// A rules-mode resource without any available rule is treated as always open.
func usesBusinessHours(res *models.Resource) bool {
	if res.Mode == models.ModeOpen {
		return false
	}
	for _, r := range res.Rules {
		if r.Kind == models.RuleAvailable {
			return true
		}
	}
	return false
}

// Unavailable returns every interval inside window during which res cannot be
// booked regardless of reservations: one-off blackouts, recurring blackout
// rules and, when business hours apply, the time outside them.
func Unavailable(res *models.Resource, window interval.Interval) []interval.Interval {
	available, blackout := ExpandRules(res, window)

	out := make([]interval.Interval, 0, len(blackout)+len(res.Blackouts))
	out = append(out, blackout...)
	for _, b := range res.Blackouts {
		if clipped, ok := b.Interval().Clip(window); ok {
			out = append(out, clipped)
		}
	}
	if usesBusinessHours(res) {
		out = append(out, interval.Subtract(window, available)...)
	}
	return interval.Normalize(out)
}

package models

import (
	"fmt"
	"time"

	"reservation-engine/internal/interval"
)

type AvailabilityMode string

const (
	// ModeOpen ignores weekly availability rules; only blackouts restrict booking.
	ModeOpen AvailabilityMode = "open"
	// ModeRules restricts booking to the weekly available windows.
	ModeRules AvailabilityMode = "rules"
	// ModeByRequest behaves like ModeRules but every request needs approval.
	ModeByRequest AvailabilityMode = "by-request"
)

type ResourceStatus string

const (
	ResourcePublished ResourceStatus = "published"
	ResourceArchived  ResourceStatus = "archived"
)

type OwnerType string

const (
	OwnerUser  OwnerType = "user"
	OwnerGroup OwnerType = "group"
)

type RuleKind string

const (
	RuleAvailable RuleKind = "available"
	RuleBlackout  RuleKind = "blackout"
)

// MinutesPerDay bounds WeeklyRule minute offsets.
const MinutesPerDay = 24 * 60

// WeeklyRule is a recurring window on one weekday, expressed in minutes from
// local midnight of the resource time zone.
type WeeklyRule struct {
	Kind        RuleKind     `yaml:"kind" json:"kind"`
	Weekday     time.Weekday `yaml:"weekday" json:"weekday"`
	StartMinute int          `yaml:"start_minute" json:"start_minute"`
	EndMinute   int          `yaml:"end_minute" json:"end_minute"`
}

func (w WeeklyRule) Validate() error {
	if w.Kind != RuleAvailable && w.Kind != RuleBlackout {
		return fmt.Errorf("unknown rule kind %q", w.Kind)
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", w.Weekday)
	}
	if w.StartMinute < 0 || w.EndMinute > MinutesPerDay || w.EndMinute <= w.StartMinute {
		return fmt.Errorf("invalid minute range %d-%d", w.StartMinute, w.EndMinute)
	}
	return nil
}

// Blackout is a one-off interval during which the resource cannot be booked.
type Blackout struct {
	Start  time.Time `yaml:"start" json:"start"`
	End    time.Time `yaml:"end" json:"end"`
	Reason string    `yaml:"reason" json:"reason,omitempty"`
}

func (b Blackout) Interval() interval.Interval {
	return interval.Interval{Start: b.Start, End: b.End}
}

// BookingPolicy holds per-resource request limits. Zero values disable a limit.
type BookingPolicy struct {
	MinDuration time.Duration `yaml:"min_duration" json:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`
	AdvanceDays int           `yaml:"advance_days" json:"advance_days"`
	Buffer      time.Duration `yaml:"buffer" json:"buffer"`
}

type Resource struct {
	ID               int64            `yaml:"id" json:"id"`
	Name             string           `yaml:"name" json:"name"`
	OwnerType        OwnerType        `yaml:"owner_type" json:"owner_type"`
	OwnerID          int64            `yaml:"owner_id" json:"owner_id"`
	ApprovalRequired bool             `yaml:"approval_required" json:"approval_required"`
	Mode             AvailabilityMode `yaml:"availability_mode" json:"availability_mode"`
	Status           ResourceStatus   `yaml:"status" json:"status"`
	TimeZone         string           `yaml:"time_zone" json:"time_zone"`
	Rules            []WeeklyRule     `yaml:"rules" json:"rules"`
	Blackouts        []Blackout       `yaml:"blackouts" json:"blackouts"`
	Policy           BookingPolicy    `yaml:"policy" json:"policy"`
	CreatedAt        time.Time        `yaml:"-" json:"created_at"`
	UpdatedAt        time.Time        `yaml:"-" json:"updated_at"`
}

func (r *Resource) Archived() bool {
	return r.Status == ResourceArchived
}

// RequiresApproval combines the explicit flag with the by-request mode.
func (r *Resource) RequiresApproval() bool {
	return r.ApprovalRequired || r.Mode == ModeByRequest
}

// Location resolves the resource time zone, falling back to UTC.
func (r *Resource) Location() *time.Location {
	if r.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizeBlackouts merges overlapping blackouts so that stored intervals
// never overlap each other. Reasons of merged entries are joined.
func NormalizeBlackouts(in []Blackout) []Blackout {
	if len(in) == 0 {
		return nil
	}
	ivs := make([]interval.Interval, 0, len(in))
	for _, b := range in {
		ivs = append(ivs, b.Interval())
	}
	merged := interval.Normalize(ivs)

	out := make([]Blackout, 0, len(merged))
	for _, m := range merged {
		b := Blackout{Start: m.Start, End: m.End}
		for _, src := range in {
			if src.Reason == "" || !m.Contains(src.Interval()) {
				continue
			}
			if b.Reason == "" {
				b.Reason = src.Reason
			} else if b.Reason != src.Reason {
				b.Reason += "; " + src.Reason
			}
		}
		out = append(out, b)
	}
	return out
}

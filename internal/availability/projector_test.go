package availability

import (
	"testing"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2030-03-04 is a Monday.
var monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(h1, h2 int) interval.Interval {
	return interval.Interval{Start: at(h1, 0), End: at(h2, 0)}
}

func openResource() *models.Resource {
	return &models.Resource{ID: 1, Mode: models.ModeOpen, Status: models.ResourcePublished}
}

func reservation(h1, h2 int, status models.ReservationStatus) *models.Reservation {
	return &models.Reservation{Start: at(h1, 0), End: at(h2, 0), Status: status}
}

func TestProject_PriorityOrder(t *testing.T) {
	res := openResource()
	res.Blackouts = []models.Blackout{{Start: at(12, 0), End: at(14, 0)}}
	reservations := []*models.Reservation{
		reservation(9, 10, models.StatusApproved),
		reservation(13, 15, models.StatusPending),
	}

	got := Project(res, iv(8, 18), reservations, at(9, 30))

	assert.Equal(t, []Segment{
		{Start: at(8, 0), End: at(9, 30), State: StatePast},
		{Start: at(9, 30), End: at(10, 0), State: StateReserved},
		{Start: at(10, 0), End: at(12, 0), State: StateAvailable},
		{Start: at(12, 0), End: at(13, 0), State: StateBlackout},
		{Start: at(13, 0), End: at(15, 0), State: StateReserved},
		{Start: at(15, 0), End: at(18, 0), State: StateAvailable},
	}, got)
}

func TestProject_PastWinsOverReserved(t *testing.T) {
	// An approved reservation not yet swept still renders as past.
	got := Project(openResource(), iv(8, 12), []*models.Reservation{reservation(9, 10, models.StatusApproved)}, at(11, 0))

	assert.Equal(t, []Segment{
		{Start: at(8, 0), End: at(11, 0), State: StatePast},
		{Start: at(11, 0), End: at(12, 0), State: StateAvailable},
	}, got)
}

func TestProject_CoversWindowWithoutGaps(t *testing.T) {
	res := openResource()
	res.Rules = []models.WeeklyRule{{Kind: models.RuleBlackout, Weekday: time.Monday, StartMinute: 12 * 60, EndMinute: 13 * 60}}
	window := iv(0, 24)

	got := Project(res, window, []*models.Reservation{reservation(11, 12, models.StatusApproved), reservation(12, 14, models.StatusApproved)}, at(1, 0))
	require.NotEmpty(t, got)
	assert.Equal(t, window.Start, got[0].Start)
	assert.Equal(t, window.End, got[len(got)-1].End)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].End, got[i].Start)
		assert.NotEqual(t, got[i-1].State, got[i].State, "adjacent equal segments must be merged")
	}
}

func TestProject_RulesModeBusinessHours(t *testing.T) {
	res := openResource()
	res.Mode = models.ModeRules
	res.Rules = []models.WeeklyRule{{Kind: models.RuleAvailable, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}}

	got := Project(res, iv(0, 24), nil, monday.Add(-time.Hour))

	assert.Equal(t, []Segment{
		{Start: at(0, 0), End: at(9, 0), State: StateBlackout},
		{Start: at(9, 0), End: at(17, 0), State: StateAvailable},
		{Start: at(17, 0), End: at(24, 0), State: StateBlackout},
	}, got)
}

func TestProject_OpenModeIgnoresAvailableRules(t *testing.T) {
	res := openResource()
	res.Rules = []models.WeeklyRule{{Kind: models.RuleAvailable, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}}

	got := Project(res, iv(0, 24), nil, monday.Add(-time.Hour))
	assert.Equal(t, []Segment{{Start: at(0, 0), End: at(24, 0), State: StateAvailable}}, got)
}

func TestProject_InvalidWindow(t *testing.T) {
	assert.Nil(t, Project(openResource(), interval.Interval{Start: at(10, 0), End: at(10, 0)}, nil, monday))
}

func TestExpandRules_TimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	res := openResource()
	res.TimeZone = "Europe/Moscow"
	res.Rules = []models.WeeklyRule{{Kind: models.RuleAvailable, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 18 * 60}}

	available, blackout := ExpandRules(res, iv(0, 24))
	require.Len(t, available, 1)
	assert.Empty(t, blackout)
	assert.True(t, available[0].Start.Equal(time.Date(2030, 3, 4, 9, 0, 0, 0, loc)))
	assert.True(t, available[0].End.Equal(time.Date(2030, 3, 4, 18, 0, 0, 0, loc)))
}

func TestBlocked(t *testing.T) {
	res := openResource()
	res.Mode = models.ModeRules
	res.Rules = []models.WeeklyRule{
		{Kind: models.RuleAvailable, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
		{Kind: models.RuleBlackout, Weekday: time.Monday, StartMinute: 12 * 60, EndMinute: 13 * 60},
	}
	res.Blackouts = []models.Blackout{{Start: at(15, 0), End: at(16, 0), Reason: "maintenance"}}

	tests := []struct {
		name      string
		candidate interval.Interval
		reason    domain.SlotReason
		blocked   bool
	}{
		{"inside hours", iv(9, 11), "", false},
		{"adjacent to lunch", iv(11, 12), "", false},
		{"recurring blackout", iv(11, 13), domain.ReasonBlackout, true},
		{"one-off blackout", iv(14, 16), domain.ReasonBlackout, true},
		{"before opening", iv(8, 10), domain.ReasonOutsideHours, true},
		{"after closing", iv(16, 18), domain.ReasonOutsideHours, true},
		{"evening", iv(18, 19), domain.ReasonOutsideHours, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, blocked := Blocked(res, tt.candidate)
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestBlocked_RulesModeWithoutAvailableRulesIsOpen(t *testing.T) {
	res := openResource()
	res.Mode = models.ModeByRequest
	_, blocked := Blocked(res, iv(2, 3))
	assert.False(t, blocked)
}

func TestAvailableSlots(t *testing.T) {
	segments := []Segment{
		{Start: at(8, 0), End: at(9, 0), State: StatePast},
		{Start: at(9, 0), End: at(11, 30), State: StateAvailable},
		{Start: at(11, 30), End: at(12, 0), State: StateReserved},
		{Start: at(12, 0), End: at(13, 0), State: StateAvailable},
	}

	got := AvailableSlots(segments, time.Hour)
	assert.Equal(t, []interval.Interval{iv(9, 10), iv(10, 11), iv(12, 13)}, got)
	assert.Nil(t, AvailableSlots(segments, 0))
}

package export

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reservation-engine/internal/availability"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var from = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	resources []*models.Resource
	segments  map[int64][]availability.Segment
	err       error
}

func (s *fakeSource) Resources(context.Context) ([]*models.Resource, error) {
	return s.resources, s.err
}

func (s *fakeSource) ProjectAvailability(_ context.Context, id int64, _, _, _ time.Time) ([]availability.Segment, error) {
	return s.segments[id], nil
}

func (s *fakeSource) AvailableSlots(_ context.Context, id int64, _, _ time.Time, slot time.Duration, _ time.Time) ([]interval.Interval, error) {
	return availability.AvailableSlots(s.segments[id], models.DefaultSlotDuration), nil
}

func seg(h1, h2 int, state availability.State) availability.Segment {
	return availability.Segment{
		Start: from.Add(time.Duration(h1) * time.Hour),
		End:   from.Add(time.Duration(h2) * time.Hour),
		State: state,
	}
}

func TestWriteAvailability(t *testing.T) {
	src := &fakeSource{
		resources: []*models.Resource{
			{ID: 1, Name: "Room A", Mode: models.ModeOpen, Status: models.ResourcePublished},
			{ID: 2, Name: "Lab/West [2]", Mode: models.ModeByRequest, Status: models.ResourcePublished},
			{ID: 3, Name: "Old", Mode: models.ModeOpen, Status: models.ResourceArchived},
		},
		segments: map[int64][]availability.Segment{
			1: {seg(0, 2, availability.StateAvailable), seg(2, 3, availability.StateReserved), seg(3, 24, availability.StateBlackout)},
			2: {seg(0, 24, availability.StateAvailable)},
		},
	}
	logger := zerolog.Nop()
	dir := t.TempDir()
	exp := NewExporter(src, dir, &logger)

	path, err := exp.WriteAvailability(context.Background(), from, 1, from)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "availability_2030-03-04_1d.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, "1 Room A", "2 Lab West (2)"}, f.GetSheetList())

	rows, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"1", "Room A", "open", "auto", "published", "2", "2"}, rows[2])
	assert.Equal(t, "required", rows[3][3])
	assert.Equal(t, "24", rows[3][5])
	assert.Equal(t, "archived", rows[4][4])

	segRows, err := f.GetRows("1 Room A")
	require.NoError(t, err)
	require.Len(t, segRows, 4)
	assert.Equal(t, []string{"2030-03-04 02:00", "2030-03-04 03:00", "reserved", "1"}, segRows[2])
}

func TestWriteAvailability_SourceError(t *testing.T) {
	logger := zerolog.Nop()
	exp := NewExporter(&fakeSource{err: errors.New("boom")}, t.TempDir(), &logger)

	_, err := exp.WriteAvailability(context.Background(), from, 0, from)
	assert.ErrorContains(t, err, "boom")
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	long := &models.Resource{ID: 7, Name: strings.Repeat("x", 40)}

	first := sheetName(long, used)
	second := sheetName(long, used)

	assert.Len(t, []rune(first), maxSheetName)
	assert.Len(t, []rune(second), maxSheetName)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, " 2"))
}

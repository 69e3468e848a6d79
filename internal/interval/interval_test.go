package interval

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(h1, h2 int) Interval {
	return Interval{Start: at(h1, 0), End: at(h2, 0)}
}

func TestValid(t *testing.T) {
	assert.False(t, Interval{Start: at(10, 0), End: at(10, 0)}.Valid())
	assert.False(t, Interval{Start: at(11, 0), End: at(10, 0)}.Valid())

	got := Interval{Start: at(10, 0), End: at(11, 0)}
	assert.True(t, got.Valid())
	assert.Equal(t, time.Hour, got.Duration())
}

func TestRepresentable(t *testing.T) {
	assert.True(t, Interval{Start: at(10, 0), End: at(11, 0)}.Representable())
	assert.True(t, Interval{Start: Earliest, End: Latest}.Representable())

	far := time.Date(2300, 1, 1, 9, 0, 0, 0, time.UTC)
	assert.False(t, Interval{Start: far, End: far.Add(time.Hour)}.Representable())
	assert.False(t, Interval{Start: at(10, 0), End: Latest.Add(time.Nanosecond)}.Representable())

	early := time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, Interval{Start: early, End: at(10, 0)}.Representable())
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", iv(9, 10), iv(9, 10), true},
		{"partial", iv(9, 11), iv(10, 12), true},
		{"contained", iv(9, 12), iv(10, 11), true},
		{"adjacent after", iv(9, 10), iv(10, 11), false},
		{"adjacent before", iv(10, 11), iv(9, 10), false},
		{"disjoint", iv(9, 10), iv(11, 12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestHasConflict_SymmetryProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	random := func() Interval {
		s := rng.Intn(48)
		l := 1 + rng.Intn(8)
		return Interval{Start: base.Add(time.Duration(s) * 30 * time.Minute), End: base.Add(time.Duration(s+l) * 30 * time.Minute)}
	}

	for i := 0; i < 2000; i++ {
		a, b := random(), random()
		assert.Equal(t, HasConflict(a, []Interval{b}), HasConflict(b, []Interval{a}))
		if a.End.Equal(b.Start) {
			assert.False(t, HasConflict(a, []Interval{b}))
		}
	}
}

func TestIndex_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		var items []Interval
		for i := 0; i < rng.Intn(20); i++ {
			s := rng.Intn(96)
			items = append(items, Interval{
				Start: base.Add(time.Duration(s) * 15 * time.Minute),
				End:   base.Add(time.Duration(s+1+rng.Intn(12)) * 15 * time.Minute),
			})
		}
		idx := NewIndex(items)
		for q := 0; q < 20; q++ {
			s := rng.Intn(96)
			c := Interval{Start: base.Add(time.Duration(s) * 15 * time.Minute), End: base.Add(time.Duration(s+1+rng.Intn(8)) * 15 * time.Minute)}
			assert.Equal(t, HasConflict(c, items), idx.Conflicts(c))
			assert.Equal(t, len(idx.Overlapping(c)) > 0, idx.Conflicts(c))
		}
	}
}

func TestIndex_Empty(t *testing.T) {
	var idx *Index
	assert.False(t, idx.Conflicts(iv(1, 2)))
	assert.False(t, NewIndex(nil).Conflicts(iv(1, 2)))
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Interval{iv(14, 16), iv(9, 10), iv(10, 11), iv(15, 18), {Start: at(20, 0), End: at(20, 0)}})
	assert.Equal(t, []Interval{iv(9, 11), iv(14, 18)}, got)
	assert.Nil(t, Normalize(nil))
}

func TestSubtract(t *testing.T) {
	t.Run("NoHoles", func(t *testing.T) {
		assert.Equal(t, []Interval{iv(14, 16)}, Subtract(iv(14, 16), nil))
	})
	t.Run("HoleInMiddle", func(t *testing.T) {
		assert.Equal(t, []Interval{iv(10, 12), iv(13, 15)}, Subtract(iv(10, 15), []Interval{iv(12, 13)}))
	})
	t.Run("HoleCoversStart", func(t *testing.T) {
		assert.Equal(t, []Interval{iv(15, 16)}, Subtract(iv(14, 16), []Interval{iv(12, 15)}))
	})
	t.Run("FullyCovered", func(t *testing.T) {
		assert.Empty(t, Subtract(iv(14, 16), []Interval{iv(10, 20)}))
	})
	t.Run("HolesOutside", func(t *testing.T) {
		assert.Equal(t, []Interval{iv(14, 16)}, Subtract(iv(14, 16), []Interval{iv(10, 14), iv(16, 18)}))
	})
}

func TestClipContainsPad(t *testing.T) {
	clipped, ok := iv(8, 12).Clip(iv(10, 20))
	require.True(t, ok)
	assert.Equal(t, iv(10, 12), clipped)

	_, ok = iv(8, 10).Clip(iv(10, 20))
	assert.False(t, ok)

	assert.True(t, iv(10, 16).Contains(iv(10, 16)))
	assert.True(t, iv(10, 16).Contains(iv(11, 12)))
	assert.False(t, iv(10, 16).Contains(iv(9, 12)))

	assert.Equal(t, Interval{Start: at(9, 45), End: at(11, 15)}, iv(10, 11).Pad(15*time.Minute))
	assert.Equal(t, iv(10, 11), iv(10, 11).Pad(0))
}

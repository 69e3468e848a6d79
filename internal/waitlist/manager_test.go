package waitlist

import (
	"context"
	"testing"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
	"reservation-engine/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time {
	return day.Add(time.Duration(h) * time.Hour)
}

func iv(h1, h2 int) interval.Interval {
	return interval.Interval{Start: at(h1), End: at(h2)}
}

func setup(t *testing.T) (*Manager, *repository.MemoryStore, *models.Resource) {
	t.Helper()
	logger := zerolog.Nop()
	store := repository.NewMemoryStore()
	res := &models.Resource{ID: 1, Status: models.ResourcePublished, Mode: models.ModeOpen}
	require.NoError(t, store.PutResource(context.Background(), res))
	return NewManager(store, 30*time.Minute, &logger), store, res
}

func TestEnqueue(t *testing.T) {
	m, _, res := setup(t)
	ctx := context.Background()
	now := day

	e, err := m.Enqueue(ctx, res, iv(14, 16), 10, now)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, e.Status)
	assert.Equal(t, now, e.CreatedAt)

	t.Run("DuplicateReturnsExisting", func(t *testing.T) {
		again, err := m.Enqueue(ctx, res, iv(14, 16), 10, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, e.ID, again.ID)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		_, err := m.Enqueue(ctx, res, iv(16, 14), 10, now)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("BeyondStorableRange", func(t *testing.T) {
		far := time.Date(2300, 1, 1, 9, 0, 0, 0, time.UTC)
		_, err := m.Enqueue(ctx, res, interval.Interval{Start: far, End: far.Add(time.Hour)}, 10, now)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldErrors, "desired_start")
	})

	t.Run("PastStart", func(t *testing.T) {
		_, err := m.Enqueue(ctx, res, iv(1, 2), 10, at(3))
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("ArchivedResource", func(t *testing.T) {
		archived := *res
		archived.Status = models.ResourceArchived
		_, err := m.Enqueue(ctx, &archived, iv(18, 19), 10, now)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldErrors, "resource_id")
	})
}

func TestPromoteOnFree_FIFOAndContainment(t *testing.T) {
	m, store, res := setup(t)
	ctx := context.Background()

	tooWide, err := m.Enqueue(ctx, res, iv(13, 16), 10, at(0))
	require.NoError(t, err)
	first, err := m.Enqueue(ctx, res, iv(14, 16), 11, at(1))
	require.NoError(t, err)
	second, err := m.Enqueue(ctx, res, iv(14, 15), 12, at(2))
	require.NoError(t, err)

	promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 16)}, at(3))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, first.ID, promoted[0].ID)

	got, err := store.GetWaitlistEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistNotified, got.Status)
	require.NotNil(t, got.NotifiedAt)

	for _, id := range []int64{tooWide.ID, second.ID} {
		other, err := store.GetWaitlistEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.WaitlistWaiting, other.Status)
	}
}

func TestPromoteOnFree_OnePerPieceAndExclude(t *testing.T) {
	m, _, res := setup(t)
	ctx := context.Background()

	a, err := m.Enqueue(ctx, res, iv(14, 15), 10, at(0))
	require.NoError(t, err)
	b, err := m.Enqueue(ctx, res, iv(17, 18), 11, at(1))
	require.NoError(t, err)
	c, err := m.Enqueue(ctx, res, iv(14, 15), 12, at(2))
	require.NoError(t, err)

	promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 15), iv(17, 18)}, at(3), a.ID)
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, c.ID, promoted[0].ID)
	assert.Equal(t, b.ID, promoted[1].ID)
}

func TestPromoteOnFree_SkipsStartedEntries(t *testing.T) {
	m, _, res := setup(t)
	ctx := context.Background()

	_, err := m.Enqueue(ctx, res, iv(14, 16), 10, at(0))
	require.NoError(t, err)

	promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 16)}, at(15))
	require.NoError(t, err)
	assert.Empty(t, promoted)
}

func TestConvertRevertDeclineLeave(t *testing.T) {
	m, store, res := setup(t)
	ctx := context.Background()

	e, err := m.Enqueue(ctx, res, iv(14, 16), 10, at(0))
	require.NoError(t, err)

	t.Run("ConvertRequiresNotified", func(t *testing.T) {
		err := m.MarkConverted(ctx, e, 99, at(1))
		assert.True(t, domain.IsInvalidTransition(err))
	})

	promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 16)}, at(1))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	e = promoted[0]

	t.Run("Revert", func(t *testing.T) {
		require.NoError(t, m.Revert(ctx, e, at(2)))
		assert.Equal(t, models.WaitlistWaiting, e.Status)
		assert.Nil(t, e.NotifiedAt)
	})

	t.Run("DeclineRequiresNotified", func(t *testing.T) {
		_, err := m.Decline(ctx, e.ID, 10, at(2))
		assert.True(t, domain.IsInvalidTransition(err))
	})

	t.Run("LeaveByStranger", func(t *testing.T) {
		_, err := m.Leave(ctx, e.ID, 11, at(2))
		assert.True(t, domain.IsUnauthorized(err))
	})

	t.Run("ConvertAfterRepromotion", func(t *testing.T) {
		promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 16)}, at(3))
		require.NoError(t, err)
		require.Len(t, promoted, 1)

		require.NoError(t, m.MarkConverted(ctx, promoted[0], 99, at(4)))
		stored, err := store.GetWaitlistEntry(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WaitlistConverted, stored.Status)
		require.NotNil(t, stored.ConvertedReservationID)
		assert.Equal(t, int64(99), *stored.ConvertedReservationID)
	})

	t.Run("Leave", func(t *testing.T) {
		other, err := m.Enqueue(ctx, res, iv(18, 19), 12, at(4))
		require.NoError(t, err)
		left, err := m.Leave(ctx, other.ID, 12, at(5))
		require.NoError(t, err)
		assert.Equal(t, models.WaitlistCancelled, left.Status)
	})

	t.Run("Decline", func(t *testing.T) {
		other, err := m.Enqueue(ctx, res, iv(20, 21), 13, at(5))
		require.NoError(t, err)
		_, err = m.PromoteOnFree(ctx, 1, []interval.Interval{iv(20, 21)}, at(5))
		require.NoError(t, err)

		declined, err := m.Decline(ctx, other.ID, 13, at(6))
		require.NoError(t, err)
		assert.Equal(t, models.WaitlistCancelled, declined.Status)
	})
}

func TestExpiredAndOfferOpen(t *testing.T) {
	m, _, res := setup(t)
	ctx := context.Background()

	_, err := m.Enqueue(ctx, res, iv(14, 16), 10, at(0))
	require.NoError(t, err)
	promoted, err := m.PromoteOnFree(ctx, 1, []interval.Interval{iv(14, 16)}, at(1))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	e := promoted[0]

	assert.True(t, m.OfferOpen(e, at(1).Add(29*time.Minute)))
	assert.False(t, m.OfferOpen(e, at(1).Add(30*time.Minute)))

	expired, err := m.Expired(ctx, at(1).Add(29*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = m.Expired(ctx, at(1).Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, e.ID, expired[0].ID)
}

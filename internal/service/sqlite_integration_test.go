package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reservation-engine/internal/database"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"
	"reservation-engine/internal/models"
	"reservation-engine/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationService_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PutResource(ctx, &models.Resource{
		ID: approvalResourceID, Name: "Room A", OwnerType: models.OwnerUser, OwnerID: ownerID, ApprovalRequired: true,
	}))
	for _, p := range []*models.Principal{
		{ID: ownerID, Role: models.RoleApprover},
		{ID: u1, Role: models.RoleRequester},
		{ID: u2, Role: models.RoleRequester},
	} {
		require.NoError(t, db.PutPrincipal(ctx, p))
	}

	sink := &recordingSink{}
	svc := NewReservationService(Deps{
		Resources:    db,
		Identities:   db,
		Groups:       db,
		Reservations: db,
		Approvals:    db,
		Waitlist:     db,
		Sink:         sink,
		Locker:       repository.NewMemoryLocker(),
		Logger:       &logger,
	}, Options{})

	now := at(8, 0)
	r, err := svc.RequestReservation(ctx, ReservationRequest{ResourceID: approvalResourceID, RequesterID: u1, Start: at(9, 0), End: at(11, 0)}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)

	entry, err := svc.EnqueueWaitlist(ctx, approvalResourceID, u2, at(9, 0), at(10, 0), now)
	require.NoError(t, err)

	_, err = svc.ApproveReservation(ctx, r.ID, ownerID, "ok", now)
	require.NoError(t, err)
	history, err := svc.ApprovalHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DecisionApproved, history[0].Action)

	_, err = svc.CancelReservation(ctx, r.ID, u1, now.Add(time.Minute))
	require.NoError(t, err)

	offered, err := db.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistNotified, offered.Status)
	assert.Contains(t, sink.types(), events.EventWaitlistSlotOpened)

	converted, err := svc.ConfirmWaitlistOffer(ctx, entry.ID, u2, "", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, converted.Status)

	_, err = svc.ApproveReservation(ctx, converted.ID, ownerID, "", now.Add(3*time.Minute))
	require.NoError(t, err)

	n, err := svc.SweepCompletions(ctx, at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mine, err := svc.ListRequesterReservations(ctx, u2, at(10, 0))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusCompleted, mine[0].Status)
}

func TestReservationService_SQLiteRejectsUnstorableDates(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PutResource(ctx, &models.Resource{ID: openResourceID, Name: "Room B", OwnerType: models.OwnerUser, OwnerID: ownerID}))
	require.NoError(t, db.PutPrincipal(ctx, &models.Principal{ID: u1, Role: models.RoleRequester}))

	svc := NewReservationService(Deps{
		Resources:    db,
		Identities:   db,
		Groups:       db,
		Reservations: db,
		Approvals:    db,
		Waitlist:     db,
		Locker:       repository.NewMemoryLocker(),
	}, Options{})

	_, err = svc.RequestReservation(ctx, ReservationRequest{
		ResourceID: openResourceID, RequesterID: u1, Start: farFuture, End: farFuture.Add(time.Hour),
	}, at(8, 0))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors, "start")

	_, err = svc.EnqueueWaitlist(ctx, openResourceID, u1, farFuture, farFuture.Add(time.Hour), at(8, 0))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors, "desired_start")

	mine, err := db.ListByRequester(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, mine)

	n, err := svc.SweepCompletions(ctx, at(8, 30))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Package waitlist queues demand for busy intervals and offers freed
// intervals to the earliest eligible entry.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/models"

	"github.com/rs/zerolog"
)

const (
	eventLeave   = "leave"
	eventDecline = "decline"
	eventConvert = "convert"
	eventRevert  = "revert"
)

var transitions = map[models.WaitlistStatus]map[models.WaitlistStatus]bool{
	models.WaitlistWaiting: {
		models.WaitlistNotified:  true,
		models.WaitlistCancelled: true,
	},
	models.WaitlistNotified: {
		models.WaitlistConverted: true,
		models.WaitlistCancelled: true,
		models.WaitlistWaiting:   true,
	},
}

type Manager struct {
	store  domain.WaitlistStore
	grace  time.Duration
	logger *zerolog.Logger
}

func NewManager(store domain.WaitlistStore, grace time.Duration, logger *zerolog.Logger) *Manager {
	if grace <= 0 {
		grace = models.DefaultWaitlistGrace
	}
	return &Manager{store: store, grace: grace, logger: logger}
}

func (m *Manager) Grace() time.Duration {
	return m.grace
}

func (m *Manager) Get(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	e, err := m.store.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry %d: %w", id, err)
	}
	return e, nil
}

// Enqueue adds userID to the queue of res for desired. An identical active
// entry of the same user is returned instead of creating a duplicate.
func (m *Manager) Enqueue(ctx context.Context, res *models.Resource, desired interval.Interval, userID int64, now time.Time) (*models.WaitlistEntry, error) {
	verr := &domain.ValidationError{}
	switch {
	case !desired.Valid():
		verr.Add("desired_end", "must be after desired_start")
	case !desired.Representable():
		verr.Add("desired_start", "outside the supported date range")
	case desired.Start.Before(now):
		verr.Add("desired_start", "must not be in the past")
	}
	if res.Archived() {
		verr.Add("resource_id", "resource is archived")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	existing, err := m.store.ListWaitlistByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	for _, e := range existing {
		active := e.Status == models.WaitlistWaiting || e.Status == models.WaitlistNotified
		if active && e.ResourceID == res.ID && e.DesiredStart.Equal(desired.Start) && e.DesiredEnd.Equal(desired.End) {
			return e, nil
		}
	}

	entry := &models.WaitlistEntry{
		ResourceID:   res.ID,
		UserID:       userID,
		DesiredStart: desired.Start,
		DesiredEnd:   desired.End,
		Status:       models.WaitlistWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.InsertWaitlistEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	metrics.IncWaitlist("enqueued")
	m.logger.Debug().
		Int64("waitlist_entry_id", entry.ID).
		Int64("resource_id", res.ID).
		Int64("user_id", userID).
		Msg("Waitlist entry created")
	return entry, nil
}

// PromoteOnFree offers each freed piece to at most one waiting entry: the
// earliest queued entry whose desired interval fits the piece entirely and
// has not started yet. Entries listed in exclude are skipped for this pass.
// The notified entries are returned in promotion order.
func (m *Manager) PromoteOnFree(ctx context.Context, resourceID int64, freed []interval.Interval, now time.Time, exclude ...int64) ([]*models.WaitlistEntry, error) {
	if len(freed) == 0 {
		return nil, nil
	}
	waiting, err := m.store.ListWaiting(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}

	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var promoted []*models.WaitlistEntry
	for _, piece := range freed {
		for _, e := range waiting {
			if skip[e.ID] || e.DesiredStart.Before(now) || !piece.Contains(e.Interval()) {
				continue
			}
			err := m.store.UpdateWaitlistStatus(ctx, e.ID, models.WaitlistWaiting, models.WaitlistNotified, now, nil)
			if errors.Is(err, domain.ErrStoreContention) {
				// Left the queue concurrently; try the next one.
				skip[e.ID] = true
				continue
			}
			if err != nil {
				return promoted, fmt.Errorf("failed to notify waitlist entry %d: %w", e.ID, err)
			}

			skip[e.ID] = true
			e.Status = models.WaitlistNotified
			notifiedAt := now
			e.NotifiedAt = &notifiedAt
			e.UpdatedAt = now
			promoted = append(promoted, e)
			metrics.IncWaitlist("notified")
			m.logger.Info().
				Int64("waitlist_entry_id", e.ID).
				Int64("resource_id", resourceID).
				Int64("user_id", e.UserID).
				Msg("Waitlist entry notified of freed slot")
			break
		}
	}
	return promoted, nil
}

func (m *Manager) transition(ctx context.Context, e *models.WaitlistEntry, to models.WaitlistStatus, event string, now time.Time, convertedID *int64) error {
	if !transitions[e.Status][to] {
		return &domain.InvalidTransitionError{WaitlistEntryID: e.ID, From: string(e.Status), Event: event}
	}
	err := m.store.UpdateWaitlistStatus(ctx, e.ID, e.Status, to, now, convertedID)
	if errors.Is(err, domain.ErrStoreContention) {
		return &domain.InvalidTransitionError{WaitlistEntryID: e.ID, From: string(e.Status), Event: event}
	}
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry %d: %w", e.ID, err)
	}

	if to == models.WaitlistNotified {
		notifiedAt := now
		e.NotifiedAt = &notifiedAt
	} else if to == models.WaitlistWaiting {
		e.NotifiedAt = nil
	}
	if convertedID != nil {
		e.ConvertedReservationID = convertedID
	}
	e.Status = to
	e.UpdatedAt = now
	metrics.IncWaitlist(event)
	return nil
}

// MarkConverted links a notified entry to the reservation created from it.
func (m *Manager) MarkConverted(ctx context.Context, e *models.WaitlistEntry, reservationID int64, now time.Time) error {
	return m.transition(ctx, e, models.WaitlistConverted, eventConvert, now, &reservationID)
}

// Revert puts a notified entry back in the queue.
func (m *Manager) Revert(ctx context.Context, e *models.WaitlistEntry, now time.Time) error {
	return m.transition(ctx, e, models.WaitlistWaiting, eventRevert, now, nil)
}

// Decline cancels a notified entry on behalf of its owner.
func (m *Manager) Decline(ctx context.Context, entryID, userID int64, now time.Time) (*models.WaitlistEntry, error) {
	return m.cancel(ctx, entryID, userID, models.WaitlistNotified, eventDecline, now)
}

// Leave cancels a waiting entry on behalf of its owner.
func (m *Manager) Leave(ctx context.Context, entryID, userID int64, now time.Time) (*models.WaitlistEntry, error) {
	return m.cancel(ctx, entryID, userID, models.WaitlistWaiting, eventLeave, now)
}

func (m *Manager) cancel(ctx context.Context, entryID, userID int64, from models.WaitlistStatus, event string, now time.Time) (*models.WaitlistEntry, error) {
	e, err := m.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, &domain.AuthorizationError{ActorID: userID, Action: event + " waitlist entry"}
	}
	if e.Status != from {
		return nil, &domain.InvalidTransitionError{WaitlistEntryID: e.ID, From: string(e.Status), Event: event}
	}
	if err := m.transition(ctx, e, models.WaitlistCancelled, event, now, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// Expired lists notified entries whose offer is older than the grace period.
func (m *Manager) Expired(ctx context.Context, now time.Time) ([]*models.WaitlistEntry, error) {
	entries, err := m.store.ListNotifiedBefore(ctx, now.Add(-m.grace))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}
	return entries, nil
}

// OfferOpen reports whether a notified entry can still be confirmed at now.
func (m *Manager) OfferOpen(e *models.WaitlistEntry, now time.Time) bool {
	if e.Status != models.WaitlistNotified || e.NotifiedAt == nil {
		return false
	}
	return now.Before(e.NotifiedAt.Add(m.grace))
}

package service

import (
	"context"
	"fmt"
	"time"

	"reservation-engine/internal/availability"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/models"
)

const eventConfirm = "confirm"

// EnqueueWaitlist queues userID for [start, end) on resourceID.
func (s *ReservationService) EnqueueWaitlist(ctx context.Context, resourceID, userID int64, start, end time.Time, now time.Time) (*models.WaitlistEntry, error) {
	now = s.resolveNow(now)
	res, err := s.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Principal(ctx, userID); err != nil {
		return nil, err
	}
	return s.waitlist.Enqueue(ctx, res, interval.Interval{Start: start, End: end}, userID, now)
}

// ConfirmWaitlistOffer turns a notified entry into a reservation. The
// interval is re-validated under the resource lock; when it no longer fits,
// the entry goes back to waiting and the next candidate is offered whatever
// is still free.
func (s *ReservationService) ConfirmWaitlistOffer(ctx context.Context, entryID, userID int64, notes string, now time.Time) (*models.Reservation, error) {
	now = s.resolveNow(now)
	entry, err := s.waitlist.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, &domain.AuthorizationError{ActorID: userID, Action: "confirm waitlist offer"}
	}
	res, err := s.getResource(ctx, entry.ResourceID)
	if err != nil {
		return nil, err
	}

	var (
		created  *models.Reservation
		promoted []*models.WaitlistEntry
	)
	err = s.withLock(ctx, res.ID, func() error {
		cur, err := s.waitlist.Get(ctx, entryID)
		if err != nil {
			return err
		}
		if cur.Status != models.WaitlistNotified {
			return &domain.InvalidTransitionError{WaitlistEntryID: cur.ID, From: string(cur.Status), Event: eventConfirm}
		}
		if !s.waitlist.OfferOpen(cur, now) {
			if err := s.waitlist.Revert(ctx, cur, now); err != nil {
				return err
			}
			promoted = s.promoteFreedLocked(ctx, res, cur.Interval(), now, cur.ID)
			return domain.NewValidationError("waitlist_entry_id", "offer expired")
		}

		req := ReservationRequest{
			ResourceID:  res.ID,
			RequesterID: userID,
			Start:       cur.DesiredStart,
			End:         cur.DesiredEnd,
			Notes:       notes,
		}
		err = validateRequest(res, req, now)
		if err == nil {
			created, err = s.createLocked(ctx, res, req, now)
		}
		if err != nil {
			if rerr := s.waitlist.Revert(ctx, cur, now); rerr != nil {
				s.logger.Error().Err(rerr).Int64("waitlist_entry_id", cur.ID).Msg("Failed to revert waitlist entry")
				return err
			}
			promoted = s.promoteFreedLocked(ctx, res, cur.Interval(), now, cur.ID)
			return err
		}

		if err := s.waitlist.MarkConverted(ctx, cur, created.ID, now); err != nil {
			if uerr := s.reservations.UpdateReservationStatus(ctx, created.ID, created.Status, models.StatusCancelled, now); uerr != nil {
				s.logger.Error().Err(uerr).Int64("reservation_id", created.ID).Msg("Failed to roll back converted reservation")
			}
			created = nil
			return err
		}
		return nil
	})
	s.emitPromotions(ctx, promoted, now)
	if err != nil {
		s.logger.Debug().Err(err).Int64("waitlist_entry_id", entryID).Msg("Waitlist offer not converted")
		return nil, err
	}

	metrics.IncTransition(string(created.Status))
	s.logger.Info().
		Int64("waitlist_entry_id", entryID).
		Int64("reservation_id", created.ID).
		Int64("resource_id", created.ResourceID).
		Msg("Waitlist offer converted")
	s.emit(ctx, reservationEvent(created, userID, "", now))
	return created, nil
}

// DeclineWaitlistOffer cancels a notified entry and offers the interval to
// the next candidate.
func (s *ReservationService) DeclineWaitlistOffer(ctx context.Context, entryID, userID int64, now time.Time) (*models.WaitlistEntry, error) {
	now = s.resolveNow(now)
	entry, err := s.waitlist.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	res, err := s.getResource(ctx, entry.ResourceID)
	if err != nil {
		return nil, err
	}

	var (
		declined *models.WaitlistEntry
		promoted []*models.WaitlistEntry
	)
	err = s.withLock(ctx, res.ID, func() error {
		var err error
		declined, err = s.waitlist.Decline(ctx, entryID, userID, now)
		if err != nil {
			return err
		}
		promoted = s.promoteFreedLocked(ctx, res, declined.Interval(), now, declined.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitPromotions(ctx, promoted, now)
	return declined, nil
}

// LeaveWaitlist removes a waiting entry from the queue.
func (s *ReservationService) LeaveWaitlist(ctx context.Context, entryID, userID int64, now time.Time) (*models.WaitlistEntry, error) {
	return s.waitlist.Leave(ctx, entryID, userID, s.resolveNow(now))
}

// ExpireWaitlistOffers reverts offers older than the grace period to waiting
// and offers each freed interval to the next candidate, skipping the entry
// that just expired. It returns the number of reverted entries.
func (s *ReservationService) ExpireWaitlistOffers(ctx context.Context, now time.Time) (int, error) {
	now = s.resolveNow(now)
	expired, err := s.waitlist.Expired(ctx, now)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, e := range expired {
		res, err := s.getResource(ctx, e.ResourceID)
		if err != nil {
			return reverted, err
		}
		var promoted []*models.WaitlistEntry
		err = s.withLock(ctx, res.ID, func() error {
			cur, err := s.waitlist.Get(ctx, e.ID)
			if err != nil {
				return err
			}
			if cur.Status != models.WaitlistNotified || s.waitlist.OfferOpen(cur, now) {
				return nil
			}
			if err := s.waitlist.Revert(ctx, cur, now); err != nil {
				if domain.IsInvalidTransition(err) {
					return nil
				}
				return err
			}
			reverted++
			promoted = s.promoteFreedLocked(ctx, res, cur.Interval(), now, cur.ID)
			return nil
		})
		if err != nil {
			return reverted, err
		}
		s.emitPromotions(ctx, promoted, now)
	}

	if reverted > 0 {
		s.logger.Info().Int("count", reverted).Msg("Expired waitlist offers reverted")
	}
	return reverted, nil
}

// promoteFreedLocked offers the part of freed that is actually bookable now
// to the waitlist: remaining blocking reservations (with their buffer),
// blackouts and closed hours are cut out first. Failures are logged; the
// caller holds the resource lock.
func (s *ReservationService) promoteFreedLocked(ctx context.Context, res *models.Resource, freed interval.Interval, now time.Time, exclude ...int64) []*models.WaitlistEntry {
	log := s.logger.With().Int64("resource_id", res.ID).Logger()

	remaining, err := s.reservations.ListBlocking(ctx, res.ID, freed.Pad(res.Policy.Buffer), s.blocking)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list blocking reservations for promotion")
		return nil
	}
	holes := availability.Unavailable(res, freed)
	for _, r := range remaining {
		holes = append(holes, r.Interval().Pad(res.Policy.Buffer))
	}
	pieces := interval.Subtract(freed, holes)
	if len(pieces) == 0 {
		return nil
	}

	promoted, err := s.waitlist.PromoteOnFree(ctx, res.ID, pieces, now, exclude...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to promote waitlist entries")
	}
	return promoted
}

func (s *ReservationService) emitPromotions(ctx context.Context, promoted []*models.WaitlistEntry, now time.Time) {
	for _, e := range promoted {
		ev := events.NewLifecycleEvent(events.EventWaitlistSlotOpened, now)
		ev.WaitlistEntryID = e.ID
		ev.ResourceID = e.ResourceID
		ev.UserID = e.UserID
		ev.Status = string(e.Status)
		ev.Start = e.DesiredStart
		ev.End = e.DesiredEnd
		ev.Comment = fmt.Sprintf("offer open for %s", s.waitlist.Grace())
		s.emit(ctx, ev)
	}
}

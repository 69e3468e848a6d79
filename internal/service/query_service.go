package service

import (
	"context"
	"fmt"
	"time"

	"reservation-engine/internal/availability"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
)

func (s *ReservationService) window(from, to time.Time) (interval.Interval, error) {
	w := interval.Interval{Start: from, End: to}
	if !w.Valid() {
		return interval.Interval{}, domain.NewValidationError("to", "must be after from")
	}
	return w, nil
}

// ProjectAvailability returns the labelled segments of resourceID over [from, to).
func (s *ReservationService) ProjectAvailability(ctx context.Context, resourceID int64, from, to, now time.Time) ([]availability.Segment, error) {
	now = s.resolveNow(now)
	w, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	res, err := s.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	blocking, err := s.reservations.ListBlocking(ctx, res.ID, w, s.blocking)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking reservations: %w", err)
	}
	return availability.Project(res, w, blocking, now), nil
}

// AvailableSlots lists bookable slots of length slot inside [from, to). A
// zero slot uses the default slot duration. Slots that would violate the
// resource buffer against existing reservations are left out.
func (s *ReservationService) AvailableSlots(ctx context.Context, resourceID int64, from, to time.Time, slot time.Duration, now time.Time) ([]interval.Interval, error) {
	now = s.resolveNow(now)
	if slot <= 0 {
		slot = models.DefaultSlotDuration
	}
	w, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	res, err := s.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Archived() {
		return nil, nil
	}

	buffer := res.Policy.Buffer
	blocking, err := s.reservations.ListBlocking(ctx, res.ID, w.Pad(buffer), s.blocking)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking reservations: %w", err)
	}
	slots := availability.AvailableSlots(availability.Project(res, w, blocking, now), slot)
	if buffer <= 0 {
		return slots, nil
	}

	idx := interval.NewIndex(reservationIntervals(blocking))
	out := slots[:0]
	for _, sl := range slots {
		if !idx.Conflicts(sl.Pad(buffer)) {
			out = append(out, sl)
		}
	}
	return out, nil
}

// ListPendingApprovals returns pending reservations on resources approverID
// has authority over.
func (s *ReservationService) ListPendingApprovals(ctx context.Context, approverID int64) ([]*models.Reservation, error) {
	pending, err := s.reservations.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reservations: %w", err)
	}

	authority := make(map[int64]bool)
	var out []*models.Reservation
	for _, r := range pending {
		ok, seen := authority[r.ResourceID]
		if !seen {
			res, err := s.getResource(ctx, r.ResourceID)
			if err != nil {
				return nil, err
			}
			ok, err = s.policy.HasAuthority(ctx, approverID, res)
			if err != nil {
				return nil, err
			}
			authority[r.ResourceID] = ok
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRequesterReservations completes due reservations first so the listing
// does not show finished reservations as approved.
func (s *ReservationService) ListRequesterReservations(ctx context.Context, requesterID int64, now time.Time) ([]*models.Reservation, error) {
	now = s.resolveNow(now)
	if _, err := s.SweepCompletions(ctx, now); err != nil {
		s.logger.Warn().Err(err).Int64("requester_id", requesterID).Msg("Opportunistic completion sweep failed")
	}
	list, err := s.reservations.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of requester %d: %w", requesterID, err)
	}
	return list, nil
}

// ApprovalHistory returns the approval actions of reservationID, oldest first.
func (s *ReservationService) ApprovalHistory(ctx context.Context, reservationID int64) ([]*models.ApprovalAction, error) {
	if _, err := s.reservations.GetReservation(ctx, reservationID); err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
	}
	actions, err := s.approvals.ListApprovalActions(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval actions: %w", err)
	}
	return actions, nil
}

// Resources lists the catalog, used by exports.
func (s *ReservationService) Resources(ctx context.Context) ([]*models.Resource, error) {
	list, err := s.resources.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return list, nil
}

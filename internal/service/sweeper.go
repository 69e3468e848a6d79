package service

import (
	"context"
	"fmt"
	"time"

	"reservation-engine/internal/lifecycle"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/models"
)

// SweepCompletions completes every approved reservation that ended at or
// before now and returns how many it moved. The update is conditional on the
// approved status, so concurrent sweeps and cancellations never double count.
//
// Rows that lose a race or are not due are skipped for the rest of the call
// and the next listing widens past them, so later rows are still reached.
func (s *ReservationService) SweepCompletions(ctx context.Context, now time.Time) (int, error) {
	now = s.resolveNow(now)
	total := 0
	defer func() {
		metrics.AddSweepCompleted(total)
	}()

	skipped := make(map[int64]bool)
	for {
		limit := s.sweepBatch + len(skipped)
		due, err := s.reservations.ListDueForCompletion(ctx, now, limit)
		if err != nil {
			return total, fmt.Errorf("failed to list reservations due for completion: %w", err)
		}

		fresh := 0
		for _, r := range due {
			if skipped[r.ID] {
				continue
			}
			fresh++
			moved, err := s.completeDue(ctx, r, now)
			if err != nil {
				return total, err
			}
			if !moved {
				skipped[r.ID] = true
				continue
			}
			total++
		}

		if fresh == 0 || len(due) < limit {
			break
		}
	}

	if total > 0 {
		s.logger.Info().Int("count", total).Time("now", now).Msg("Completed due reservations")
	}
	return total, nil
}

// completeDue applies the complete edge to r. It reports false when r is not
// due at now or another writer changed it first.
func (s *ReservationService) completeDue(ctx context.Context, r *models.Reservation, now time.Time) (bool, error) {
	if !lifecycle.DueForCompletion(r, now) {
		s.logger.Debug().Int64("reservation_id", r.ID).Str("status", string(r.Status)).Msg("Skipping reservation not due for completion")
		return false, nil
	}
	to, err := lifecycle.Next(r.ID, r.Status, lifecycle.EventComplete)
	if err != nil {
		return false, err
	}

	err = s.reservations.UpdateReservationStatus(ctx, r.ID, r.Status, to, now)
	if isContention(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete reservation %d: %w", r.ID, err)
	}

	r.Status = to
	r.UpdatedAt = now
	metrics.IncTransition(string(to))
	s.emit(ctx, reservationEvent(r, 0, "", now))
	return true, nil
}

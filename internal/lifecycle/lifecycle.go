// Package lifecycle holds the legal reservation status transitions.
package lifecycle

import (
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"
	"reservation-engine/internal/models"
)

type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
)

var transitions = map[models.ReservationStatus]map[Event]models.ReservationStatus{
	models.StatusPending: {
		EventApprove: models.StatusApproved,
		EventReject:  models.StatusRejected,
		EventCancel:  models.StatusCancelled,
	},
	models.StatusApproved: {
		EventCancel:   models.StatusCancelled,
		EventComplete: models.StatusCompleted,
	},
}

// InitialStatus is the status a newly created reservation starts in.
func InitialStatus(approvalRequired bool) models.ReservationStatus {
	if approvalRequired {
		return models.StatusPending
	}
	return models.StatusApproved
}

// Next returns the status reached from `from` by ev, or an
// *domain.InvalidTransitionError when the edge does not exist.
func Next(reservationID int64, from models.ReservationStatus, ev Event) (models.ReservationStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", &domain.InvalidTransitionError{ReservationID: reservationID, From: string(from), Event: string(ev)}
}

// DueForCompletion reports whether the sweep may complete r at now.
func DueForCompletion(r *models.Reservation, now time.Time) bool {
	return r.Status == models.StatusApproved && !now.Before(r.End)
}

// EventType maps a resulting status to the notification event type.
func EventType(status models.ReservationStatus) string {
	switch status {
	case models.StatusPending:
		return events.EventReservationRequested
	case models.StatusApproved:
		return events.EventReservationApproved
	case models.StatusRejected:
		return events.EventReservationRejected
	case models.StatusCancelled:
		return events.EventReservationCancelled
	case models.StatusCompleted:
		return events.EventReservationCompleted
	default:
		return ""
	}
}

// FreesSlot reports whether moving from -> to releases calendar space that
// waitlisted demand can take.
func FreesSlot(from, to models.ReservationStatus, blocking []models.ReservationStatus) bool {
	if to != models.StatusCancelled && to != models.StatusRejected {
		return false
	}
	for _, s := range blocking {
		if s == from {
			return true
		}
	}
	return false
}

package models

import (
	"time"

	"reservation-engine/internal/interval"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusApproved  ReservationStatus = "approved"
	StatusRejected  ReservationStatus = "rejected"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

type Reservation struct {
	ID          int64             `json:"id"`
	ResourceID  int64             `json:"resource_id"`
	RequesterID int64             `json:"requester_id"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Status      ReservationStatus `json:"status"` // pending, approved, rejected, cancelled, completed
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"`
}

func (r *Reservation) Interval() interval.Interval {
	return interval.Interval{Start: r.Start, End: r.End}
}

// Blocks reports whether the reservation occupies calendar space under the
// given set of blocking statuses.
func (r *Reservation) Blocks(blocking []ReservationStatus) bool {
	for _, s := range blocking {
		if r.Status == s {
			return true
		}
	}
	return false
}

type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ApprovalAction is an append-only audit record of an approver decision.
type ApprovalAction struct {
	ID            int64            `json:"id"`
	ReservationID int64            `json:"reservation_id"`
	ApproverID    int64            `json:"approver_id"`
	Action        ApprovalDecision `json:"action"`
	Comment       string           `json:"comment,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

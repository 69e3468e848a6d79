package models

import (
	"time"

	"reservation-engine/internal/interval"
)

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistConverted WaitlistStatus = "converted"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

type WaitlistEntry struct {
	ID                     int64          `json:"id"`
	ResourceID             int64          `json:"resource_id"`
	UserID                 int64          `json:"user_id"`
	DesiredStart           time.Time      `json:"desired_start"`
	DesiredEnd             time.Time      `json:"desired_end"`
	Status                 WaitlistStatus `json:"status"`
	ConvertedReservationID *int64         `json:"converted_reservation_id,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	NotifiedAt             *time.Time     `json:"notified_at,omitempty"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

func (e *WaitlistEntry) Interval() interval.Interval {
	return interval.Interval{Start: e.DesiredStart, End: e.DesiredEnd}
}

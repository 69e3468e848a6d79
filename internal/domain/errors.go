package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"reservation-engine/internal/interval"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreContention is returned by conditional updates whose expected
	// current status no longer matches the stored row.
	ErrStoreContention = errors.New("store contention")
	// ErrRateLimited is returned when a requester exceeds the request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error. The first message per field wins.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, ok := v.FieldErrors[field]; ok {
		return
	}
	v.FieldErrors[field] = message
}

// Err returns v as an error, or nil when nothing was recorded.
func (v *ValidationError) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

type SlotReason string

const (
	ReasonConflict     SlotReason = "conflict"
	ReasonBlackout     SlotReason = "blackout"
	ReasonOutsideHours SlotReason = "outside_hours"
)

// SlotUnavailableError reports that the requested interval cannot be booked.
type SlotUnavailableError struct {
	ResourceID int64
	Interval   interval.Interval
	Reason     SlotReason
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable on resource %d [%s, %s): %s",
		e.ResourceID, e.Interval.Start.Format("2006-01-02T15:04Z07:00"), e.Interval.End.Format("2006-01-02T15:04Z07:00"), e.Reason)
}

// InvalidTransitionError is returned for a lifecycle edge that does not exist
// from the current status. WaitlistEntryID is set instead of ReservationID for
// waitlist transitions.
type InvalidTransitionError struct {
	ReservationID   int64
	WaitlistEntryID int64
	From            string
	Event           string
}

func (e *InvalidTransitionError) Error() string {
	if e.WaitlistEntryID != 0 {
		return fmt.Sprintf("invalid transition for waitlist entry %d: cannot %s from %s", e.WaitlistEntryID, e.Event, e.From)
	}
	return fmt.Sprintf("invalid transition for reservation %d: cannot %s from %s", e.ReservationID, e.Event, e.From)
}

// AuthorizationError is returned when the actor lacks authority for an action.
type AuthorizationError struct {
	ActorID int64
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("principal %d is not allowed to %s", e.ActorID, e.Action)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsSlotUnavailable(err error) bool {
	var s *SlotUnavailableError
	return errors.As(err, &s)
}

func IsInvalidTransition(err error) bool {
	var t *InvalidTransitionError
	return errors.As(err, &t)
}

func IsUnauthorized(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}

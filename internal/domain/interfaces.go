package domain

import (
	"context"
	"time"

	"reservation-engine/internal/events"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ResourceLookup interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context) ([]*models.Resource, error)
}

type IdentityLookup interface {
	GetPrincipal(ctx context.Context, id int64) (*models.Principal, error)
}

type GroupDirectory interface {
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}

type ReservationStore interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	// InsertReservation re-checks overlap against reservations in the blocking
	// statuses, padded by buffer, inside the insert transaction and returns
	// *SlotUnavailableError when the interval is taken.
	InsertReservation(ctx context.Context, r *models.Reservation, blocking []models.ReservationStatus, buffer time.Duration) error
	// UpdateReservationStatus moves id from -> to and fails with
	// ErrStoreContention when the stored status is not from.
	UpdateReservationStatus(ctx context.Context, id int64, from, to models.ReservationStatus, at time.Time) error
	ListBlocking(ctx context.Context, resourceID int64, window interval.Interval, statuses []models.ReservationStatus) ([]*models.Reservation, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error)
	ListByRequester(ctx context.Context, requesterID int64) ([]*models.Reservation, error)
	ListByStatus(ctx context.Context, status models.ReservationStatus) ([]*models.Reservation, error)
}

type ApprovalLog interface {
	AppendApprovalAction(ctx context.Context, action *models.ApprovalAction) error
	ListApprovalActions(ctx context.Context, reservationID int64) ([]*models.ApprovalAction, error)
}

type WaitlistStore interface {
	InsertWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error)
	// ListWaiting returns waiting entries of a resource ordered by created_at, then id.
	ListWaiting(ctx context.Context, resourceID int64) ([]*models.WaitlistEntry, error)
	ListNotifiedBefore(ctx context.Context, cutoff time.Time) ([]*models.WaitlistEntry, error)
	ListWaitlistByUser(ctx context.Context, userID int64) ([]*models.WaitlistEntry, error)
	// UpdateWaitlistStatus moves id from -> to. Moving to notified stamps
	// notified_at, moving back to waiting clears it. convertedID is stored
	// when non-nil.
	UpdateWaitlistStatus(ctx context.Context, id int64, from, to models.WaitlistStatus, at time.Time, convertedID *int64) error
}

// NotificationSink receives lifecycle events. Implementations must not
// assume delivery is retried by the caller.
type NotificationSink interface {
	Publish(ctx context.Context, event events.LifecycleEvent) error
}

// ResourceLocker serializes read-then-write sequences on one resource.
type ResourceLocker interface {
	Lock(ctx context.Context, resourceID int64) (unlock func(), err error)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

package models

import "time"

const (
	// DefaultSweepInterval how often approved reservations are checked for completion
	DefaultSweepInterval = time.Minute

	// DefaultWaitlistGrace how long a notified waitlist entry may hold its offer
	DefaultWaitlistGrace = 30 * time.Minute

	// DefaultContentionRetries retries of a conditional store update before giving up
	DefaultContentionRetries = 3

	// DefaultLockTimeout upper bound for acquiring a per-resource lock
	DefaultLockTimeout = 5 * time.Second

	// DefaultLockTTL expiry of a distributed lock held by a crashed process
	DefaultLockTTL = 15 * time.Second

	// NotificationQueueSize size of the asynchronous notification queue
	NotificationQueueSize = 1000

	// DefaultNotificationWorkers number of goroutines delivering notifications
	DefaultNotificationWorkers = 2

	// DefaultDeliveryTimeout per-sink delivery deadline
	DefaultDeliveryTimeout = 5 * time.Second

	// DefaultSweepBatch max reservations completed per sweep query
	DefaultSweepBatch = 500

	// DefaultSlotDuration slot size used by AvailableSlots when none is given
	DefaultSlotDuration = time.Hour

	// DefaultRequestsPerMinute per-requester reservation attempts
	DefaultRequestsPerMinute = 20

	// DefaultRequestBurst burst for the per-requester limiter
	DefaultRequestBurst = 5

	// DefaultExportDays export window of the availability workbook
	DefaultExportDays = 14
)

// ConflictPolicy selects which reservation statuses occupy calendar space.
type ConflictPolicy string

const (
	PolicyPendingAndApproved ConflictPolicy = "pending_and_approved"
	PolicyApprovedOnly       ConflictPolicy = "approved_only"
)

// BlockingStatuses returns the statuses that block other requests under p.
func (p ConflictPolicy) BlockingStatuses() []ReservationStatus {
	if p == PolicyApprovedOnly {
		return []ReservationStatus{StatusApproved}
	}
	return []ReservationStatus{StatusPending, StatusApproved}
}

func (p ConflictPolicy) Valid() bool {
	return p == PolicyPendingAndApproved || p == PolicyApprovedOnly
}

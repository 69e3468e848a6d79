package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservation_engine"

var (
	once sync.Once

	reservationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_requests_total",
			Help:      "Reservation requests by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by resulting status.",
		},
		[]string{"status"},
	)

	contentionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_contention_retries_total",
			Help:      "Conditional store updates retried after contention.",
		},
	)

	waitlistEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_events_total",
			Help:      "Waitlist entry transitions by kind.",
		},
		[]string{"event"},
	)

	sweepCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_completed_total",
			Help:      "Reservations completed by the sweeper.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)

	notificationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Events waiting in the notification queue.",
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_lock_wait_seconds",
			Help:      "Time spent acquiring per-resource locks.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationRequests,
			transitions,
			contentionRetries,
			waitlistEvents,
			sweepCompleted,
			notifications,
			notificationQueueDepth,
			lockWait,
		)
	})
}

// IncRequest counts a RequestReservation outcome: approved, pending,
// unavailable, invalid, rate_limited or error.
func IncRequest(outcome string) {
	reservationRequests.WithLabelValues(outcome).Inc()
}

func IncTransition(status string) {
	transitions.WithLabelValues(status).Inc()
}

func IncContentionRetry() {
	contentionRetries.Inc()
}

func IncWaitlist(event string) {
	waitlistEvents.WithLabelValues(event).Inc()
}

func AddSweepCompleted(n int) {
	sweepCompleted.Add(float64(n))
}

// IncNotification counts a delivery attempt; result is delivered, failed or dropped.
func IncNotification(sink, result string) {
	notifications.WithLabelValues(sink, result).Inc()
}

func SetNotificationQueueDepth(n int) {
	notificationQueueDepth.Set(float64(n))
}

func ObserveLockWait(seconds float64) {
	lockWait.Observe(seconds)
}

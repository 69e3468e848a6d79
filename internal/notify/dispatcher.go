// Package notify delivers lifecycle events to external sinks without
// blocking reservation decisions.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"reservation-engine/internal/events"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Deliverer pushes one event to one external channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, event events.LifecycleEvent) error
}

type DispatcherConfig struct {
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
	// DeadLetter receives events a deliverer failed on, when set.
	DeadLetter    *redis.Client
	DeadLetterKey string
}

// Dispatcher is a bounded in-memory queue drained by a fixed worker pool.
// Publish never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	cfg        DispatcherConfig
	deliverers []Deliverer
	queue      chan events.LifecycleEvent
	logger     *zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, logger *zerolog.Logger, deliverers ...Deliverer) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = models.NotificationQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = models.DefaultNotificationWorkers
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = models.DefaultDeliveryTimeout
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = "notifications:deadletter"
	}
	return &Dispatcher{
		cfg:        cfg,
		deliverers: deliverers,
		queue:      make(chan events.LifecycleEvent, cfg.QueueSize),
		logger:     logger,
	}
}

// Publish enqueues event for asynchronous delivery.
func (d *Dispatcher) Publish(_ context.Context, event events.LifecycleEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		metrics.SetNotificationQueueDepth(len(d.queue))
		return nil
	default:
		metrics.IncNotification("queue", "dropped")
		d.logger.Warn().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Int64("reservation_id", event.ReservationID).
			Msg("Notification queue full, event dropped")
		return ErrQueueFull
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for event := range d.queue {
				metrics.SetNotificationQueueDepth(len(d.queue))
				d.deliver(event)
			}
		}()
	}
	d.logger.Info().Int("workers", d.cfg.Workers).Int("deliverers", len(d.deliverers)).Msg("Notification dispatcher started")
}

// Stop rejects new events, drains the queue and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info().Msg("Notification dispatcher stopped")
}

func (d *Dispatcher) deliver(event events.LifecycleEvent) {
	for _, deliverer := range d.deliverers {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliveryTimeout)
		err := deliverer.Deliver(ctx, event)
		cancel()

		if err != nil {
			metrics.IncNotification(deliverer.Name(), "failed")
			d.logger.Warn().Err(err).
				Str("sink", deliverer.Name()).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Msg("Notification delivery failed")
			d.pushDeadLetter(deliverer.Name(), event)
			continue
		}
		metrics.IncNotification(deliverer.Name(), "delivered")
	}
}

type deadLetter struct {
	Sink   string                `json:"sink"`
	Event  events.LifecycleEvent `json:"event"`
	Failed time.Time             `json:"failed_at"`
}

func (d *Dispatcher) pushDeadLetter(sink string, event events.LifecycleEvent) {
	if d.cfg.DeadLetter == nil {
		return
	}
	data, err := json.Marshal(deadLetter{Sink: sink, Event: event, Failed: time.Now()})
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to encode dead letter")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliveryTimeout)
	defer cancel()
	if err := d.cfg.DeadLetter.LPush(ctx, d.cfg.DeadLetterKey, data).Err(); err != nil {
		d.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to push dead letter")
	}
}

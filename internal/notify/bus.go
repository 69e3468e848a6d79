package notify

import (
	"context"

	"reservation-engine/internal/events"

	"github.com/rs/zerolog"
)

// BusDeliverer republishes lifecycle events on the in-process event bus.
type BusDeliverer struct {
	bus *events.EventBus
}

func NewBusDeliverer(bus *events.EventBus) *BusDeliverer {
	return &BusDeliverer{bus: bus}
}

func (b *BusDeliverer) Name() string { return "bus" }

func (b *BusDeliverer) Deliver(_ context.Context, event events.LifecycleEvent) error {
	return b.bus.PublishJSON(event.Type, event)
}

// LogDeliverer writes every event to the log. Used when no external sink is configured.
type LogDeliverer struct {
	logger *zerolog.Logger
}

func NewLogDeliverer(logger *zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (l *LogDeliverer) Name() string { return "log" }

func (l *LogDeliverer) Deliver(_ context.Context, event events.LifecycleEvent) error {
	l.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Int64("reservation_id", event.ReservationID).
		Int64("waitlist_entry_id", event.WaitlistEntryID).
		Int64("resource_id", event.ResourceID).
		Int64("user_id", event.UserID).
		Int64("actor_id", event.ActorID).
		Str("status", event.Status).
		Msg("Lifecycle event")
	return nil
}

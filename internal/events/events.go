package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationRequested = "reservation.requested"
	EventReservationApproved  = "reservation.approved"
	EventReservationRejected  = "reservation.rejected"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationCompleted = "reservation.completed"
	EventWaitlistSlotOpened   = "waitlist.slot_opened"
)

// LifecycleEvent describes one reservation or waitlist transition for
// notification consumers.
type LifecycleEvent struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	ReservationID   int64     `json:"reservation_id,omitempty"`
	WaitlistEntryID int64     `json:"waitlist_entry_id,omitempty"`
	ResourceID      int64     `json:"resource_id"`
	UserID          int64     `json:"user_id"`
	ActorID         int64     `json:"actor_id,omitempty"`
	Status          string    `json:"status"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Comment         string    `json:"comment,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewLifecycleEvent stamps a fresh event id.
func NewLifecycleEvent(eventType string, occurredAt time.Time) LifecycleEvent {
	return LifecycleEvent{ID: uuid.NewString(), Type: eventType, OccurredAt: occurredAt}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type. The first handler error is
// returned after all handlers have run.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var firstErr error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&ev)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

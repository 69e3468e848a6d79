package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reservation-engine/internal/config"
	"reservation-engine/internal/events"
	"reservation-engine/internal/worker"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes lifecycle events to a topic exchange, routed by
// event type (reservation.approved, waitlist.slot_opened, ...).
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	retry    worker.RetryPolicy
	logger   *zerolog.Logger
	mu       sync.Mutex
}

func DialAMQP(cfg config.AMQPConfig, logger *zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	retry := worker.RetryPolicy{MaxRetries: cfg.MaxRetries, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2}
	p, err := newAMQPPublisher(ch, cfg.Exchange, retry, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, retry worker.RetryPolicy, logger *zerolog.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, retry: retry, logger: logger}, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Deliver(ctx context.Context, event events.LifecycleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}

	return p.retry.Do(ctx, nil, func(attempt int) error {
		if attempt > 0 {
			p.logger.Debug().Int("attempt", attempt).Str("event_id", event.ID).Msg("Retrying amqp publish")
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

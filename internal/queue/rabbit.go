package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeEvents is the durable topic exchange every event is published to,
// routed by event type.
const ExchangeEvents = "storefront.events"

// RabbitPublisher publishes envelopes to RabbitMQ. The connection is
// opened lazily and re-dialed after a failure, so a broker outage never
// blocks startup.
type RabbitPublisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url string, log *zap.Logger) *RabbitPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitPublisher{url: url, log: log}
}

// channel returns an open channel, dialing if needed. mu must be held.
func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// Durable so messages survive broker restarts.
	if err := ch.ExchangeDeclare(ExchangeEvents, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Publish sends env as a persistent message with the event type as
// routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    env.EventID,
		Timestamp:    env.OccurredAt,
		Type:         env.EventType,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, ExchangeEvents, env.EventType, false, false, pub); err != nil {
		p.closeLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Publisher delivers envelopes to the event bus. Publish failures never
// undo the database change that produced the event; callers log and count
// them.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Nop drops every event. It is used when EVENT_BUS=none.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// Bus settings used by New.
type BusConfig struct {
	Kind         string // rabbitmq, kafka or none
	RabbitURL    string
	KafkaBrokers []string
}

// New builds the publisher selected by cfg.Kind.
func New(cfg BusConfig, log *zap.Logger) (Publisher, error) {
	switch cfg.Kind {
	case "", "none":
		return Nop{}, nil
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitURL, log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, TopicEvents), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.Kind)
	}
}

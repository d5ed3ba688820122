// Package queue defines the domain events the API emits and the publishers
// and consumers that move them over a message broker.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/model"
)

// Event types double as AMQP routing keys and Kafka message headers.
const (
	EventOrderCreated       = "order.created"
	EventOrderStockRejected = "order.stock_rejected"
	EventSessionCompromised = "session.compromised"
)

// Envelope wraps every event with the metadata consumers need to dedupe
// and route it without decoding the payload.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderCreatedPayload is published after a checkout commits an order.
type OrderCreatedPayload struct {
	OrderID        string            `json:"order_id"`
	UserID         uint64            `json:"user_id"`
	AddressID      uint64            `json:"address_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Lines          []model.OrderLine `json:"lines"`
	TotalCents     int64             `json:"total_cents"`
}

// OrderStockRejectedPayload is published when a checkout is rejected for
// insufficient stock.
type OrderStockRejectedPayload struct {
	OrderID   string           `json:"order_id"`
	UserID    uint64           `json:"user_id"`
	Shortages []model.Shortage `json:"shortages"`
}

// SessionCompromisedPayload is published when a rotated refresh token is
// presented again and the user's sessions are revoked.
type SessionCompromisedPayload struct {
	UserID   uint64 `json:"user_id"`
	FamilyID string `json:"family_id"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(producer, eventType, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

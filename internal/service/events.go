package service

import (
	"context"
	"time"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/queue"
)

const eventProducer = "storefront-api"

// emitter publishes domain events after the state change they describe has
// been committed. A publish failure is logged and counted, never returned.
type emitter struct {
	pub     queue.Publisher
	metrics *metrics.Collector
}

func (e emitter) emit(ctx context.Context, eventType, correlationID string, payload any) {
	if e.pub == nil {
		return
	}
	log := logger.From(ctx)
	env, err := queue.NewEnvelope(eventProducer, eventType, correlationID, payload)
	if err != nil {
		log.Error("event encode failed", logger.Op(eventType), logger.Err(err))
		e.metrics.EventFailed(eventType)
		return
	}
	// The request may already be finished; give the broker its own budget.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := e.pub.Publish(pctx, env); err != nil {
		log.Warn("event publish failed", logger.Op(eventType), logger.Err(err))
		e.metrics.EventFailed(eventType)
	}
}

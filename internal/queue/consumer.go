package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const orderLogQueue = "orders.log"

// OrderLogConsumer listens to order.* events and appends one human-readable
// line per event to a log file.
type OrderLogConsumer struct {
	URL  string
	Path string
	Log  *zap.Logger
}

// Run connects to RabbitMQ, binds the durable orders.log queue to the
// events exchange and consumes until ctx is cancelled. Broker failures are
// retried with exponential backoff capped at 30s; a message that cannot be
// handled is rejected without requeue so it cannot loop.
func (c *OrderLogConsumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("order-log consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("order-log consumer: loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *OrderLogConsumer) consume(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("order-log consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(ExchangeEvents, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(orderLogQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(orderLogQueue, "order.*", ExchangeEvents, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(orderLogQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := AppendOrderLog(c.Path, d.Body); err != nil {
				log.Error("order-log consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// AppendOrderLog decodes an event envelope and appends its summary line to
// the file at path, creating parent directories as needed.
func AppendOrderLog(path string, body []byte) error {
	line, err := formatOrderLine(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatOrderLine(body []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	ts := env.OccurredAt.UTC().Format(time.RFC3339)

	switch env.EventType {
	case EventOrderCreated:
		var p OrderCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
		items := make([]string, 0, len(p.Lines))
		for _, l := range p.Lines {
			items = append(items, strconv.FormatUint(l.ProductID, 10)+"x"+strconv.Itoa(l.Quantity))
		}
		return fmt.Sprintf("[%s] Order created | order_id=%s | user_id=%d | address_id=%d | total=%d cents | items=[%s]\n",
			ts, p.OrderID, p.UserID, p.AddressID, p.TotalCents, strings.Join(items, ",")), nil
	case EventOrderStockRejected:
		var p OrderStockRejectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
		short := make([]string, 0, len(p.Shortages))
		for _, s := range p.Shortages {
			short = append(short, fmt.Sprintf("%d:%d/%d", s.ProductID, s.Available, s.Requested))
		}
		return fmt.Sprintf("[%s] Order stock rejected | order_id=%s | user_id=%d | shortages=[%s]\n",
			ts, p.OrderID, p.UserID, strings.Join(short, ",")), nil
	default:
		return "", fmt.Errorf("unexpected event type %q", env.EventType)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

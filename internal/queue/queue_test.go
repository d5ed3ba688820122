package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/model"
)

func TestAppendOrderLogCreated(t *testing.T) {
	env, err := NewEnvelope("test", EventOrderCreated, "o-1", OrderCreatedPayload{
		OrderID: "o-1", UserID: 4, AddressID: 9, TotalCents: 3600,
		Lines: []model.OrderLine{{ProductID: 1, Quantity: 3, UnitPriceCents: 1200}},
	})
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "orders.log")
	require.NoError(t, AppendOrderLog(path, body))
	require.NoError(t, AppendOrderLog(path, body))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "Order created | order_id=o-1 | user_id=4 | address_id=9 | total=3600 cents | items=[1x3]")
	require.Equal(t, 2, countLines(b))
}

func TestAppendOrderLogRejected(t *testing.T) {
	env, err := NewEnvelope("test", EventOrderStockRejected, "o-2", OrderStockRejectedPayload{
		OrderID: "o-2", UserID: 5, Shortages: []model.Shortage{{ProductID: 7, Requested: 2, Available: 1}},
	})
	require.NoError(t, err)
	body, _ := json.Marshal(env)

	path := filepath.Join(t.TempDir(), "orders.log")
	require.NoError(t, AppendOrderLog(path, body))
	b, _ := os.ReadFile(path)
	require.Contains(t, string(b), "shortages=[7:1/2]")
}

func TestAppendOrderLogRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.log")
	require.Error(t, AppendOrderLog(path, []byte("{not json")))

	env, _ := NewEnvelope("test", EventSessionCompromised, "", SessionCompromisedPayload{UserID: 1})
	body, _ := json.Marshal(env)
	require.Error(t, AppendOrderLog(path, body))
}

func TestNewSelectsPublisher(t *testing.T) {
	p, err := New(BusConfig{Kind: "none"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), Envelope{}))

	k, err := New(BusConfig{Kind: "kafka", KafkaBrokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	require.IsType(t, &KafkaPublisher{}, k)
	require.NoError(t, k.Close())

	_, err = New(BusConfig{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

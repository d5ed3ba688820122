package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/cache"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository/memory"
)

// recorder is an in-memory queue.Publisher.
type recorder struct {
	mu     sync.Mutex
	events []queue.Envelope
}

func (r *recorder) Publish(_ context.Context, env queue.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

type env struct {
	db      *memory.DB
	events  *recorder
	metrics *metrics.Collector
	tokens  *TokenService
	carts   *CartService
	orders  *OrderService
	search  *SearchService
	address *AddressService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := memory.New()
	rec := &recorder{}
	m := metrics.NewCollector(prometheus.NewRegistry())
	e := &env{db: db, events: rec, metrics: m}
	e.tokens = NewTokenService(db.Users(), db.Tokens(), TokenConfig{
		Secret:     "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: 4,
	}, rec, m)
	e.carts = NewCartService(db.Carts(), db.Products(), PolicyClamp, m)
	e.orders = e.newOrderService()
	e.search = NewSearchService(db.Products(), 2)
	e.address = NewAddressService(db.Addresses())
	return e
}

// newOrderService returns a second pipeline over the same store, as a
// separate API instance would have.
func (e *env) newOrderService() *OrderService {
	return NewOrderService(e.db.Orders(), e.db.Addresses(), cache.NewMemory(time.Hour),
		e.events, e.metrics, OrderConfig{CheckoutTimeout: 5 * time.Second})
}

func (e *env) user(t *testing.T, email string) model.User {
	t.Helper()
	u, err := e.tokens.Register(context.Background(), email, "password123")
	require.NoError(t, err)
	return u
}

func (e *env) product(t *testing.T, name string, priceCents int64, stock int) model.Product {
	t.Helper()
	p := model.Product{Name: name, PriceCents: priceCents, Stock: stock, IsActive: true}
	require.NoError(t, e.db.Products().Create(context.Background(), &p))
	return p
}

func (e *env) addressFor(t *testing.T, userID uint64) model.Address {
	t.Helper()
	a, err := e.address.Create(context.Background(), model.Address{UserID: userID, Line1: "1 Main St", City: "Springfield", Country: "US"})
	require.NoError(t, err)
	return a
}

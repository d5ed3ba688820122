package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/app"
	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/queue"
)

// newAPI runs the real API over the in-memory store. The demo catalog
// holds four products with ids 1..4; product 4 has one unit in stock.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.Config{
		StoreDriver: config.DriverMemory,
		JWTSecret:   "sdk-secret",
		AccessTTL:   time.Minute,
		RefreshTTL:  time.Hour,
		BcryptCost:  4,
		CartPolicy:  "clamp",
		PageSize:    2,
		CheckoutTTL: 5 * time.Second,
	}
	st, err := app.OpenStores(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	m := metrics.NewCollector(prometheus.NewRegistry())
	svc := app.NewServices(cfg, st, nil, queue.Nop{}, m)
	srv := httptest.NewServer(app.NewServer(ctx, st, svc, app.ServerDeps{Metrics: m}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShoppingFlow(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t).URL)

	_, err := c.Cart(ctx)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	u, err := c.Register(ctx, "sdk@example.com", "password123")
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	addr, err := c.CreateAddress(ctx, Address{Line1: "1 Main St", City: "Springfield", Country: "US"})
	require.NoError(t, err)

	state := NewCartState(Cart{})
	view, err := c.UpdateCart(ctx, state, CartOp{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	require.EqualValues(t, 2400, view.TotalCents)

	view, err = c.UpdateCart(ctx, state, CartOp{ProductID: 4, Quantity: 3, UnitPriceCents: 3900})
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	require.Equal(t, 1, view.Lines[1].Quantity)
	require.Zero(t, state.Pending())

	key := NewIdempotencyKey()
	order, err := c.Checkout(ctx, addr.ID, key)
	require.NoError(t, err)
	require.Equal(t, "created", order.Status)
	require.EqualValues(t, 2400+3900, order.TotalCents)

	again, err := c.Checkout(ctx, addr.ID, key)
	require.NoError(t, err)
	require.Equal(t, order.ID, again.ID)

	cart, err := c.Cart(ctx)
	require.NoError(t, err)
	require.Empty(t, cart.Lines)

	orders, err := c.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestCheckoutRejectionIsItemized(t *testing.T) {
	ctx := context.Background()
	srv := newAPI(t)
	first, second := New(srv.URL), New(srv.URL)

	for _, c := range []*Client{first, second} {
		_, err := c.Register(ctx, NewIdempotencyKey()[:8]+"@example.com", "password123")
		require.NoError(t, err)
		_, err = c.SetCartItem(ctx, 4, 1)
		require.NoError(t, err)
	}
	a1, err := first.CreateAddress(ctx, Address{Line1: "a", City: "b", Country: "c"})
	require.NoError(t, err)
	a2, err := second.CreateAddress(ctx, Address{Line1: "a", City: "b", Country: "c"})
	require.NoError(t, err)

	_, err = first.Checkout(ctx, a1.ID, "k")
	require.NoError(t, err)

	_, err = second.Checkout(ctx, a2.ID, "k")
	shortages, ok := IsInsufficientStock(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, []Shortage{{ProductID: 4, Requested: 1, Available: 0}}, shortages)

	var ae *APIError
	require.ErrorAs(t, err, &ae)
	require.NotNil(t, ae.Order)
	require.Equal(t, "stock_rejected", ae.Order.Status)
}

func TestLogoutClearsStore(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t).URL)
	_, err := c.Register(ctx, "bye@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	_, ok := c.Tokens().Get()
	require.False(t, ok)
}

// fakeAuthAPI accepts access token "A2" only and rotates A1 -> A2 on
// refresh, optionally after a delay.
type fakeAuthAPI struct {
	refreshes   atomic.Int32
	refreshCode string
	delay       time.Duration
}

func (f *fakeAuthAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/auth/refresh":
		f.refreshes.Add(1)
		time.Sleep(f.delay)
		if f.refreshCode != "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": true, "code": f.refreshCode, "action": "relogin"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": Tokens{AccessToken: "A2", RefreshToken: "R2"}})
	case "/v1/cart":
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": true, "code": "expired_access", "action": "refresh"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": Cart{TotalCents: 42}})
	default:
		http.NotFound(w, r)
	}
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	api := &fakeAuthAPI{delay: 50 * time.Millisecond}
	srv := httptest.NewServer(api)
	defer srv.Close()
	c := New(srv.URL)
	c.Tokens().Set(Tokens{AccessToken: "A1", RefreshToken: "R1"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := c.Cart(context.Background())
			assert.NoError(t, err)
			assert.EqualValues(t, 42, cart.TotalCents)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, api.refreshes.Load())
	tok, _ := c.Tokens().Get()
	require.Equal(t, "R2", tok.RefreshToken)
}

func TestCompromisedSessionClearsStore(t *testing.T) {
	for _, code := range []string{CodeSessionCompromised, CodeInvalidSession} {
		api := &fakeAuthAPI{refreshCode: code}
		srv := httptest.NewServer(api)
		c := New(srv.URL)
		c.Tokens().Set(Tokens{AccessToken: "A1", RefreshToken: "R1"})

		_, err := c.Cart(context.Background())
		require.ErrorIs(t, err, ErrSessionEnded)
		require.Equal(t, code, CodeOf(err))
		_, ok := c.Tokens().Get()
		require.False(t, ok)
		srv.Close()
	}
}

// flakyAPI drops the connection of the first request it sees.
func flakyAPI(t *testing.T, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[],"page":1,"totalPage":0}`))
	}))
}

func TestReadsRetryOnceOnTransportError(t *testing.T) {
	var hits atomic.Int32
	srv := flakyAPI(t, &hits)
	defer srv.Close()

	res, err := New(srv.URL).Search(context.Background(), "tea", 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.Page)
	require.EqualValues(t, 2, hits.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := flakyAPI(t, &hits)
	defer srv.Close()
	c := New(srv.URL)
	c.Tokens().Set(Tokens{AccessToken: "A1"})

	_, err := c.Checkout(context.Background(), 1, "k")
	require.Error(t, err)
	var ae *APIError
	require.False(t, errors.As(err, &ae))
	require.EqualValues(t, 1, hits.Load())
}

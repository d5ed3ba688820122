package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
)

func TestCheckoutCreatesOrderAndDecrementsStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o1@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 2500, 5)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 2)
	require.NoError(t, err)

	res, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, model.OrderCreated, res.Order.Status)
	require.EqualValues(t, 5000, res.Order.TotalCents)

	got, _ := e.db.Products().Get(ctx, p.ID)
	require.Equal(t, 3, got.Stock)
	cart, _ := e.carts.GetCart(ctx, u.ID)
	require.Empty(t, cart.Lines)
	require.Contains(t, e.events.types(), queue.EventOrderCreated)
}

func TestCheckoutSnapshotsPriceAtCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o2@example.com")
	a := e.addressFor(t, u.ID)
	x := e.product(t, "X", 10, 10)
	upd, err := e.carts.AddOrUpdate(ctx, u.ID, x.ID, 3)
	require.NoError(t, err)
	require.EqualValues(t, 30, upd.Cart.TotalCents)

	x.PriceCents = 12
	require.NoError(t, e.db.Products().Update(ctx, x))

	res, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "price"})
	require.NoError(t, err)
	require.Len(t, res.Order.Lines, 1)
	require.EqualValues(t, 12, res.Order.Lines[0].UnitPriceCents)
	require.EqualValues(t, 36, res.Order.TotalCents)

	// Later price changes do not touch the stored snapshot.
	x.PriceCents = 99
	require.NoError(t, e.db.Products().Update(ctx, x))
	stored, err := e.orders.GetOrder(ctx, u.ID, res.Order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 12, stored.Lines[0].UnitPriceCents)
	require.EqualValues(t, 36, stored.TotalCents)
}

func TestCheckoutReplayReturnsSameOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o3@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 5)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 1)
	require.NoError(t, err)

	first, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "same"})
	require.NoError(t, err)

	// A refilled cart must not change the outcome of a replayed key.
	_, err = e.carts.AddOrUpdate(ctx, u.ID, p.ID, 2)
	require.NoError(t, err)
	again, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "same"})
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, first.Order.ID, again.Order.ID)

	got, _ := e.db.Products().Get(ctx, p.ID)
	require.Equal(t, 4, got.Stock)
}

func TestConcurrentSameKeyCreatesOneOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o4@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 100)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 3)
	require.NoError(t, err)

	// Two pipelines over one store stand in for two API instances, so both
	// the in-process coalescing and the unique key are exercised.
	pipelines := []*OrderService{e.orders, e.newOrderService()}

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := pipelines[i%2].Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "dup"})
			if assert.NoError(t, err) {
				ids[i] = res.Order.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	orders, err := e.orders.ListOrders(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	got, _ := e.db.Products().Get(ctx, p.ID)
	require.Equal(t, 97, got.Stock)
}

func TestLastUnitGoesToExactlyOneShopper(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "Last", 100, 1)

	type shopper struct {
		user model.User
		addr model.Address
	}
	shoppers := make([]shopper, 2)
	for i := range shoppers {
		u := e.user(t, []string{"s1@example.com", "s2@example.com"}[i])
		shoppers[i] = shopper{user: u, addr: e.addressFor(t, u.ID)}
		_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 1)
		require.NoError(t, err)
	}

	errs := make([]error, len(shoppers))
	var wg sync.WaitGroup
	for i, s := range shoppers {
		wg.Add(1)
		go func(i int, s shopper) {
			defer wg.Done()
			_, errs[i] = e.orders.Checkout(ctx, CheckoutRequest{UserID: s.user.ID, AddressID: s.addr.ID, IdempotencyKey: "buy"})
		}(i, s)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			rejected++
			require.Equal(t, []model.Shortage{{ProductID: p.ID, Requested: 1, Available: 0}}, ShortagesOf(err))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)
	got, _ := e.db.Products().Get(ctx, p.ID)
	require.Equal(t, 0, got.Stock)
}

func TestStockRejectionIsPersistedAndReplayed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o5@example.com")
	a := e.addressFor(t, u.ID)
	ok := e.product(t, "Plenty", 100, 10)
	short := e.product(t, "Scarce", 100, 5)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, ok.ID, 2)
	require.NoError(t, err)
	_, err = e.carts.AddOrUpdate(ctx, u.ID, short.ID, 4)
	require.NoError(t, err)

	// Stock drops after the line was added.
	short.Stock = 1
	require.NoError(t, e.db.Products().Update(ctx, short))

	res, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "r"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, model.OrderStockRejected, res.Order.Status)
	require.Equal(t, []model.Shortage{{ProductID: short.ID, Requested: 4, Available: 1}}, ShortagesOf(err))

	// No partial order: nothing decremented, cart intact.
	gotOK, _ := e.db.Products().Get(ctx, ok.ID)
	require.Equal(t, 10, gotOK.Stock)
	cart, _ := e.carts.GetCart(ctx, u.ID)
	require.Len(t, cart.Lines, 2)

	// Restocking does not change the outcome stored under the key.
	short.Stock = 100
	require.NoError(t, e.db.Products().Update(ctx, short))
	again, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "r"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.True(t, again.Replayed)
	require.Equal(t, res.Order.ID, again.Order.ID)

	// A new key re-checks stock.
	fresh, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "r2"})
	require.NoError(t, err)
	require.Equal(t, model.OrderCreated, fresh.Order.Status)
	require.Contains(t, e.events.types(), queue.EventOrderStockRejected)
}

func TestCheckoutValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o6@example.com")
	a := e.addressFor(t, u.ID)
	other := e.user(t, "o7@example.com")
	foreign := e.addressFor(t, other.ID)

	_, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID})
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "empty"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: foreign.ID, IdempotencyKey: "x"})
	require.ErrorIs(t, err, ErrNotFound)
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, "choose_address", se.Action)
}

// failingOrders wraps an OrderStore and fails the transaction after the
// stock decrement.
type failingOrders struct {
	OrderStore
}

type failingTx struct{ repository.CheckoutTx }

func (failingTx) ClearCart(context.Context, uint64, []uint64) error { return errors.New("disk full") }

func (f failingOrders) Checkout(ctx context.Context, fn repository.CheckoutFunc) error {
	return f.OrderStore.Checkout(ctx, func(ctx context.Context, tx repository.CheckoutTx) error {
		return fn(ctx, failingTx{tx})
	})
}

func TestCheckoutFailureLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o8@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 5)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 2)
	require.NoError(t, err)

	svc := NewOrderService(failingOrders{e.db.Orders()}, e.db.Addresses(), e.orders.shortcut,
		e.events, nil, OrderConfig{})
	_, err = svc.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "f"})
	require.Equal(t, KindInternal, KindOf(err))

	got, _ := e.db.Products().Get(ctx, p.ID)
	require.Equal(t, 5, got.Stock)
	_, err = e.db.Orders().GetByKey(ctx, u.ID, "f")
	require.ErrorIs(t, err, repository.ErrNotFound)

	// The same key succeeds once the fault is gone.
	res, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "f"})
	require.NoError(t, err)
	require.Equal(t, model.OrderCreated, res.Order.Status)
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o9@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 5)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 1)
	require.NoError(t, err)
	res, err := e.orders.Checkout(ctx, CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "mine"})
	require.NoError(t, err)

	other := e.user(t, "o10@example.com")
	_, err = e.orders.GetOrder(ctx, other.ID, res.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)
	list, err := e.orders.ListOrders(ctx, other.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

// gatedOrders holds every checkout transaction until release is closed.
type gatedOrders struct {
	OrderStore
	entered chan struct{}
	release chan struct{}
}

func newGatedOrders(inner OrderStore) *gatedOrders {
	return &gatedOrders{OrderStore: inner, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedOrders) Checkout(ctx context.Context, fn repository.CheckoutFunc) error {
	g.entered <- struct{}{}
	<-g.release
	return g.OrderStore.Checkout(ctx, fn)
}

func TestCoalescedCheckoutOnlyCreatorIsNotReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "o10@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 10)
	_, err := e.carts.AddOrUpdate(ctx, u.ID, p.ID, 1)
	require.NoError(t, err)

	gate := newGatedOrders(e.db.Orders())
	svc := NewOrderService(gate, e.db.Addresses(), e.orders.shortcut, e.events, nil, OrderConfig{})
	req := CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "shared"}

	results := make([]CheckoutResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := svc.Checkout(ctx, req)
		assert.NoError(t, err)
		results[0] = res
	}()
	<-gate.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := svc.Checkout(ctx, req)
		assert.NoError(t, err)
		results[1] = res
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	require.Equal(t, results[0].Order.ID, results[1].Order.ID)
	require.False(t, results[0].Replayed)
	require.True(t, results[1].Replayed)
}

func TestCanceledCallerGetsRetryableError(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "o11@example.com")
	a := e.addressFor(t, u.ID)
	p := e.product(t, "Lamp", 100, 10)
	_, err := e.carts.AddOrUpdate(context.Background(), u.ID, p.ID, 2)
	require.NoError(t, err)

	gate := newGatedOrders(e.db.Orders())
	svc := NewOrderService(gate, e.db.Addresses(), e.orders.shortcut, e.events, nil, OrderConfig{})
	req := CheckoutRequest{UserID: u.ID, AddressID: a.ID, IdempotencyKey: "slow"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gate.entered
		cancel()
	}()
	_, err = svc.Checkout(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindInternal, se.Kind)
	require.Equal(t, "retry", se.Action)

	// The checkout keeps running; the same key then reads its outcome.
	close(gate.release)
	res, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Replayed)
	require.Equal(t, model.OrderCreated, res.Order.Status)
	got, _ := e.db.Products().Get(context.Background(), p.ID)
	require.Equal(t, 8, got.Stock)
}

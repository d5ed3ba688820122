package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/storefront/internal/cache"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
)

const maxIdempotencyKeyLen = 128

// Checkout stages, logged with every transition.
const (
	stageReceived     = "received"
	stageStockChecked = "stock_checked"
	stageCommitted    = "committed"
	stageRejected     = "rejected"
)

// OrderConfig tunes the checkout pipeline.
type OrderConfig struct {
	// CheckoutTimeout bounds a checkout once it has started; the caller's
	// context does not cancel it.
	CheckoutTimeout time.Duration
	// ShortcutTTL is how long the key -> order id mapping stays cached.
	ShortcutTTL time.Duration
}

// CheckoutRequest is one checkout attempt.
type CheckoutRequest struct {
	UserID         uint64
	AddressID      uint64
	IdempotencyKey string
}

// CheckoutResult carries the order and whether it was produced by an
// earlier request with the same key.
type CheckoutResult struct {
	Order    model.Order
	Replayed bool
}

// OrderService turns the authoritative cart into an order. Each
// (user, idempotency key) pair produces at most one order row, and stock is
// checked and decremented inside the same transaction that writes it.
type OrderService struct {
	orders    OrderStore
	addresses AddressStore
	shortcut  cache.Store
	events    emitter
	metrics   *metrics.Collector
	cfg       OrderConfig
	flight    singleflight.Group
	now       func() time.Time
}

func NewOrderService(orders OrderStore, addresses AddressStore, shortcut cache.Store,
	pub queue.Publisher, m *metrics.Collector, cfg OrderConfig) *OrderService {
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = 10 * time.Second
	}
	if cfg.ShortcutTTL <= 0 {
		cfg.ShortcutTTL = 24 * time.Hour
	}
	return &OrderService{
		orders:    orders,
		addresses: addresses,
		shortcut:  shortcut,
		events:    emitter{pub: pub, metrics: m},
		metrics:   m,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checkout places an order for the caller's cart. Replaying a key returns
// the stored outcome, whether that was an order or a stock rejection.
//
// Concurrent requests with the same key in this process share one
// execution. Once started, an execution runs to completion even if the
// caller goes away; the caller can retry with the same key to read the
// outcome.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	switch {
	case req.IdempotencyKey == "":
		return CheckoutResult{}, validation("idempotencyKey is required")
	case len(req.IdempotencyKey) > maxIdempotencyKeyLen:
		return CheckoutResult{}, validation("idempotencyKey is too long")
	case req.AddressID == 0:
		e := validation("addressId is required")
		e.Action = "choose_address"
		return CheckoutResult{}, e
	}

	flightKey := strconv.FormatUint(req.UserID, 10) + ":" + req.IdempotencyKey
	detached := context.WithoutCancel(ctx)
	// ran is only set when this caller's function is the one executing;
	// callers that joined an execution already in flight see a replay.
	ran := false
	ch := s.flight.DoChan(flightKey, func() (any, error) {
		ran = true
		runCtx, cancel := context.WithTimeout(detached, s.cfg.CheckoutTimeout)
		defer cancel()
		return s.checkout(runCtx, req)
	})

	select {
	case <-ctx.Done():
		return CheckoutResult{}, &Error{
			Kind:    KindInternal,
			Message: "checkout still running, retry with the same key",
			Action:  "retry",
			Err:     ctx.Err(),
		}
	case r := <-ch:
		res, _ := r.Val.(CheckoutResult)
		if !ran && res.Order.ID != "" {
			res.Replayed = true
		}
		return res, r.Err
	}
}

func (s *OrderService) checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	log := logger.From(ctx).With(logger.UserID(req.UserID), logger.IdempotencyKey(req.IdempotencyKey))
	log.Debug("checkout", logger.Stage(stageReceived))

	if o, ok, err := s.existing(ctx, req); err != nil {
		return CheckoutResult{}, err
	} else if ok {
		s.metrics.Checkout("replayed")
		return s.replay(o)
	}

	if _, err := s.addresses.GetForUser(ctx, req.UserID, req.AddressID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e := newError(KindNotFound, "address not found")
			e.Action = "choose_address"
			return CheckoutResult{}, e
		}
		return CheckoutResult{}, internal(err)
	}

	order := model.Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         model.OrderCreated,
		CreatedAt:      s.now(),
	}

	started := time.Now()
	err := s.orders.Checkout(ctx, func(ctx context.Context, tx repository.CheckoutTx) error {
		return s.commit(ctx, tx, &order)
	})
	s.metrics.CheckoutTx(time.Since(started))

	switch {
	case errors.Is(err, errEmptyCart):
		return CheckoutResult{}, validation("cart is empty")
	case errors.Is(err, repository.ErrDuplicate):
		// Another request with the same key committed first.
		o, gerr := s.orders.GetByKey(ctx, req.UserID, req.IdempotencyKey)
		if gerr != nil {
			return CheckoutResult{}, internal(gerr)
		}
		s.metrics.Checkout("replayed")
		return s.replay(o)
	case errors.Is(err, repository.ErrInsufficientStock):
		// Stock moved under a decrement; nothing was written.
		s.metrics.Checkout("stock_rejected")
		log.Info("checkout", logger.Stage(stageRejected))
		return CheckoutResult{}, &Error{Kind: KindInsufficientStock, Message: "stock changed during checkout, try again", Action: "retry"}
	case err != nil:
		s.metrics.Checkout("failed")
		log.Error("checkout transaction failed", logger.Err(err))
		return CheckoutResult{}, internal(err)
	}

	s.shortcut.Set(ctx, shortcutKey(req.UserID, req.IdempotencyKey), []byte(order.ID), s.cfg.ShortcutTTL)

	if order.Status == model.OrderStockRejected {
		s.metrics.Checkout("stock_rejected")
		log.Info("checkout", logger.Stage(stageRejected), logger.OrderID(order.ID))
		s.events.emit(ctx, queue.EventOrderStockRejected, order.ID, queue.OrderStockRejectedPayload{
			OrderID: order.ID, UserID: order.UserID, Shortages: order.Shortages,
		})
		return CheckoutResult{Order: order}, insufficientStock(order.Shortages)
	}

	s.metrics.Checkout("created")
	log.Info("checkout", logger.Stage(stageCommitted), logger.OrderID(order.ID))
	s.events.emit(ctx, queue.EventOrderCreated, order.ID, queue.OrderCreatedPayload{
		OrderID:        order.ID,
		UserID:         order.UserID,
		AddressID:      order.AddressID,
		IdempotencyKey: order.IdempotencyKey,
		Lines:          order.Lines,
		TotalCents:     order.TotalCents,
	})
	return CheckoutResult{Order: order}, nil
}

var errEmptyCart = errors.New("cart is empty")

// commit runs inside the checkout transaction. The order row is written
// first so a concurrent request with the same key fails on the unique key
// before it reads the cart or touches stock.
func (s *OrderService) commit(ctx context.Context, tx repository.CheckoutTx, order *model.Order) error {
	if err := tx.InsertOrder(ctx, order); err != nil {
		return err
	}
	lines, err := tx.CartLines(ctx, order.UserID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errEmptyCart
	}

	ids := make([]uint64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return err
	}

	var shortages []model.Shortage
	for _, l := range lines {
		p, ok := products[l.ProductID]
		available := 0
		if ok && p.IsActive {
			available = p.Stock
		}
		if available < l.Quantity {
			shortages = append(shortages, model.Shortage{ProductID: l.ProductID, Requested: l.Quantity, Available: available})
		}
	}
	logger.From(ctx).Debug("checkout", logger.Stage(stageStockChecked), logger.OrderID(order.ID))

	if len(shortages) > 0 {
		sort.Slice(shortages, func(i, j int) bool { return shortages[i].ProductID < shortages[j].ProductID })
		order.Status = model.OrderStockRejected
		order.Shortages = shortages
		order.Lines = []model.OrderLine{}
		order.TotalCents = 0
		return tx.Finalize(ctx, order)
	}

	order.Lines = make([]model.OrderLine, 0, len(lines))
	order.TotalCents = 0
	for _, l := range lines {
		p := products[l.ProductID]
		order.Lines = append(order.Lines, model.OrderLine{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPriceCents: p.PriceCents,
		})
		order.TotalCents += int64(l.Quantity) * p.PriceCents
	}
	sort.Slice(order.Lines, func(i, j int) bool { return order.Lines[i].ProductID < order.Lines[j].ProductID })

	if err := tx.InsertLines(ctx, order.ID, order.Lines); err != nil {
		return err
	}
	for _, l := range order.Lines {
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	order.Status = model.OrderCreated
	if err := tx.Finalize(ctx, order); err != nil {
		return err
	}
	return tx.ClearCart(ctx, order.UserID, ids)
}

// existing finds a stored outcome for the key, consulting the shortcut
// cache before the database.
func (s *OrderService) existing(ctx context.Context, req CheckoutRequest) (model.Order, bool, error) {
	key := shortcutKey(req.UserID, req.IdempotencyKey)
	if id, ok := s.shortcut.Get(ctx, key); ok {
		o, err := s.orders.GetForUser(ctx, req.UserID, string(id))
		if err == nil && o.IdempotencyKey == req.IdempotencyKey {
			return o, true, nil
		}
		s.shortcut.Delete(ctx, key)
	}
	o, err := s.orders.GetByKey(ctx, req.UserID, req.IdempotencyKey)
	switch {
	case err == nil:
		s.shortcut.Set(ctx, key, []byte(o.ID), s.cfg.ShortcutTTL)
		return o, true, nil
	case errors.Is(err, repository.ErrNotFound):
		return model.Order{}, false, nil
	default:
		return model.Order{}, false, internal(err)
	}
}

func (s *OrderService) replay(o model.Order) (CheckoutResult, error) {
	res := CheckoutResult{Order: o, Replayed: true}
	if o.Status == model.OrderStockRejected {
		return res, insufficientStock(o.Shortages)
	}
	return res, nil
}

// GetOrder returns one of the caller's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID uint64, id string) (model.Order, error) {
	o, err := s.orders.GetForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Order{}, newError(KindNotFound, "order not found")
		}
		return model.Order{}, internal(err)
	}
	return o, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID uint64) ([]model.Order, error) {
	out, err := readOnce(ctx, func(ctx context.Context) ([]model.Order, error) {
		return s.orders.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

func insufficientStock(shortages []model.Shortage) *Error {
	parts := make([]string, len(shortages))
	for i, sh := range shortages {
		parts[i] = fmt.Sprintf("product %d: %d requested, %d available", sh.ProductID, sh.Requested, sh.Available)
	}
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   "insufficient stock: " + strings.Join(parts, "; "),
		Action:    "reduce_quantity",
		Shortages: shortages,
	}
}

func shortcutKey(userID uint64, key string) string {
	return "checkout:" + strconv.FormatUint(userID, 10) + ":" + key
}

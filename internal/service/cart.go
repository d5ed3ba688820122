package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// StockPolicy decides what happens when a cart write asks for more units
// than are in stock.
type StockPolicy string

const (
	// PolicyClamp lowers the quantity to the available stock.
	PolicyClamp StockPolicy = "clamp"
	// PolicyReject refuses the write with KindProductUnavailable.
	PolicyReject StockPolicy = "reject"
)

// CartUpdate is the result of a single-line cart write.
type CartUpdate struct {
	Line      model.PricedLine `json:"line"`
	Requested int              `json:"requested"`
	Clamped   bool             `json:"clamped"`
	Cart      model.Cart       `json:"cart"`
}

// MergeResult reports a guest cart merge. Skipped lists guest products that
// no longer exist or are out of stock.
type MergeResult struct {
	Cart    model.Cart `json:"cart"`
	Clamped []uint64   `json:"clamped,omitempty"`
	Skipped []uint64   `json:"skipped,omitempty"`
}

// CartService keeps the server-authoritative cart. It never stores a price
// or a total: every read joins the lines with the live product rows.
type CartService struct {
	carts    CartStore
	products ProductStore
	policy   StockPolicy
	metrics  *metrics.Collector
	locks    *keyedMutex
}

func NewCartService(carts CartStore, products ProductStore, policy StockPolicy, m *metrics.Collector) *CartService {
	if policy != PolicyReject {
		policy = PolicyClamp
	}
	return &CartService{carts: carts, products: products, policy: policy, metrics: m, locks: newKeyedMutex()}
}

// AddOrUpdate sets the quantity of one line after checking live stock.
func (s *CartService) AddOrUpdate(ctx context.Context, userID, productID uint64, qty int) (CartUpdate, error) {
	if productID == 0 {
		return CartUpdate{}, validation("productId is required")
	}
	if qty < 1 {
		return CartUpdate{}, validation("quantity must be at least 1")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	p, err := s.product(ctx, productID)
	if err != nil {
		return CartUpdate{}, err
	}
	if !p.Available() {
		return CartUpdate{}, newError(KindProductUnavailable, fmt.Sprintf("%s is out of stock", p.Name))
	}

	applied := qty
	if qty > p.Stock {
		if s.policy == PolicyReject {
			return CartUpdate{}, newError(KindProductUnavailable,
				fmt.Sprintf("only %d of %s in stock", p.Stock, p.Name))
		}
		applied = p.Stock
	}
	if err := s.carts.Set(ctx, userID, productID, applied); err != nil {
		return CartUpdate{}, internal(err)
	}
	if applied != qty {
		s.metrics.CartMutation("clamp")
		logger.From(ctx).Info("cart quantity clamped to stock",
			logger.UserID(userID), logger.ProductID(productID))
	} else {
		s.metrics.CartMutation("set")
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return CartUpdate{}, err
	}
	upd := CartUpdate{Requested: qty, Clamped: applied != qty, Cart: cart}
	for _, l := range cart.Lines {
		if l.ProductID == productID {
			upd.Line = l
			break
		}
	}
	return upd, nil
}

// Remove deletes a line. Removing an absent line is not an error.
func (s *CartService) Remove(ctx context.Context, userID, productID uint64) (model.Cart, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.carts.Delete(ctx, userID, productID); err != nil {
		return model.Cart{}, internal(err)
	}
	s.metrics.CartMutation("remove")
	return s.load(ctx, userID)
}

// GetCart returns the cart priced at current product prices.
func (s *CartService) GetCart(ctx context.Context, userID uint64) (model.Cart, error) {
	return s.load(ctx, userID)
}

// MergeGuestCart folds a pre-login cart into the account cart. Quantities
// for the same product are summed, then clamped to live stock regardless of
// the configured policy.
func (s *CartService) MergeGuestCart(ctx context.Context, userID uint64, guest []model.GuestLine) (MergeResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	want := map[uint64]int{}
	for _, g := range guest {
		if g.ProductID == 0 || g.Quantity < 1 {
			continue
		}
		want[g.ProductID] += g.Quantity
	}
	ids := make([]uint64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return MergeResult{}, internal(err)
	}

	var res MergeResult
	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Available() {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		total := want[id]
		existing, err := s.carts.Get(ctx, userID, id)
		switch {
		case err == nil:
			total += existing.Quantity
		case !errors.Is(err, repository.ErrNotFound):
			return MergeResult{}, internal(err)
		}
		if total > p.Stock {
			total = p.Stock
			res.Clamped = append(res.Clamped, id)
		}
		if err := s.carts.Set(ctx, userID, id, total); err != nil {
			return MergeResult{}, internal(err)
		}
	}
	s.metrics.CartMutation("merge")

	cart, err := s.load(ctx, userID)
	if err != nil {
		return MergeResult{}, err
	}
	res.Cart = cart
	return res, nil
}

func (s *CartService) product(ctx context.Context, id uint64) (model.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Product{}, newError(KindNotFound, "product not found")
		}
		return model.Product{}, internal(err)
	}
	return p, nil
}

// load reads lines and live products, retrying once on a transient error.
func (s *CartService) load(ctx context.Context, userID uint64) (model.Cart, error) {
	cart, err := readOnce(ctx, func(ctx context.Context) (model.Cart, error) {
		lines, err := s.carts.List(ctx, userID)
		if err != nil {
			return model.Cart{}, err
		}
		ids := make([]uint64, len(lines))
		for i, l := range lines {
			ids[i] = l.ProductID
		}
		products, err := s.products.GetMany(ctx, ids)
		if err != nil {
			return model.Cart{}, err
		}
		return model.PriceLines(userID, lines, products), nil
	})
	if err != nil {
		return model.Cart{}, internal(err)
	}
	return cart, nil
}

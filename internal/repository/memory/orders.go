package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Orders is the in-memory order table.
type Orders struct{ db *DB }

func (r *Orders) GetByKey(_ context.Context, userID uint64, key string) (model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id, ok := r.db.orderKeys[orderKey{userID, key}]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return cloneOrder(r.db.orders[id]), nil
}

func (r *Orders) GetForUser(_ context.Context, userID uint64, id string) (model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok || o.UserID != userID {
		return model.Order{}, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *Orders) ListByUser(_ context.Context, userID uint64) ([]model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []model.Order{}
	for _, o := range r.db.orders {
		if o.UserID == userID {
			o := cloneOrder(o)
			o.Lines = nil
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Checkout runs fn against a staged transaction. Writes are buffered and
// applied under the table lock only when fn returns nil, so a failure at
// any step leaves no trace.
func (r *Orders) Checkout(ctx context.Context, fn repository.CheckoutFunc) error {
	r.db.checkoutMu.Lock()
	defer r.db.checkoutMu.Unlock()

	tx := &stagedTx{db: r.db, decrements: map[uint64]int{}, cartRevs: map[uint64]uint64{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type stagedTx struct {
	db         *DB
	order      *model.Order
	lines      []model.OrderLine
	decrements map[uint64]int
	clearUser  uint64
	clearIDs   []uint64
	cartRevs   map[uint64]uint64
}

func (t *stagedTx) InsertOrder(_ context.Context, o *model.Order) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, dup := t.db.orderKeys[orderKey{o.UserID, o.IdempotencyKey}]; dup {
		return repository.ErrDuplicate
	}
	if _, dup := t.db.orders[o.ID]; dup {
		return repository.ErrDuplicate
	}
	c := cloneOrder(*o)
	t.order = &c
	return nil
}

func (t *stagedTx) CartLines(_ context.Context, userID uint64) ([]model.CartLine, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	lines := make([]model.CartLine, 0, len(t.db.carts[userID]))
	for pid, l := range t.db.carts[userID] {
		lines = append(lines, model.CartLine{UserID: userID, ProductID: pid, Quantity: l.qty})
		t.cartRevs[pid] = l.rev
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (t *stagedTx) LockProducts(_ context.Context, ids []uint64) (map[uint64]model.Product, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	out := make(map[uint64]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.db.products[id]; ok {
			p.Stock -= t.decrements[id]
			out[id] = p
		}
	}
	return out, nil
}

func (t *stagedTx) DecrementStock(_ context.Context, productID uint64, qty int) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	p, ok := t.db.products[productID]
	if !ok || p.Stock-t.decrements[productID] < qty {
		return repository.ErrInsufficientStock
	}
	t.decrements[productID] += qty
	return nil
}

func (t *stagedTx) InsertLines(_ context.Context, _ string, lines []model.OrderLine) error {
	t.lines = append(t.lines, lines...)
	return nil
}

func (t *stagedTx) Finalize(_ context.Context, o *model.Order) error {
	if t.order == nil || t.order.ID != o.ID {
		return repository.ErrNotFound
	}
	t.order.Status = o.Status
	t.order.TotalCents = o.TotalCents
	t.order.Shortages = append([]model.Shortage(nil), o.Shortages...)
	return nil
}

func (t *stagedTx) ClearCart(_ context.Context, userID uint64, productIDs []uint64) error {
	t.clearUser = userID
	t.clearIDs = append(t.clearIDs, productIDs...)
	return nil
}

func (t *stagedTx) commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	// Stock may have been edited outside checkout since it was read.
	for id, qty := range t.decrements {
		if t.db.products[id].Stock < qty {
			return repository.ErrInsufficientStock
		}
	}
	for id, qty := range t.decrements {
		p := t.db.products[id]
		p.Stock -= qty
		p.UpdatedAt = t.db.now()
		t.db.products[id] = p
	}
	if t.order != nil {
		o := *t.order
		o.Lines = append([]model.OrderLine{}, t.lines...)
		sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].ProductID < o.Lines[j].ProductID })
		t.db.orders[o.ID] = o
		t.db.orderKeys[orderKey{o.UserID, o.IdempotencyKey}] = o.ID
	}
	// A line written after it was read survives, as the blocked upsert would
	// in MySQL once the row lock is released.
	for _, pid := range t.clearIDs {
		if l, ok := t.db.carts[t.clearUser][pid]; ok && l.rev == t.cartRevs[pid] {
			delete(t.db.carts[t.clearUser], pid)
		}
	}
	return nil
}

func cloneOrder(o model.Order) model.Order {
	o.Lines = append([]model.OrderLine{}, o.Lines...)
	o.Shortages = append([]model.Shortage(nil), o.Shortages...)
	return o
}

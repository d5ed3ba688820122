package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Carts is the in-memory cart_lines table.
type Carts struct{ db *DB }

func (r *Carts) List(_ context.Context, userID uint64) ([]model.CartLine, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	lines := make([]model.CartLine, 0, len(r.db.carts[userID]))
	for pid, l := range r.db.carts[userID] {
		lines = append(lines, model.CartLine{UserID: userID, ProductID: pid, Quantity: l.qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (r *Carts) Get(_ context.Context, userID, productID uint64) (model.CartLine, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.carts[userID][productID]
	if !ok {
		return model.CartLine{}, repository.ErrNotFound
	}
	return model.CartLine{UserID: userID, ProductID: productID, Quantity: l.qty}, nil
}

func (r *Carts) Set(_ context.Context, userID, productID uint64, qty int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.products[productID]; !ok {
		return repository.ErrNotFound
	}
	if r.db.carts[userID] == nil {
		r.db.carts[userID] = map[uint64]cartLine{}
	}
	r.db.cartRev++
	r.db.carts[userID][productID] = cartLine{qty: qty, rev: r.db.cartRev}
	return nil
}

func (r *Carts) Delete(_ context.Context, userID, productID uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.carts[userID], productID)
	return nil
}

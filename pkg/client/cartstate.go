package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type CartOpKind int

const (
	OpSetQuantity CartOpKind = iota
	OpRemove
)

// CartOp is one optimistic edit. UnitPriceCents is only used to display a
// line the confirmed cart does not have yet; the server price always wins
// on confirmation.
type CartOp struct {
	ID             string
	Kind           CartOpKind
	ProductID      uint64
	Quantity       int
	UnitPriceCents int64
}

// ReduceCart returns cart with op applied. It does not modify cart. The
// total is recomputed from the lines.
func ReduceCart(cart Cart, op CartOp) Cart {
	out := Cart{UserID: cart.UserID, Lines: make([]CartLine, 0, len(cart.Lines)+1)}
	found := false
	for _, l := range cart.Lines {
		if l.ProductID != op.ProductID {
			out.Lines = append(out.Lines, l)
			continue
		}
		found = true
		if op.Kind == OpRemove || op.Quantity < 1 {
			continue
		}
		l.Quantity = op.Quantity
		l.SubtotalCents = int64(l.Quantity) * l.UnitPriceCents
		out.Lines = append(out.Lines, l)
	}
	if !found && op.Kind == OpSetQuantity && op.Quantity > 0 {
		out.Lines = append(out.Lines, CartLine{
			ProductID:      op.ProductID,
			Quantity:       op.Quantity,
			UnitPriceCents: op.UnitPriceCents,
			SubtotalCents:  int64(op.Quantity) * op.UnitPriceCents,
		})
	}
	for _, l := range out.Lines {
		out.TotalCents += l.SubtotalCents
	}
	return out
}

// CartState is the client-side cart container. The view is the last cart
// confirmed by the server with pending optimistic ops replayed on top, in
// the order they were applied.
type CartState struct {
	mu        sync.Mutex
	confirmed Cart
	pending   []CartOp
}

func NewCartState(initial Cart) *CartState { return &CartState{confirmed: initial} }

// Apply records op as pending and returns its id, assigning one if empty.
func (s *CartState) Apply(op CartOp) string {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.pending = append(s.pending, op)
	s.mu.Unlock()
	return op.ID
}

// Confirm drops op id and replaces the confirmed cart with the server's.
func (s *CartState) Confirm(id string, server Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(id)
	s.confirmed = server
}

// Rollback drops op id without touching the confirmed cart.
func (s *CartState) Rollback(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(id)
}

// Replace sets the confirmed cart, e.g. after GET /cart.
func (s *CartState) Replace(server Cart) {
	s.mu.Lock()
	s.confirmed = server
	s.mu.Unlock()
}

func (s *CartState) drop(id string) {
	for i, op := range s.pending {
		if op.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// View returns the cart to render.
func (s *CartState) View() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.confirmed
	for _, op := range s.pending {
		v = ReduceCart(v, op)
	}
	return v
}

// Pending reports how many ops await the server.
func (s *CartState) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// UpdateCart applies op optimistically to state, sends it, and confirms
// with the server cart or rolls back on failure.
func (c *Client) UpdateCart(ctx context.Context, state *CartState, op CartOp) (Cart, error) {
	id := state.Apply(op)
	var (
		cart Cart
		err  error
	)
	if op.Kind == OpRemove || op.Quantity < 1 {
		cart, err = c.RemoveCartItem(ctx, op.ProductID)
	} else {
		var up CartUpdate
		up, err = c.SetCartItem(ctx, op.ProductID, op.Quantity)
		cart = up.Cart
	}
	if err != nil {
		state.Rollback(id)
		return state.View(), err
	}
	state.Confirm(id, cart)
	return state.View(), nil
}

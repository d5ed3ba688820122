package repository

import (
	"context"

	"github.com/iliyamo/storefront/internal/model"
)

// CheckoutTx is the unit of work the order pipeline runs inside. Every
// method observes and mutates the same transaction; nothing is visible to
// other requests until the enclosing Checkout call commits.
type CheckoutTx interface {
	// InsertOrder writes the order header. It returns ErrDuplicate when the
	// (user, idempotency key) pair already exists.
	InsertOrder(ctx context.Context, o *model.Order) error
	// CartLines reads the user's cart lines, locking them until commit.
	CartLines(ctx context.Context, userID uint64) ([]model.CartLine, error)
	// LockProducts reads and locks the given products until commit. Missing
	// products are absent from the map.
	LockProducts(ctx context.Context, ids []uint64) (map[uint64]model.Product, error)
	// DecrementStock subtracts qty from the product stock. It returns
	// ErrInsufficientStock instead of letting stock go negative.
	DecrementStock(ctx context.Context, productID uint64, qty int) error
	// InsertLines writes the order's line snapshots.
	InsertLines(ctx context.Context, orderID string, lines []model.OrderLine) error
	// Finalize sets the outcome of the order created by InsertOrder.
	Finalize(ctx context.Context, o *model.Order) error
	// ClearCart deletes the listed cart lines of the user.
	ClearCart(ctx context.Context, userID uint64, productIDs []uint64) error
}

// CheckoutFunc is run by an order store's Checkout. Returning a non-nil
// error rolls back every change made through tx.
type CheckoutFunc func(ctx context.Context, tx CheckoutTx) error

// ProductQuery defines filters & pagination for product search.
type ProductQuery struct {
	Text     string
	Page     int
	PageSize int
}

// Offset returns the row offset of the page.
func (q ProductQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/iliyamo/storefront/internal/model"
)

// OrderRepo persists orders and runs the checkout transaction.
type OrderRepo struct{ DB *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{DB: db} }

const orderColumns = "id, user_id, address_id, idempotency_key, status, total_cents, shortages, created_at"

// Checkout runs fn inside a single transaction. It commits when fn returns
// nil and rolls back otherwise.
func (r *OrderRepo) Checkout(ctx context.Context, fn CheckoutFunc) error {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &sqlCheckoutTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByKey returns the order stored for (userID, key).
func (r *OrderRepo) GetByKey(ctx context.Context, userID uint64, key string) (model.Order, error) {
	o, err := scanOrder(r.DB.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id=? AND idempotency_key=?", userID, key))
	if err != nil {
		return model.Order{}, notFound(err)
	}
	return o, r.loadLines(ctx, &o)
}

// GetForUser returns an order owned by userID.
func (r *OrderRepo) GetForUser(ctx context.Context, userID uint64, id string) (model.Order, error) {
	o, err := scanOrder(r.DB.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id=? AND user_id=?", id, userID))
	if err != nil {
		return model.Order{}, notFound(err)
	}
	return o, r.loadLines(ctx, &o)
}

// ListByUser returns the user's orders newest first, without lines.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id=? ORDER BY created_at DESC, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) loadLines(ctx context.Context, o *model.Order) error {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT product_id, quantity, unit_price_cents FROM order_lines WHERE order_id=? ORDER BY product_id", o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Lines = []model.OrderLine{}
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPriceCents); err != nil {
			return err
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func scanOrder(s rowScanner) (model.Order, error) {
	var (
		o         model.Order
		status    string
		shortages sql.NullString
	)
	if err := s.Scan(&o.ID, &o.UserID, &o.AddressID, &o.IdempotencyKey, &status, &o.TotalCents, &shortages, &o.CreatedAt); err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	if shortages.Valid && shortages.String != "" {
		if err := json.Unmarshal([]byte(shortages.String), &o.Shortages); err != nil {
			return model.Order{}, err
		}
	}
	return o, nil
}

// sqlCheckoutTx implements CheckoutTx over a *sql.Tx.
type sqlCheckoutTx struct{ tx *sql.Tx }

func (t *sqlCheckoutTx) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, address_id, idempotency_key, status, total_cents, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.UserID, o.AddressID, o.IdempotencyKey, string(o.Status), o.TotalCents, o.CreatedAt)
	if err != nil && isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (t *sqlCheckoutTx) CartLines(ctx context.Context, userID uint64) ([]model.CartLine, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT user_id, product_id, quantity FROM cart_lines WHERE user_id=? ORDER BY product_id FOR UPDATE", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []model.CartLine{}
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// LockProducts locks rows in ascending id order so two checkouts touching
// overlapping products cannot deadlock.
func (t *sqlCheckoutTx) LockProducts(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	out := make(map[uint64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id IN ("+placeholders(len(sorted))+") ORDER BY id FOR UPDATE",
		uint64Args(sorted)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *sqlCheckoutTx) DecrementStock(ctx context.Context, productID uint64, qty int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock=stock-?, updated_at=UTC_TIMESTAMP() WHERE id=? AND stock>=?",
		qty, productID, qty)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrInsufficientStock
	}
	return nil
}

func (t *sqlCheckoutTx) InsertLines(ctx context.Context, orderID string, lines []model.OrderLine) error {
	stmt, err := t.tx.PrepareContext(ctx,
		"INSERT INTO order_lines (order_id, product_id, quantity, unit_price_cents) VALUES (?,?,?,?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, l := range lines {
		if _, err := stmt.ExecContext(ctx, orderID, l.ProductID, l.Quantity, l.UnitPriceCents); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlCheckoutTx) Finalize(ctx context.Context, o *model.Order) error {
	var shortages any
	if len(o.Shortages) > 0 {
		b, err := json.Marshal(o.Shortages)
		if err != nil {
			return err
		}
		shortages = string(b)
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status=?, total_cents=?, shortages=? WHERE id=?",
		string(o.Status), o.TotalCents, shortages, o.ID)
	return err
}

func (t *sqlCheckoutTx) ClearCart(ctx context.Context, userID uint64, productIDs []uint64) error {
	if len(productIDs) == 0 {
		return nil
	}
	args := append([]any{userID}, uint64Args(productIDs)...)
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE user_id=? AND product_id IN ("+placeholders(len(productIDs))+")", args...)
	return err
}

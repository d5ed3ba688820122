package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/storefront/internal/model"
)

// CartRepo stores cart lines keyed by (user_id, product_id). All writes are
// single-line upserts so concurrent edits of different lines never clobber
// each other.
type CartRepo struct{ DB *sql.DB }

func NewCartRepo(db *sql.DB) *CartRepo { return &CartRepo{DB: db} }

// List returns the user's lines ordered by product id.
func (r *CartRepo) List(ctx context.Context, userID uint64) ([]model.CartLine, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT user_id, product_id, quantity FROM cart_lines WHERE user_id=? ORDER BY product_id", userID)
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

// Get returns one line or ErrNotFound.
func (r *CartRepo) Get(ctx context.Context, userID, productID uint64) (model.CartLine, error) {
	var l model.CartLine
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, product_id, quantity FROM cart_lines WHERE user_id=? AND product_id=?",
		userID, productID).Scan(&l.UserID, &l.ProductID, &l.Quantity)
	if err != nil {
		return model.CartLine{}, notFound(err)
	}
	return l, nil
}

// Set creates or replaces the quantity of a line.
func (r *CartRepo) Set(ctx context.Context, userID, productID uint64, qty int) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO cart_lines (user_id, product_id, quantity) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE quantity=VALUES(quantity), updated_at=UTC_TIMESTAMP()`,
		userID, productID, qty)
	return err
}

// Delete removes a line; deleting a missing line is not an error.
func (r *CartRepo) Delete(ctx context.Context, userID, productID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE user_id=? AND product_id=?", userID, productID)
	return err
}

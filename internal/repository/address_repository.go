package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/storefront/internal/model"
)

// AddressRepo stores shipping addresses. Addresses are soft-deleted via
// is_active so past orders keep a valid reference.
type AddressRepo struct{ DB *sql.DB }

func NewAddressRepo(db *sql.DB) *AddressRepo { return &AddressRepo{DB: db} }

// Create inserts an address and fills ID and CreatedAt.
func (r *AddressRepo) Create(ctx context.Context, a *model.Address) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO addresses (user_id, line1, city, postal_code, country, is_active) VALUES (?,?,?,?,?,1)",
		a.UserID, a.Line1, a.City, a.PostalCode, a.Country)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.IsActive = true
	return r.DB.QueryRowContext(ctx, "SELECT created_at FROM addresses WHERE id=?", a.ID).Scan(&a.CreatedAt)
}

// ListByUser returns the user's active addresses, newest first.
func (r *AddressRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Address, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, line1, city, postal_code, country, is_active, created_at
		   FROM addresses WHERE user_id=? AND is_active=1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Address{}
	for rows.Next() {
		var a model.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Line1, &a.City, &a.PostalCode, &a.Country, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetForUser returns an active address owned by userID, else ErrNotFound.
func (r *AddressRepo) GetForUser(ctx context.Context, userID, id uint64) (model.Address, error) {
	var a model.Address
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, line1, city, postal_code, country, is_active, created_at
		   FROM addresses WHERE id=? AND user_id=? AND is_active=1`, id, userID).
		Scan(&a.ID, &a.UserID, &a.Line1, &a.City, &a.PostalCode, &a.Country, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return model.Address{}, notFound(err)
	}
	return a, nil
}

// Deactivate soft-deletes an address owned by userID.
func (r *AddressRepo) Deactivate(ctx context.Context, userID, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE addresses SET is_active=0 WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

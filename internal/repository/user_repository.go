package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
)

// UserRepo persists users in the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,is_active,COALESCE(refresh_family_id,''),created_at,updated_at"

// Create inserts u and fills its ID. Email is normalised before insert.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, is_active) VALUES (?,?,?,?)",
		u.Email, u.PasswordHash, u.Role, u.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetRefreshFamily records the token family issued by the latest login.
func (r *UserRepo) SetRefreshFamily(ctx context.Context, userID uint64, familyID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_family_id=?, updated_at=UTC_TIMESTAMP() WHERE id=?", familyID, userID)
	return err
}

// UpdatePassword replaces the credential hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP() WHERE id=?", hash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.RefreshFamilyID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, notFound(err)
	}
	return u, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

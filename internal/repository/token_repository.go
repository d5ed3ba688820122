package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

// TokenRepo persists refresh token records grouped into families. Only the
// SHA‑256 hash of a token is ever written.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a refresh token record and fills its ID.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return insertToken(ctx, r.DB, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, t *model.RefreshToken) error {
	res, err := db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (family_id, user_id, token_hash, issued_at, expires_at) VALUES (?,?,?,?,?)",
		t.FamilyID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByHash looks a record up by token hash, whatever its state.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var (
		t          model.RefreshToken
		superseded sql.NullTime
		revoked    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, family_id, user_id, token_hash, issued_at, expires_at, superseded_at, revoked_at
		   FROM refresh_tokens WHERE token_hash=? LIMIT 1`,
		tokenHash).Scan(&t.ID, &t.FamilyID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &superseded, &revoked)
	if err != nil {
		return model.RefreshToken{}, notFound(err)
	}
	if superseded.Valid {
		ts := superseded.Time
		t.SupersededAt = &ts
	}
	if revoked.Valid {
		ts := revoked.Time
		t.RevokedAt = &ts
	}
	return t, nil
}

// Rotate supersedes the record currentID and inserts next in the same
// transaction. The update is conditional on currentID still being the head
// of its family, so of two concurrent rotations exactly one wins; the loser
// gets ErrTokenSuperseded.
func (r *TokenRepo) Rotate(ctx context.Context, currentID uint64, next *model.RefreshToken) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET superseded_at=?
		  WHERE id=? AND superseded_at IS NULL AND revoked_at IS NULL`,
		next.IssuedAt, currentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrTokenSuperseded
	}
	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// RevokeFamily revokes every live record of a family.
func (r *TokenRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE family_id=? AND revoked_at IS NULL",
		time.Now().UTC(), familyID)
	return err
}

// RevokeUser revokes all of a user's records across families.
func (r *TokenRepo) RevokeUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		time.Now().UTC(), userID)
	return err
}

package memory

import (
	"context"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Tokens is the in-memory refresh token table.
type Tokens struct{ db *DB }

func (r *Tokens) Create(_ context.Context, t *model.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.insertLocked(t)
}

func (r *Tokens) insertLocked(t *model.RefreshToken) error {
	if _, dup := r.db.tokenByHash[t.TokenHash]; dup {
		return repository.ErrDuplicate
	}
	t.ID = r.db.nextID()
	r.db.tokens[t.ID] = *t
	r.db.tokenByHash[t.TokenHash] = t.ID
	return nil
}

func (r *Tokens) GetByHash(_ context.Context, hash string) (model.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id, ok := r.db.tokenByHash[hash]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return r.db.tokens[id], nil
}

// Rotate is a compare-and-set on the head of the family.
func (r *Tokens) Rotate(_ context.Context, currentID uint64, next *model.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.tokens[currentID]
	if !ok || !cur.Current() {
		return repository.ErrTokenSuperseded
	}
	if _, dup := r.db.tokenByHash[next.TokenHash]; dup {
		return repository.ErrDuplicate
	}
	at := next.IssuedAt
	cur.SupersededAt = &at
	r.db.tokens[currentID] = cur
	return r.insertLocked(next)
}

func (r *Tokens) RevokeFamily(_ context.Context, familyID string) error {
	r.revokeWhere(func(t model.RefreshToken) bool { return t.FamilyID == familyID })
	return nil
}

func (r *Tokens) RevokeUser(_ context.Context, userID uint64) error {
	r.revokeWhere(func(t model.RefreshToken) bool { return t.UserID == userID })
	return nil
}

func (r *Tokens) revokeWhere(match func(model.RefreshToken) bool) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for id, t := range r.db.tokens {
		if t.RevokedAt == nil && match(t) {
			at := now
			t.RevokedAt = &at
			r.db.tokens[id] = t
		}
	}
}

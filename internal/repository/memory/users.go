package memory

import (
	"context"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Users is the in-memory user table.
type Users struct{ db *DB }

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, existing := range r.db.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	now := r.db.now()
	u.ID = r.db.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	r.db.users[u.ID] = *u
	return nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range r.db.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (r *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *Users) SetRefreshFamily(_ context.Context, userID uint64, familyID string) error {
	return r.update(userID, func(u *model.User) { u.RefreshFamilyID = familyID })
}

func (r *Users) UpdatePassword(_ context.Context, userID uint64, hash string) error {
	return r.update(userID, func(u *model.User) { u.PasswordHash = hash })
}

// SetActive toggles the soft-disable flag.
func (r *Users) SetActive(_ context.Context, userID uint64, active bool) error {
	return r.update(userID, func(u *model.User) { u.IsActive = active })
}

func (r *Users) update(id uint64, fn func(*model.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = r.db.now()
	r.db.users[id] = u
	return nil
}

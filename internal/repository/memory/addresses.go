package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Addresses is the in-memory address book.
type Addresses struct{ db *DB }

func (r *Addresses) Create(_ context.Context, a *model.Address) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a.ID = r.db.nextID()
	a.IsActive = true
	a.CreatedAt = r.db.now()
	r.db.addresses[a.ID] = *a
	return nil
}

func (r *Addresses) ListByUser(_ context.Context, userID uint64) ([]model.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []model.Address{}
	for _, a := range r.db.addresses {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Addresses) GetForUser(_ context.Context, userID, id uint64) (model.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.addresses[id]
	if !ok || a.UserID != userID || !a.IsActive {
		return model.Address{}, repository.ErrNotFound
	}
	return a, nil
}

// Deactivate soft-deletes an address.
func (r *Addresses) Deactivate(_ context.Context, userID, id uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.addresses[id]
	if !ok || a.UserID != userID {
		return repository.ErrNotFound
	}
	a.IsActive = false
	r.db.addresses[id] = a
	return nil
}

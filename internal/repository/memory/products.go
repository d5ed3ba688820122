package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// Products is the in-memory catalog.
type Products struct{ db *DB }

// Create inserts p and fills its ID.
func (r *Products) Create(_ context.Context, p *model.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p.ID = r.db.nextID()
	p.UpdatedAt = r.db.now()
	r.db.products[p.ID] = *p
	return nil
}

// Update replaces a product row; used to simulate catalog edits such as a
// price change or a restock.
func (r *Products) Update(_ context.Context, p model.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.UpdatedAt = r.db.now()
	r.db.products[p.ID] = p
	return nil
}

func (r *Products) Get(_ context.Context, id uint64) (model.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[id]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *Products) GetMany(_ context.Context, ids []uint64) (map[uint64]model.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint64]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *Products) Search(_ context.Context, q repository.ProductQuery) ([]model.Product, int64, error) {
	r.db.mu.Lock()
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var hits []model.Product
	for _, p := range r.db.products {
		if !p.IsActive {
			continue
		}
		if text == "" ||
			strings.Contains(strings.ToLower(p.Name), text) ||
			strings.Contains(strings.ToLower(p.Description), text) {
			hits = append(hits, p)
		}
	}
	r.db.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	total := int64(len(hits))
	start := q.Offset()
	if start >= len(hits) {
		return []model.Product{}, total, nil
	}
	end := start + q.PageSize
	if end > len(hits) {
		end = len(hits)
	}
	return append([]model.Product{}, hits[start:end]...), total, nil
}

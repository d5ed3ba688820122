package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
)

// ProductRepo reads the product catalog. Stock is only written through
// the checkout transaction (see OrderRepo).
type ProductRepo struct{ DB *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{DB: db} }

const productColumns = "id, name, description, price_cents, stock, is_active, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (model.Product, error) {
	var p model.Product
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.IsActive, &p.UpdatedAt)
	return p, err
}

// Get returns a single product, active or not.
func (r *ProductRepo) Get(ctx context.Context, id uint64) (model.Product, error) {
	p, err := scanProduct(r.DB.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id=? LIMIT 1", id))
	if err != nil {
		return model.Product{}, notFound(err)
	}
	return p, nil
}

// GetMany returns the products found among ids keyed by id.
func (r *ProductRepo) GetMany(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	out := make(map[uint64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := "SELECT " + productColumns + " FROM products WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.DB.QueryContext(ctx, q, uint64Args(ids)...)
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

// Create inserts a product; used by seeding and tests.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO products (name, description, price_cents, stock, is_active) VALUES (?,?,?,?,?)",
		p.Name, p.Description, p.PriceCents, p.Stock, p.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Search returns one page of active products whose name or description
// contains q.Text, along with the total number of matches. Ordering is by
// id so consecutive pages never overlap.
func (r *ProductRepo) Search(ctx context.Context, q ProductQuery) ([]model.Product, int64, error) {
	where := []string{"is_active=1"}
	args := []any{}
	if t := strings.TrimSpace(q.Text); t != "" {
		like := "%" + escapeLike(t) + "%"
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		args = append(args, like, like)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Product{}, 0, nil
	}

	listArgs := append(append([]any{}, args...), q.PageSize, q.Offset())
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products"+cond+" ORDER BY id LIMIT ? OFFSET ?", listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]model.Product, 0, q.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uint64Args(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

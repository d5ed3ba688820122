package service

import (
	"context"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// UserStore is implemented by repository.UserRepo and memory.Users.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetRefreshFamily(ctx context.Context, userID uint64, familyID string) error
	UpdatePassword(ctx context.Context, userID uint64, hash string) error
}

// TokenStore persists refresh token records. Rotate must be atomic: of two
// calls rotating the same record, exactly one succeeds and the other gets
// repository.ErrTokenSuperseded.
type TokenStore interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (model.RefreshToken, error)
	Rotate(ctx context.Context, currentID uint64, next *model.RefreshToken) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeUser(ctx context.Context, userID uint64) error
}

type ProductStore interface {
	Get(ctx context.Context, id uint64) (model.Product, error)
	GetMany(ctx context.Context, ids []uint64) (map[uint64]model.Product, error)
	Search(ctx context.Context, q repository.ProductQuery) ([]model.Product, int64, error)
}

// CartStore writes single lines; there is no whole-cart overwrite.
type CartStore interface {
	List(ctx context.Context, userID uint64) ([]model.CartLine, error)
	Get(ctx context.Context, userID, productID uint64) (model.CartLine, error)
	Set(ctx context.Context, userID, productID uint64, qty int) error
	Delete(ctx context.Context, userID, productID uint64) error
}

type AddressStore interface {
	Create(ctx context.Context, a *model.Address) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Address, error)
	GetForUser(ctx context.Context, userID, id uint64) (model.Address, error)
	Deactivate(ctx context.Context, userID, id uint64) error
}

type OrderStore interface {
	GetByKey(ctx context.Context, userID uint64, key string) (model.Order, error)
	GetForUser(ctx context.Context, userID uint64, id string) (model.Order, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Order, error)
	Checkout(ctx context.Context, fn repository.CheckoutFunc) error
}

package model

import "time"

// Product is the catalog entry as seen by the checkout core. Catalog
// management lives elsewhere; this package only reads price and stock,
// and the order pipeline is the only writer of Stock.
type Product struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"priceCents"`
	Stock       int       `json:"stock"`
	IsActive    bool      `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Available reports whether the product can currently be put in a cart.
func (p Product) Available() bool { return p.IsActive && p.Stock > 0 }

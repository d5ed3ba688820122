package model

import "time"

// OrderStatus is the persisted outcome of a checkout attempt.
type OrderStatus string

const (
	OrderCreated       OrderStatus = "created"
	OrderStockRejected OrderStatus = "stock_rejected"
	// OrderFailed is reserved for downstream failures (payment, fulfilment);
	// the checkout pipeline itself never persists it.
	OrderFailed OrderStatus = "failed"
)

// Order records one checkout attempt keyed by (UserID, IdempotencyKey).
// Lines freeze product, quantity and unit price at commit time and are
// never recomputed.
type Order struct {
	ID             string      `json:"id"`
	UserID         uint64      `json:"userId"`
	AddressID      uint64      `json:"addressId"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Status         OrderStatus `json:"status"`
	TotalCents     int64       `json:"totalCents"`
	Lines          []OrderLine `json:"lines"`
	Shortages      []Shortage  `json:"shortages,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// OrderLine is the price/quantity snapshot of one product in an order.
type OrderLine struct {
	ProductID      uint64 `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// Shortage names a product whose stock could not cover the requested quantity.
type Shortage struct {
	ProductID uint64 `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

package client

import "time"

// Error codes returned by the API in the envelope's code field.
const (
	CodeValidation         = "validation"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidAccess      = "invalid_access"
	CodeExpiredAccess      = "expired_access"
	CodeInvalidSession     = "invalid_session"
	CodeSessionCompromised = "session_compromised"
	CodeProductUnavailable = "product_unavailable"
	CodeInsufficientStock  = "insufficient_stock"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeInternal           = "internal"
)

// Tokens is the pair held by a TokenStore.
type Tokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type User struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Product struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"priceCents"`
	Stock       int    `json:"stock"`
}

// CartLine is one line of the server cart, priced at read time.
type CartLine struct {
	ProductID      uint64 `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Stock          int    `json:"stock"`
	SubtotalCents  int64  `json:"subtotalCents"`
}

type Cart struct {
	UserID     uint64     `json:"userId"`
	Lines      []CartLine `json:"lines"`
	TotalCents int64      `json:"totalCents"`
}

// GuestLine is a cart line kept on the device before login.
type GuestLine struct {
	ProductID uint64 `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CartUpdate is the answer to a single-line cart write. Clamped reports
// that the server lowered the quantity to the available stock.
type CartUpdate struct {
	Line      CartLine `json:"line"`
	Requested int      `json:"requested"`
	Clamped   bool     `json:"clamped"`
	Cart      Cart     `json:"cart"`
}

type MergeResult struct {
	Cart    Cart     `json:"cart"`
	Clamped []uint64 `json:"clamped,omitempty"`
	Skipped []uint64 `json:"skipped,omitempty"`
}

type Address struct {
	ID         uint64 `json:"id"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type OrderLine struct {
	ProductID      uint64 `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type Shortage struct {
	ProductID uint64 `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type Order struct {
	ID             string      `json:"id"`
	AddressID      uint64      `json:"addressId"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Status         string      `json:"status"`
	TotalCents     int64       `json:"totalCents"`
	Lines          []OrderLine `json:"lines"`
	Shortages      []Shortage  `json:"shortages,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// SearchResult is one page of product search.
type SearchResult struct {
	Items      []Product
	Page       int
	TotalPages int
}

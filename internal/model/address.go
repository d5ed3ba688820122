package model

import "time"

// Address is a shipping address owned by a user. Checkout only needs to
// know that the address exists, belongs to the caller and is active.
type Address struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"userId"`
	Line1      string    `json:"line1"`
	City       string    `json:"city"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

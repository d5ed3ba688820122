package model

// CartLine mirrors a row in the `cart_lines` table. Only the quantity is
// persisted; price is never stored on the line.
type CartLine struct {
	UserID    uint64
	ProductID uint64
	Quantity  int
}

// PricedLine is a cart line joined with the live product row.
type PricedLine struct {
	ProductID      uint64 `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Stock          int    `json:"stock"`
	SubtotalCents  int64  `json:"subtotalCents"`
}

// Cart is the authoritative cart returned to clients. TotalCents is always
// recomputed from Lines at read time.
type Cart struct {
	UserID     uint64       `json:"userId"`
	Lines      []PricedLine `json:"lines"`
	TotalCents int64        `json:"totalCents"`
}

// GuestLine is a line from a cart built before login.
type GuestLine struct {
	ProductID uint64 `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// PriceLines joins cart lines with products and computes the total as
// Σ(quantity × current price). Lines whose product is missing are skipped.
func PriceLines(userID uint64, lines []CartLine, products map[uint64]Product) Cart {
	cart := Cart{UserID: userID, Lines: make([]PricedLine, 0, len(lines))}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		sub := int64(l.Quantity) * p.PriceCents
		cart.Lines = append(cart.Lines, PricedLine{
			ProductID:      l.ProductID,
			Name:           p.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: p.PriceCents,
			Stock:          p.Stock,
			SubtotalCents:  sub,
		})
		cart.TotalCents += sub
	}
	return cart
}

// Package order defines the order entities created by successful purchases.
package order

import "time"

// StatusPlaced is the only status the engine produces. Orders are immutable
// once created.
const StatusPlaced = "PLACED"

// Order represents a completed purchase with its line items.
type Order struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	Status     string
	TotalCents int64
	Items      []Item
}

// Item is a single line of an Order. UnitPriceCents is the product price
// snapshotted at purchase time; it does not track later price changes.
type Item struct {
	ProductID      string
	Name           string
	Quantity       int64
	UnitPriceCents int64
}

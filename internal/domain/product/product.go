// Package product defines the catalog entity.
package product

// Product represents a catalog item available for purchase. Price and stock
// are integers (minor currency units and discrete units); Inventory is only
// ever decremented by a purchase transaction and never goes negative.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Inventory  int64
}

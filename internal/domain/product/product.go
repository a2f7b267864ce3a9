package product

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrUnavailable       = errors.New("product: not available for purchase")
	ErrInvalidQuantity   = errors.New("product: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("product: insufficient stock")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// Product is the sellable unit owned by a vendor. Stock and TotalSales are
// global mutable counters adjusted only through the repository's atomic
// conditional updates, never read-modify-write.
type Product struct {
	ID             string
	VendorID       string
	Name           string
	Price          float64
	Stock          int
	TrackInventory bool
	TotalSales     int
	Status         Status
	ShippingCost   float64
	FreeShipping   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *Product) Purchasable() bool {
	return p.Status == StatusActive
}

// InStock reports whether qty units can currently be committed. Products that
// do not track inventory are always in stock.
func (p *Product) InStock(qty int) bool {
	return !p.TrackInventory || p.Stock >= qty
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

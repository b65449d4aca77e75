package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product. Variants are the purchasable flavors.
type Product struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description,omitempty" db:"description"`
	Category    string      `json:"category" db:"category"`
	Image       string      `json:"image,omitempty" db:"image"`
	Variants    []Variant   `json:"variants"`
	Tiers       []PriceTier `json:"tiers"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
}

// Variant is one flavor of a product with its own stock level.
type Variant struct {
	ID        string `json:"id" db:"id"`
	ProductID string `json:"productId" db:"product_id"`
	Flavor    string `json:"flavor" db:"flavor"`
	Image     string `json:"image,omitempty" db:"image"`
	Stock     int    `json:"stock" db:"stock"`
}

// PriceTier is the total price charged for buying exactly Quantity units.
type PriceTier struct {
	Quantity int             `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

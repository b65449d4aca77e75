// Package pricing resolves quantity-tiered prices for a product.
package pricing

import (
	"fmt"
	"sort"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// displayScale is the number of decimals used for per-unit display prices.
const displayScale = 2

// Quote is the price of buying a quantity of one product.
type Quote struct {
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TierApplied bool            `json:"tierApplied"`
}

// Resolve returns the total price for quantity units. An exact tier match
// wins; otherwise the quantity-1 base price is multiplied out.
func Resolve(tiers []model.PriceTier, quantity int) (decimal.Decimal, error) {
	q, err := QuoteFor(tiers, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Total, nil
}

// QuoteFor resolves quantity against tiers and adds the display unit price.
func QuoteFor(tiers []model.PriceTier, quantity int) (Quote, error) {
	if quantity <= 0 {
		return Quote{}, model.ErrInvalidQuantity
	}

	var base *model.PriceTier
	for i := range tiers {
		if tiers[i].Quantity == quantity {
			return Quote{
				Quantity:    quantity,
				Total:       tiers[i].Price,
				UnitPrice:   UnitPrice(tiers[i].Price, quantity),
				TierApplied: quantity != 1,
			}, nil
		}
		if tiers[i].Quantity == 1 {
			base = &tiers[i]
		}
	}

	if base == nil {
		return Quote{}, model.ErrNoBasePrice
	}

	total := base.Price.Mul(decimal.NewFromInt(int64(quantity)))
	return Quote{
		Quantity:  quantity,
		Total:     total,
		UnitPrice: UnitPrice(total, quantity),
	}, nil
}

// UnitPrice divides a total across quantity units for display.
func UnitPrice(total decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(quantity)), displayScale)
}

// ValidateTiers checks a tier table before it is stored. Quantities must be
// positive and unique, prices non-negative, the quantity-1 base must exist,
// and the per-unit price must not rise as quantity grows.
func ValidateTiers(tiers []model.PriceTier) error {
	if len(tiers) == 0 {
		return model.ErrNoBasePrice
	}

	seen := make(map[int]struct{}, len(tiers))
	hasBase := false
	for _, t := range tiers {
		if t.Quantity <= 0 {
			return model.NewDomainError(model.ErrCodeInvalidTiers,
				fmt.Sprintf("tier quantity must be positive, got %d", t.Quantity))
		}
		if t.Price.IsNegative() {
			return model.NewDomainError(model.ErrCodeInvalidTiers,
				fmt.Sprintf("tier price for quantity %d must not be negative", t.Quantity))
		}
		if _, dup := seen[t.Quantity]; dup {
			return model.NewDomainError(model.ErrCodeInvalidTiers,
				fmt.Sprintf("duplicate tier for quantity %d", t.Quantity))
		}
		seen[t.Quantity] = struct{}{}
		if t.Quantity == 1 {
			hasBase = true
		}
	}
	if !hasBase {
		return model.ErrNoBasePrice
	}

	sorted := SortTiers(tiers)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		// cur.Price/cur.Quantity <= prev.Price/prev.Quantity, cross-multiplied.
		lhs := cur.Price.Mul(decimal.NewFromInt(int64(prev.Quantity)))
		rhs := prev.Price.Mul(decimal.NewFromInt(int64(cur.Quantity)))
		if lhs.GreaterThan(rhs) {
			return model.NewDomainError(model.ErrCodeInvalidTiers,
				fmt.Sprintf("tier for quantity %d costs more per unit than tier for quantity %d",
					cur.Quantity, prev.Quantity))
		}
	}

	return nil
}

// SortTiers returns a copy of tiers ordered by ascending quantity.
func SortTiers(tiers []model.PriceTier) []model.PriceTier {
	sorted := make([]model.PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Quantity < sorted[j].Quantity
	})
	return sorted
}

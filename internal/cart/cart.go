// Package cart holds the shopper's cart aggregate and its persistence.
//
// A line item's price is captured when the line is first added. Adding more
// of the same product and variant raises the quantity but keeps the original
// price, so the storefront resets its tier selection after each add.
package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// subtotalScale is the number of decimal places a prorated subtotal keeps.
const subtotalScale = 2

// LineItem is one product variant in the cart.
//
// PricedTotal is the price captured for PricedQuantity units. UnitPrice is
// its per-unit share for display and never feeds a total.
type LineItem struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"productId"`
	VariantID      string          `json:"variantId"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPriceAtAdd"`
	PricedQuantity int             `json:"pricedQuantity"`
	PricedTotal    decimal.Decimal `json:"pricedTotal"`
	Name           string          `json:"name"`
	Flavor         string          `json:"flavor"`
	Image          string          `json:"image"`
}

// Subtotal is the captured price scaled to the line's quantity. It equals
// PricedTotal exactly while the quantity is the one that was priced.
func (li LineItem) Subtotal() decimal.Decimal {
	qty := decimal.NewFromInt(int64(li.Quantity))
	switch {
	case li.PricedQuantity <= 0:
		return li.UnitPrice.Mul(qty)
	case li.Quantity == li.PricedQuantity:
		return li.PricedTotal
	case li.PricedQuantity == 1:
		return li.PricedTotal.Mul(qty)
	}
	return li.PricedTotal.Mul(qty).DivRound(decimal.NewFromInt(int64(li.PricedQuantity)), subtotalScale)
}

// Metadata is display information carried on a line but never interpreted.
type Metadata struct {
	Name   string
	Flavor string
	Image  string
}

// LineItemID derives a line's identity from its composite key.
func LineItemID(productID, variantID string) string {
	return productID + ":" + variantID
}

// Cart is an ordered collection of line items. Totals are always derived
// from the items and never stored.
type Cart struct {
	items []LineItem
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem appends a line or, when the product and variant are already in the
// cart, increases that line's quantity. Non-positive quantities are ignored.
func (c *Cart) AddItem(productID, variantID string, quantity int, unitPrice decimal.Decimal, meta Metadata) {
	c.add(LineItem{
		ProductID:      productID,
		VariantID:      variantID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		PricedQuantity: 1,
		PricedTotal:    unitPrice,
		Name:           meta.Name,
		Flavor:         meta.Flavor,
		Image:          meta.Image,
	})
}

// AddPricedItem is AddItem for a price quoted as a total for quantity units,
// such as a tier price. The line is charged exactly total until its quantity
// changes.
func (c *Cart) AddPricedItem(productID, variantID string, quantity int, total decimal.Decimal, meta Metadata) {
	if quantity <= 0 {
		return
	}
	c.add(LineItem{
		ProductID:      productID,
		VariantID:      variantID,
		Quantity:       quantity,
		UnitPrice:      total.DivRound(decimal.NewFromInt(int64(quantity)), subtotalScale),
		PricedQuantity: quantity,
		PricedTotal:    total,
		Name:           meta.Name,
		Flavor:         meta.Flavor,
		Image:          meta.Image,
	})
}

func (c *Cart) add(li LineItem) {
	if li.Quantity <= 0 {
		return
	}

	if i := c.indexOfKey(li.ProductID, li.VariantID); i >= 0 {
		c.items[i].Quantity += li.Quantity
		return
	}

	li.ID = LineItemID(li.ProductID, li.VariantID)
	c.items = append(c.items, li)
}

// UpdateQuantity replaces a line's quantity. A quantity of zero or less
// removes the line. Unknown ids are ignored.
func (c *Cart) UpdateQuantity(lineItemID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(lineItemID)
		return
	}
	if i := c.indexOf(lineItemID); i >= 0 {
		c.items[i].Quantity = quantity
	}
}

// RemoveItem deletes a line. Unknown ids are ignored.
func (c *Cart) RemoveItem(lineItemID string) {
	i := c.indexOf(lineItemID)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the lines in display order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Item returns the line with the given id.
func (c *Cart) Item(lineItemID string) (LineItem, bool) {
	if i := c.indexOf(lineItemID); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

// Line returns the line holding productID and variantID.
func (c *Cart) Line(productID, variantID string) (LineItem, bool) {
	if i := c.indexOfKey(productID, variantID); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// TotalItems is the sum of all line quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, li := range c.items {
		total += li.Quantity
	}
	return total
}

// TotalAmount is the sum of the line subtotals.
func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, li := range c.items {
		total = total.Add(li.Subtotal())
	}
	return total
}

func (c *Cart) indexOf(lineItemID string) int {
	for i := range c.items {
		if c.items[i].ID == lineItemID {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOfKey(productID, variantID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID && c.items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// Snapshot is the persisted and wire shape of a cart.
type Snapshot struct {
	Items       []LineItem      `json:"items"`
	TotalItems  int             `json:"totalItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// Snapshot captures the cart's items with freshly computed totals.
func (c *Cart) Snapshot() Snapshot {
	return Snapshot{
		Items:       c.Items(),
		TotalItems:  c.TotalItems(),
		TotalAmount: c.TotalAmount(),
	}
}

// FromSnapshot rebuilds a cart from persisted state. Stored totals are
// ignored, rows with a non-positive quantity or missing key are dropped, and
// repeated keys are merged into the first occurrence.
func FromSnapshot(s Snapshot) *Cart {
	c := New()
	for _, li := range s.Items {
		if li.ProductID == "" || li.VariantID == "" {
			continue
		}
		if li.PricedQuantity <= 0 {
			li.PricedQuantity = 1
			li.PricedTotal = li.UnitPrice
		}
		c.add(li)
	}
	return c
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = *FromSnapshot(s)
	return nil
}

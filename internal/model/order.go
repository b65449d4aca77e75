package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents a customer order.
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	CustomerID      *string         `json:"customerId,omitempty" db:"customer_id"`
	IdempotencyKey  string          `json:"-" db:"idempotency_key"`
	Status          OrderStatus     `json:"status" db:"status"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Total           Money           `json:"total"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem is a frozen snapshot of a cart line at submission time.
type OrderItem struct {
	ID        uuid.UUID       `json:"-" db:"id"`
	OrderID   uuid.UUID       `json:"-" db:"order_id"`
	ProductID string          `json:"productId" db:"product_id"`
	VariantID string          `json:"variantId" db:"variant_id"`
	Name      string          `json:"name" db:"name"`
	Flavor    string          `json:"flavor,omitempty" db:"flavor"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Subtotal  decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// LineTotal is what the line is charged. Price is a rounded per-unit figure,
// so it only stands in when no subtotal was captured.
func (i OrderItem) LineTotal() decimal.Decimal {
	if !i.Subtotal.IsZero() {
		return i.Subtotal
	}
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal sums the order's own item snapshots.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ShippingAddress is the destination captured during checkout.
type ShippingAddress struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CreateOrderInput describes an order to be created from a checkout.
type CreateOrderInput struct {
	IdempotencyKey  string
	CustomerID      *string
	Items           []OrderItem
	ShippingAddress ShippingAddress
}

// TransitionRequest asks for an order to move to To. When From is set the
// caller's view of the current status must still hold.
type TransitionRequest struct {
	From  *OrderStatus `json:"from,omitempty"`
	To    OrderStatus  `json:"to"`
	Actor string       `json:"-"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}

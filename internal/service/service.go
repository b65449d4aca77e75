package service

import (
	"context"

	"github.com/google/uuid"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/pricing"
)

// ProductService defines operations for catalog browsing and tier editing.
type ProductService interface {
	// GetAll retrieves products with pagination.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// Quote prices quantity units of a product.
	Quote(ctx context.Context, id string, quantity int) (pricing.Quote, error)

	// UpdateTiers validates and replaces a product's tier table.
	UpdateTiers(ctx context.Context, id string, tiers []model.PriceTier) (*model.Product, error)
}

// CartService defines operations on a shopper's stored cart.
type CartService interface {
	Get(ctx context.Context, cartID string) (cart.Snapshot, error)
	AddItem(ctx context.Context, cartID string, req model.AddItemRequest) (cart.Snapshot, error)
	UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (cart.Snapshot, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (cart.Snapshot, error)
	Clear(ctx context.Context, cartID string) error
}

// OrderService defines the order lifecycle operations.
type OrderService interface {
	// CreateOrder stores a PENDING order unless one already exists for the
	// input's idempotency key. The boolean reports whether it was created.
	CreateOrder(ctx context.Context, in model.CreateOrderInput) (*model.Order, bool, error)

	// GetByID retrieves an order with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// List retrieves orders newest first.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)

	// Transition moves an order to req.To if the transition table allows it
	// and nobody changed the order in the meantime.
	Transition(ctx context.Context, id uuid.UUID, req model.TransitionRequest) (*model.StatusChange, error)

	// HandlePaymentResult applies a gateway callback to a PENDING order.
	HandlePaymentResult(ctx context.Context, id uuid.UUID, succeeded bool) (model.OrderStatus, error)
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront/internal/model"
)

// ProductRepository defines the interface for catalog data access operations.
type ProductRepository interface {
	// List retrieves products with their variants and price tiers.
	List(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product with variants and tiers. It returns
	// nil when the product does not exist.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// ReplaceTiers swaps a product's whole tier table in one transaction.
	ReplaceTiers(ctx context.Context, productID string, tiers []model.PriceTier) error

	// Upsert inserts or updates a product, its variants and its tiers.
	Upsert(ctx context.Context, product *model.Product) error
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// Create inserts the order and its items unless an order with the same
	// idempotency key exists, in which case that order is returned and the
	// boolean is false.
	Create(ctx context.Context, order *model.Order) (*model.Order, bool, error)

	// GetByID retrieves an order with its items. It returns nil when the order
	// does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetStatus reads the current persisted status of an order.
	GetStatus(ctx context.Context, id uuid.UUID) (model.OrderStatus, error)

	// UpdateStatus moves the order from one status to another only if it is
	// still in from. It reports whether the row was updated.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error)

	// List retrieves orders newest first.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
}

package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"
)

// cartService implements CartService on top of a cart store.
type cartService struct {
	carts       cart.Store
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(carts cart.Store, productRepo repository.ProductRepository, logger zerolog.Logger) CartService {
	return &cartService{
		carts:       carts,
		productRepo: productRepo,
		logger:      logger.With().Str("service", "cart").Logger(),
	}
}

// Get returns the cart with freshly computed totals.
func (s *cartService) Get(ctx context.Context, cartID string) (cart.Snapshot, error) {
	c, err := s.load(ctx, cartID)
	if err != nil {
		return cart.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// AddItem prices the requested quantity from the product's tiers and adds
// it to the cart after checking stock across the merged line.
func (s *cartService) AddItem(ctx context.Context, cartID string, req model.AddItemRequest) (cart.Snapshot, error) {
	if req.Quantity <= 0 {
		return cart.Snapshot{}, model.ErrInvalidQuantity
	}

	product, variant, err := s.lookup(ctx, req.ProductID, req.VariantID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	c, err := s.load(ctx, cartID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	inCart := 0
	if li, ok := c.Line(req.ProductID, req.VariantID); ok {
		inCart = li.Quantity
	}
	if inCart+req.Quantity > variant.Stock {
		s.logger.Debug().
			Str("product_id", req.ProductID).
			Str("variant_id", req.VariantID).
			Int("requested", inCart+req.Quantity).
			Int("stock", variant.Stock).
			Msg("insufficient stock")
		return cart.Snapshot{}, model.ErrInsufficientStock
	}

	total, err := pricing.Resolve(product.Tiers, req.Quantity)
	if err != nil {
		return cart.Snapshot{}, err
	}

	c.AddPricedItem(req.ProductID, req.VariantID, req.Quantity, total, cart.Metadata{
		Name:   product.Name,
		Flavor: variant.Flavor,
		Image:  firstNonEmpty(variant.Image, product.Image),
	})

	if err := s.save(ctx, cartID, c); err != nil {
		return cart.Snapshot{}, err
	}

	s.logger.Debug().
		Str("cart_id", cartID).
		Str("product_id", req.ProductID).
		Str("variant_id", req.VariantID).
		Int("quantity", req.Quantity).
		Msg("item added to cart")

	return c.Snapshot(), nil
}

// UpdateQuantity replaces a line's quantity. Zero or less removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (cart.Snapshot, error) {
	c, err := s.load(ctx, cartID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	li, ok := c.Item(itemID)
	if !ok {
		return c.Snapshot(), nil
	}

	if quantity > li.Quantity {
		_, variant, err := s.lookup(ctx, li.ProductID, li.VariantID)
		if err != nil {
			return cart.Snapshot{}, err
		}
		if quantity > variant.Stock {
			return cart.Snapshot{}, model.ErrInsufficientStock
		}
	}

	c.UpdateQuantity(itemID, quantity)
	if err := s.save(ctx, cartID, c); err != nil {
		return cart.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// RemoveItem drops a line. Unknown ids leave the cart unchanged.
func (s *cartService) RemoveItem(ctx context.Context, cartID, itemID string) (cart.Snapshot, error) {
	c, err := s.load(ctx, cartID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	c.RemoveItem(itemID)
	if err := s.save(ctx, cartID, c); err != nil {
		return cart.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Clear deletes the stored cart.
func (s *cartService) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return &model.ValidationError{Fields: map[string]string{"cartId": "is required"}}
	}
	if err := s.carts.Delete(ctx, cartID); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to clear cart")
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *cartService) lookup(ctx context.Context, productID, variantID string) (*model.Product, model.Variant, error) {
	if productID == "" {
		return nil, model.Variant{}, &model.ValidationError{Fields: map[string]string{"productId": "is required"}}
	}
	if variantID == "" {
		return nil, model.Variant{}, &model.ValidationError{Fields: map[string]string{"variantId": "is required"}}
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", productID).Msg("failed to get product")
		return nil, model.Variant{}, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, model.Variant{}, model.ErrProductNotFound
	}

	variant, ok := product.Variant(variantID)
	if !ok {
		return nil, model.Variant{}, model.ErrVariantNotFound
	}
	return product, variant, nil
}

func (s *cartService) load(ctx context.Context, cartID string) (*cart.Cart, error) {
	if cartID == "" {
		return nil, &model.ValidationError{Fields: map[string]string{"cartId": "is required"}}
	}
	c, err := s.carts.Load(ctx, cartID)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to load cart")
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return c, nil
}

func (s *cartService) save(ctx context.Context, cartID string, c *cart.Cart) error {
	if err := s.carts.Save(ctx, cartID, c); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to save cart")
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

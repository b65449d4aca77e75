package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"
)

// productService implements ProductService.
type productService struct {
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(productRepo repository.ProductRepository, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// GetAll retrieves all products with pagination.
func (s *productService) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	limit, offset = clampPage(limit, offset)

	products, err := s.productRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to get all products")
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	s.logger.Debug().
		Int("count", len(products)).
		Int("limit", limit).
		Int("offset", offset).
		Msg("retrieved products")

	return products, nil
}

// GetByID retrieves a single product by ID.
func (s *productService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		s.logger.Warn().Msg("product ID is empty")
		return nil, model.ErrProductNotFound
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("failed to get product by ID")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if product == nil {
		s.logger.Debug().Str("product_id", id).Msg("product not found")
		return nil, model.ErrProductNotFound
	}

	return product, nil
}

// Quote resolves the product's tiers for quantity.
func (s *productService) Quote(ctx context.Context, id string, quantity int) (pricing.Quote, error) {
	product, err := s.GetByID(ctx, id)
	if err != nil {
		return pricing.Quote{}, err
	}

	quote, err := pricing.QuoteFor(product.Tiers, quantity)
	if err != nil {
		s.logger.Debug().Err(err).
			Str("product_id", id).
			Int("quantity", quantity).
			Msg("quote rejected")
		return pricing.Quote{}, err
	}

	return quote, nil
}

// UpdateTiers validates the full table before replacing it.
func (s *productService) UpdateTiers(ctx context.Context, id string, tiers []model.PriceTier) (*model.Product, error) {
	if err := pricing.ValidateTiers(tiers); err != nil {
		s.logger.Warn().Err(err).Str("product_id", id).Msg("rejected tier table")
		return nil, err
	}

	if err := s.productRepo.ReplaceTiers(ctx, id, pricing.SortTiers(tiers)); err != nil {
		if errors.Is(err, model.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to replace tiers: %w", err)
	}

	s.logger.Info().
		Str("product_id", id).
		Int("tiers", len(tiers)).
		Msg("price tiers updated")

	return s.GetByID(ctx, id)
}

// clampPage applies the listing defaults: limit 10, at most 100.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

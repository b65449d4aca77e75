package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// List retrieves products with pagination support.
func (r *productRepository) List(ctx context.Context, limit, offset int) ([]model.Product, error) {
	query := `
		SELECT id, name, description, category, image, created_at
		FROM products
		ORDER BY name, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Image, &p.CreatedAt); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	if err := r.attachDetails(ctx, products); err != nil {
		return nil, err
	}

	return products, nil
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `
		SELECT id, name, description, category, image, created_at
		FROM products
		WHERE id = $1
	`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Image, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	products := []model.Product{p}
	if err := r.attachDetails(ctx, products); err != nil {
		return nil, err
	}

	return &products[0], nil
}

// attachDetails loads variants and tiers for all products in two queries.
func (r *productRepository) attachDetails(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = i
		products[i].Variants = []model.Variant{}
		products[i].Tiers = []model.PriceTier{}
	}

	variantRows, err := r.pool.Query(ctx, `
		SELECT product_id, id, flavor, image, stock
		FROM product_variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, position, id
	`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query variants")
		return fmt.Errorf("failed to query variants: %w", err)
	}
	defer variantRows.Close()

	for variantRows.Next() {
		var v model.Variant
		if err := variantRows.Scan(&v.ProductID, &v.ID, &v.Flavor, &v.Image, &v.Stock); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan variant row")
			return fmt.Errorf("failed to scan variant: %w", err)
		}
		i := index[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	if err := variantRows.Err(); err != nil {
		return fmt.Errorf("error iterating variants: %w", err)
	}

	tierRows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, price
		FROM price_tiers
		WHERE product_id = ANY($1)
		ORDER BY product_id, quantity
	`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query price tiers")
		return fmt.Errorf("failed to query price tiers: %w", err)
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var productID string
		var t model.PriceTier
		if err := tierRows.Scan(&productID, &t.Quantity, &t.Price); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan price tier row")
			return fmt.Errorf("failed to scan price tier: %w", err)
		}
		i := index[productID]
		products[i].Tiers = append(products[i].Tiers, t)
	}
	if err := tierRows.Err(); err != nil {
		return fmt.Errorf("error iterating price tiers: %w", err)
	}

	return nil
}

// ReplaceTiers deletes the product's tiers and inserts the new table.
func (r *productRepository) ReplaceTiers(ctx context.Context, productID string, tiers []model.PriceTier) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return struct{}{}, fmt.Errorf("failed to check product: %w", err)
		}
		if !exists {
			return struct{}{}, model.ErrProductNotFound
		}
		return struct{}{}, replaceTiers(ctx, tx, productID, tiers)
	})
	if err != nil {
		if !errors.Is(err, model.ErrProductNotFound) {
			r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to replace price tiers")
		}
		return err
	}

	r.logger.Info().
		Str("product_id", productID).
		Int("tiers", len(tiers)).
		Msg("price tiers replaced")

	return nil
}

// Upsert writes the product row, its variants and its tiers.
func (r *productRepository) Upsert(ctx context.Context, p *model.Product) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, name, description, category, image)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    description = EXCLUDED.description,
			    category = EXCLUDED.category,
			    image = EXCLUDED.image
		`, p.ID, p.Name, p.Description, p.Category, p.Image)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert product: %w", err)
		}

		variantIDs := make([]string, len(p.Variants))
		batch := &pgx.Batch{}
		for i, v := range p.Variants {
			variantIDs[i] = v.ID
			batch.Queue(`
				INSERT INTO product_variants (product_id, id, flavor, image, stock, position)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (product_id, id) DO UPDATE
				SET flavor = EXCLUDED.flavor,
				    image = EXCLUDED.image,
				    stock = EXCLUDED.stock,
				    position = EXCLUDED.position
			`, p.ID, v.ID, v.Flavor, v.Image, v.Stock, i)
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert variants: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM product_variants WHERE product_id = $1 AND NOT (id = ANY($2))
		`, p.ID, variantIDs); err != nil {
			return struct{}{}, fmt.Errorf("failed to remove stale variants: %w", err)
		}

		return struct{}{}, replaceTiers(ctx, tx, p.ID, p.Tiers)
	})
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", p.ID).Msg("failed to upsert product")
		return err
	}

	r.logger.Debug().
		Str("product_id", p.ID).
		Int("variants", len(p.Variants)).
		Int("tiers", len(p.Tiers)).
		Msg("product upserted")

	return nil
}

func replaceTiers(ctx context.Context, tx pgx.Tx, productID string, tiers []model.PriceTier) error {
	if _, err := tx.Exec(ctx, `DELETE FROM price_tiers WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to delete price tiers: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range tiers {
		batch.Queue(`
			INSERT INTO price_tiers (product_id, quantity, price)
			VALUES ($1, $2, $3)
		`, productID, t.Quantity, t.Price)
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("failed to insert price tiers: %w", err)
	}
	return nil
}

// sendBatch executes every queued statement and reports the first failure.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	return results.Close()
}

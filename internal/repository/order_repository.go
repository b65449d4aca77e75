package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"storefront/internal/model"
)

const orderColumns = `id, customer_id, idempotency_key, status, currency, total_amount, shipping_address, created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// Create inserts the order and its items in one transaction. A second call
// with the same idempotency key returns the order stored by the first.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, bool, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode shipping address: %w", err)
	}

	created, err := withTx(ctx, r.pool, func(tx pgx.Tx) (bool, error) {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (id, customer_id, idempotency_key, status, currency, total_amount, shipping_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id
		`,
			order.ID,
			order.CustomerID,
			order.IdempotencyKey,
			string(order.Status),
			order.Total.Currency.String(),
			order.Total.Amount,
			shipping,
			order.CreatedAt,
			order.UpdatedAt,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("failed to insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			item.OrderID = order.ID
			item.Subtotal = item.LineTotal()
			batch.Queue(`
				INSERT INTO order_items (id, order_id, position, product_id, variant_id, name, flavor, quantity, price, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, item.ID, item.OrderID, i, item.ProductID, item.VariantID, item.Name, item.Flavor, item.Quantity, item.Price, item.Subtotal)
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return false, fmt.Errorf("failed to insert order items: %w", err)
		}

		return true, nil
	})
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return nil, false, err
	}

	if !created {
		existing, err := r.getByKey(ctx, order.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("order with idempotency key %s vanished after conflict", order.IdempotencyKey)
		}
		r.logger.Debug().
			Str("order_id", existing.ID.String()).
			Msg("order already exists for idempotency key")
		return existing, false, nil
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Int("items", len(order.Items)).
		Msg("order created successfully")

	return order, true, nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	if err := r.attachItems(ctx, []*model.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) getByKey(ctx context.Context, key string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query order by idempotency key")
		return nil, fmt.Errorf("failed to query order by idempotency key: %w", err)
	}

	if err := r.attachItems(ctx, []*model.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// GetStatus reads the order's persisted status.
func (r *orderRepository) GetStatus(ctx context.Context, id uuid.UUID) (model.OrderStatus, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", model.ErrOrderNotFound
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order status")
		return "", fmt.Errorf("failed to query order status: %w", err)
	}

	status, err := model.ParseOrderStatus(raw)
	if err != nil {
		return "", fmt.Errorf("status[%s] is not valid: %w", raw, err)
	}
	return status, nil
}

// UpdateStatus performs a compare-and-swap on the status column.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), at, id, string(from))
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("failed to update order status")
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	updated := tag.RowsAffected() == 1
	r.logger.Debug().
		Str("order_id", id.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Bool("updated", updated).
		Msg("order status compare-and-swap")

	return updated, nil
}

// List retrieves orders newest first, optionally filtered by status.
func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + orderColumns + ` FROM orders`)

	args := []any{}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		sb.WriteString(fmt.Sprintf(" WHERE status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*model.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order rows")
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	out := make([]model.Order, len(orders))
	for i, o := range orders {
		out[i] = *o
	}
	return out, nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]*model.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = o
		o.Items = []model.OrderItem{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, name, flavor, quantity, price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("orders", len(ids)).Msg("failed to query order items")
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Name, &item.Flavor, &item.Quantity, &item.Price, &item.Subtotal)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		o := index[item.OrderID]
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	return nil
}

// scanOrder maps one orders row, validating the status and currency tokens.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		order    model.Order
		status   string
		unit     string
		amount   decimal.Decimal
		shipping []byte
	)

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.IdempotencyKey,
		&status,
		&unit,
		&amount,
		&shipping,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status, err = model.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("status[%s] is not valid: %w", status, err)
	}

	cur, err := currency.ParseISO(strings.TrimSpace(unit))
	if err != nil {
		return nil, fmt.Errorf("currency[%s] is not valid: %w", unit, err)
	}
	order.Total = model.Money{Amount: amount, Currency: cur}

	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}

	return &order, nil
}

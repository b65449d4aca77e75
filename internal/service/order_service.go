package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/currency"

	"storefront/internal/events"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// ActorGateway marks transitions driven by a payment callback.
const ActorGateway = "payment-gateway"

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	publisher events.Publisher
	currency  currency.Unit
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOrderService creates a new order service. Totals are stored in unit.
func NewOrderService(
	orderRepo repository.OrderRepository,
	publisher events.Publisher,
	unit currency.Unit,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		publisher: publisher,
		currency:  unit,
		now:       time.Now,
		logger:    logger.With().Str("service", "order").Logger(),
	}
}

// CreateOrder snapshots the input into a PENDING order.
func (s *orderService) CreateOrder(ctx context.Context, in model.CreateOrderInput) (*model.Order, bool, error) {
	if err := s.validateOrderInput(in); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		IdempotencyKey:  in.IdempotencyKey,
		Status:          model.StatusPending,
		Items:           append([]model.OrderItem(nil), in.Items...),
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Total = model.NewMoney(order.ItemsTotal(), s.currency)

	stored, created, err := s.orderRepo.Create(ctx, order)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create order")
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	if created {
		s.logger.Info().
			Str("order_id", stored.ID.String()).
			Int("item_count", len(stored.Items)).
			Str("total", stored.Total.String()).
			Msg("order created successfully")
	}

	return stored, created, nil
}

// GetByID retrieves an order by its ID with all items.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}

	return order, nil
}

// List retrieves orders newest first.
func (s *orderService) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, model.ErrInvalidStatus
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Transition re-reads the order, checks the request against the current
// status and the transition table, then writes with a compare-and-swap so
// that a concurrent change is reported instead of overwritten.
func (s *orderService) Transition(ctx context.Context, id uuid.UUID, req model.TransitionRequest) (*model.StatusChange, error) {
	if !req.To.Valid() {
		return nil, model.ErrInvalidStatus
	}
	if req.From != nil && !req.From.Valid() {
		return nil, model.ErrInvalidStatus
	}

	current, err := s.orderRepo.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read order status: %w", err)
	}

	if req.From != nil && *req.From != current {
		return nil, &model.TransitionError{OrderID: id, From: *req.From, To: req.To, Current: current, Stale: true}
	}
	if current == req.To {
		return nil, &model.TransitionError{OrderID: id, From: current, To: req.To, Current: current, Stale: true}
	}
	if !current.CanTransitionTo(req.To) {
		s.logger.Warn().
			Str("order_id", id.String()).
			Str("from", current.String()).
			Str("to", req.To.String()).
			Msg("transition not allowed")
		return nil, &model.TransitionError{OrderID: id, From: current, To: req.To, Current: current}
	}

	at := s.now().UTC()
	updated, err := s.orderRepo.UpdateStatus(ctx, id, current, req.To, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !updated {
		latest, err := s.orderRepo.GetStatus(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read order status: %w", err)
		}
		s.logger.Info().
			Str("order_id", id.String()).
			Str("expected", current.String()).
			Str("current", latest.String()).
			Msg("order changed concurrently")
		return nil, &model.TransitionError{OrderID: id, From: current, To: req.To, Current: latest, Stale: true}
	}

	change := model.StatusChange{OrderID: id, From: current, To: req.To, Actor: req.Actor, At: at}

	s.logger.Info().
		Str("order_id", id.String()).
		Str("from", current.String()).
		Str("to", req.To.String()).
		Str("actor", req.Actor).
		Msg("order status changed")

	if err := s.publisher.PublishStatusChange(ctx, change); err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to publish status change")
	}

	return &change, nil
}

// HandlePaymentResult moves a PENDING order to PAID or CANCELLED. A repeated
// callback for an order already in the target status succeeds quietly.
func (s *orderService) HandlePaymentResult(ctx context.Context, id uuid.UUID, succeeded bool) (model.OrderStatus, error) {
	to := model.StatusCancelled
	if succeeded {
		to = model.StatusPaid
	}
	from := model.StatusPending

	_, err := s.Transition(ctx, id, model.TransitionRequest{From: &from, To: to, Actor: ActorGateway})
	if err == nil {
		return to, nil
	}

	var te *model.TransitionError
	if errors.As(err, &te) {
		if te.Current == to {
			s.logger.Debug().Str("order_id", id.String()).Str("status", to.String()).Msg("duplicate payment callback")
			return to, nil
		}
		s.logger.Warn().
			Str("order_id", id.String()).
			Str("current", te.Current.String()).
			Bool("succeeded", succeeded).
			Msg("payment callback for order no longer pending")
		return te.Current, err
	}
	return "", err
}

// validateOrderInput validates the order snapshot.
func (s *orderService) validateOrderInput(in model.CreateOrderInput) error {
	if in.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}

	if len(in.Items) == 0 {
		return model.ErrCartEmpty
	}

	for i, item := range in.Items {
		if item.ProductID == "" || item.VariantID == "" {
			return fmt.Errorf("item %d: product and variant are required", i)
		}
		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("invalid item quantity")
			return model.ErrInvalidQuantity
		}
		if item.Price.IsNegative() || item.Subtotal.IsNegative() {
			return fmt.Errorf("item %d: price must not be negative", i)
		}
	}

	return nil
}

package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/payment"
)

// OrderPlacer creates orders idempotently by submission key. The boolean is
// false when an order already existed for the key.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, input model.CreateOrderInput) (*model.Order, bool, error)
}

// Config holds checkout behaviour settings.
type Config struct {
	// PaymentWindow bounds how long Await waits for the gateway callback.
	PaymentWindow  time.Duration
	PaymentMethods []string
	ReturnURL      string
}

type entry struct {
	mu      sync.Mutex
	session Session
	// acked is closed and replaced every time a callback is acknowledged.
	acked chan struct{}
}

func (e *entry) signal() {
	close(e.acked)
	e.acked = make(chan struct{})
}

// Manager owns the in-memory checkout sessions. Access to each session is
// serialised by its own lock, which is released while the gateway is called.
type Manager struct {
	carts   cart.Store
	orders  OrderPlacer
	gateway payment.Gateway
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	byOrder  map[uuid.UUID]string
}

// NewManager creates a checkout manager.
func NewManager(carts cart.Store, orders OrderPlacer, gateway payment.Gateway, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		carts:    carts,
		orders:   orders,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.With().Str("component", "checkout").Logger(),
		now:      time.Now,
		sessions: make(map[string]*entry),
		byOrder:  make(map[uuid.UUID]string),
	}
}

// Start opens a session in the shipping step for a non-empty cart.
func (m *Manager) Start(ctx context.Context, cartID string, customerID *string) (Session, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return Session{}, &model.ValidationError{Fields: map[string]string{"cartId": "is required"}}
	}

	c, err := m.carts.Load(ctx, cartID)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load cart: %w", err)
	}
	if c.IsEmpty() {
		return Session{}, model.ErrCartEmpty
	}

	now := m.now()
	e := &entry{
		session: Session{
			ID:            uuid.NewString(),
			CartID:        cartID,
			CustomerID:    customerID,
			SubmissionKey: uuid.NewString(),
			Step:          StepShipping,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		acked: make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[e.session.ID] = e
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", e.session.ID).
		Str("cart_id", cartID).
		Bool("guest", customerID == nil).
		Msg("checkout started")

	return e.session.clone(), nil
}

// Get returns a copy of the session.
func (m *Manager) Get(sessionID string) (Session, error) {
	e, err := m.entry(sessionID)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), nil
}

// SubmitShipping stores the shipping address and moves to payment.
func (m *Manager) SubmitShipping(sessionID string, addr model.ShippingAddress) (Session, error) {
	return m.update(sessionID, func(s *Session) error {
		return s.SubmitShipping(addr)
	})
}

// SelectPaymentMethod records the shopper's payment method.
func (m *Manager) SelectPaymentMethod(sessionID, method string) (Session, error) {
	return m.update(sessionID, func(s *Session) error {
		return s.SelectPaymentMethod(method, m.cfg.PaymentMethods)
	})
}

// Back returns the session to shipping.
func (m *Manager) Back(sessionID string) (Session, error) {
	return m.update(sessionID, func(s *Session) error {
		return s.Back()
	})
}

// SubmitPayment places the pending order for the session and asks the
// gateway for a payment session. A repeated submission reuses the same
// order. The session stays in payment until Acknowledge records the
// gateway's answer.
func (m *Manager) SubmitPayment(ctx context.Context, sessionID string) (Session, error) {
	e, err := m.entry(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	if err := e.session.readyForPayment(); err != nil {
		e.mu.Unlock()
		return Session{}, err
	}
	if e.session.HasOrder() && e.session.RedirectURL != "" {
		// Already handed to the gateway; the callback is outstanding.
		view := e.session.clone()
		e.mu.Unlock()
		return view, nil
	}
	e.session.Processing = true
	e.session.LastError = ""
	e.session.UpdatedAt = m.now()
	snapshot := e.session.clone()
	e.mu.Unlock()

	log := m.logger.With().Str("session_id", sessionID).Logger()

	order, err := m.placeOrder(ctx, snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to place order")
		return m.finishPayment(e, nil, "", err)
	}

	e.mu.Lock()
	if e.session.SubmissionKey == snapshot.SubmissionKey {
		e.session.attachOrder(order.ID)
	}
	e.mu.Unlock()

	m.mu.Lock()
	m.byOrder[order.ID] = sessionID
	m.mu.Unlock()

	switch order.Status {
	case model.StatusPending:
	case model.StatusPaid:
		// The gateway already confirmed this order.
		m.Acknowledge(ctx, order.ID, true)
		return m.finishPayment(e, &order.ID, "", nil)
	default:
		m.Acknowledge(ctx, order.ID, false)
		return m.finishPayment(e, nil, "", ErrPaymentFailed)
	}

	ps, err := m.gateway.CreateSession(ctx, payment.SessionRequest{
		OrderID:   order.ID,
		Amount:    order.Total,
		ReturnURL: m.cfg.ReturnURL,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("payment session request failed")
		return m.finishPayment(e, &order.ID, "", fmt.Errorf("failed to start payment: %w", err))
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("total", order.Total.String()).
		Msg("payment session created")

	return m.finishPayment(e, &order.ID, ps.RedirectURL, nil)
}

func (m *Manager) placeOrder(ctx context.Context, s Session) (*model.Order, error) {
	c, err := m.carts.Load(ctx, s.CartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if c.IsEmpty() {
		return nil, model.ErrCartEmpty
	}

	lines := c.Items()
	items := make([]model.OrderItem, len(lines))
	for i, li := range lines {
		items[i] = model.OrderItem{
			ProductID: li.ProductID,
			VariantID: li.VariantID,
			Name:      li.Name,
			Flavor:    li.Flavor,
			Quantity:  li.Quantity,
			Price:     li.UnitPrice,
			Subtotal:  li.Subtotal(),
		}
	}

	order, created, err := m.orders.CreateOrder(ctx, model.CreateOrderInput{
		IdempotencyKey:  s.SubmissionKey,
		CustomerID:      s.CustomerID,
		Items:           items,
		ShippingAddress: *s.Shipping,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		m.logger.Info().
			Str("session_id", s.ID).
			Str("order_id", order.ID.String()).
			Msg("reusing order for repeated submission")
	}
	return order, nil
}

// finishPayment clears the processing flag and records the outcome.
func (m *Manager) finishPayment(e *entry, orderID *uuid.UUID, redirectURL string, cause error) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.Processing = false
	e.session.UpdatedAt = m.now()

	if cause != nil {
		if e.session.Step == StepPayment && e.session.LastError == "" {
			e.session.LastError = "Payment could not be started. Please try again."
		}
		return e.session.clone(), cause
	}

	sameOrder := orderID != nil && e.session.OrderID != nil && *e.session.OrderID == *orderID
	if redirectURL != "" && sameOrder && e.session.Step == StepPayment {
		e.session.RedirectURL = redirectURL
	}
	return e.session.clone(), nil
}

// Acknowledge records the gateway's verdict for orderID. Success moves the
// session to confirmation and deletes the cart. Failure keeps the session in
// payment with a retryable error. Orders with no live session are ignored.
func (m *Manager) Acknowledge(ctx context.Context, orderID uuid.UUID, succeeded bool) {
	m.mu.Lock()
	sessionID, ok := m.byOrder[orderID]
	e := m.sessions[sessionID]
	if !succeeded || e == nil {
		delete(m.byOrder, orderID)
	}
	m.mu.Unlock()

	if !ok || e == nil {
		m.logger.Debug().Str("order_id", orderID.String()).Msg("no checkout session for order")
		return
	}

	e.mu.Lock()
	if e.session.OrderID == nil || *e.session.OrderID != orderID || e.session.Step != StepPayment {
		e.mu.Unlock()
		return
	}

	cartID := e.session.CartID
	if succeeded {
		e.session.Step = StepConfirmation
		e.session.LastError = ""
	} else {
		e.session.LastError = ErrPaymentFailed.Message
		e.session.detachOrder()
	}
	e.session.UpdatedAt = m.now()
	e.signal()
	e.mu.Unlock()

	m.logger.Info().
		Str("session_id", sessionID).
		Str("order_id", orderID.String()).
		Bool("succeeded", succeeded).
		Msg("payment acknowledged")

	if succeeded {
		if err := m.carts.Delete(ctx, cartID); err != nil {
			m.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to clear cart after payment")
		}
	}
}

// Await blocks until the gateway's callback is acknowledged, the payment
// window elapses, or ctx is done. On timeout the session is returned with
// ErrPaymentTimeout and the order stays pending. It returns at once when no
// payment is in flight at the gateway.
func (m *Manager) Await(ctx context.Context, sessionID string) (Session, error) {
	e, err := m.entry(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	inFlight := e.session.HasOrder() && e.session.RedirectURL != ""
	if e.session.Step == StepConfirmation || !inFlight {
		view := e.session.clone()
		e.mu.Unlock()
		return view, nil
	}
	acked := e.acked
	e.mu.Unlock()

	timer := time.NewTimer(m.cfg.PaymentWindow)
	defer timer.Stop()

	select {
	case <-acked:
		return m.Get(sessionID)
	case <-timer.C:
		view, err := m.Get(sessionID)
		if err != nil {
			return Session{}, err
		}
		if view.Step == StepConfirmation {
			return view, nil
		}
		return view, ErrPaymentTimeout
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// Abandon drops the session. A later callback for its order is still
// honoured by the order lifecycle, it just has no session to update.
func (m *Manager) Abandon(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	for orderID, sid := range m.byOrder {
		if sid == sessionID {
			delete(m.byOrder, orderID)
		}
	}

	m.logger.Info().Str("session_id", sessionID).Msg("checkout abandoned")
	return nil
}

// Prune removes sessions idle for longer than maxIdle. Sessions that are
// busy or processing a payment are kept.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		expired := !e.session.Processing && e.session.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if !expired {
			continue
		}

		delete(m.sessions, id)
		for orderID, sid := range m.byOrder {
			if sid == id {
				delete(m.byOrder, orderID)
			}
		}
		removed++
	}
	return removed
}

// RunJanitor prunes idle sessions every interval until ctx is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(maxIdle); n > 0 {
				m.logger.Info().Int("removed", n).Msg("pruned idle checkout sessions")
			}
		}
	}
}

func (m *Manager) entry(sessionID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (m *Manager) update(sessionID string, fn func(*Session) error) (Session, error) {
	e, err := m.entry(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(&e.session); err != nil {
		return Session{}, err
	}
	e.session.UpdatedAt = m.now()
	return e.session.clone(), nil
}

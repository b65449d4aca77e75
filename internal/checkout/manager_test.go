package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/payment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockGateway is a mock implementation of payment.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

// fakeOrders creates at most one order per idempotency key.
type fakeOrders struct {
	mu      sync.Mutex
	byKey   map[string]*model.Order
	created int
	err     error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byKey: make(map[string]*model.Order)}
}

func (f *fakeOrders) CreateOrder(_ context.Context, in model.CreateOrderInput) (*model.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, false, f.err
	}
	if existing, ok := f.byKey[in.IdempotencyKey]; ok {
		o := *existing
		return &o, false, nil
	}

	o := &model.Order{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		IdempotencyKey:  in.IdempotencyKey,
		Status:          model.StatusPending,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
	}
	o.Total = model.NewMoney(o.ItemsTotal(), currency.USD)
	f.byKey[in.IdempotencyKey] = o
	f.created++

	out := *o
	return &out, true, nil
}

func (f *fakeOrders) setStatus(id uuid.UUID, status model.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byKey {
		if o.ID == id {
			o.Status = status
		}
	}
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Phone:      "+1 555 010 2030",
		Street:     "12 Analytical Way",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

type fixture struct {
	manager *Manager
	carts   cart.Store
	orders  *fakeOrders
	gateway *MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	carts := cart.NewMemoryStore()
	c := cart.New()
	c.AddItem("P1", "mint", 3, decimal.RequireFromString("7.00"), cart.Metadata{Name: "Bar", Flavor: "Mint"})
	c.AddItem("P2", "mango", 1, decimal.RequireFromString("8.00"), cart.Metadata{Name: "Bar", Flavor: "Mango"})
	require.NoError(t, carts.Save(context.Background(), "cart-1", c))

	orders := newFakeOrders()
	gw := new(MockGateway)
	m := NewManager(carts, orders, gw, Config{
		PaymentWindow:  100 * time.Millisecond,
		PaymentMethods: []string{"card", "crypto"},
		ReturnURL:      "http://shop.test/return",
	}, zerolog.Nop())

	return &fixture{manager: m, carts: carts, orders: orders, gateway: gw}
}

// atPayment opens a session and fills in shipping and payment method.
func (f *fixture) atPayment(t *testing.T) Session {
	t.Helper()

	s, err := f.manager.Start(context.Background(), "cart-1", nil)
	require.NoError(t, err)
	_, err = f.manager.SubmitShipping(s.ID, validAddress())
	require.NoError(t, err)
	s, err = f.manager.SelectPaymentMethod(s.ID, "card")
	require.NoError(t, err)
	require.Equal(t, StepPayment, s.Step)
	return s
}

func redirect(url string) *payment.Session {
	return &payment.Session{RedirectURL: url}
}

func TestManager_StartRequiresCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Start(context.Background(), "  ", nil)
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "cartId")

	_, err = f.manager.Start(context.Background(), "empty-cart", nil)
	assert.ErrorIs(t, err, model.ErrCartEmpty)

	_, err = f.manager.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ShippingAndBack(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), "cart-1", nil)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, s.Step)

	_, err = f.manager.Back(s.ID)
	assert.ErrorIs(t, err, ErrCannotGoBack)

	_, err = f.manager.SelectPaymentMethod(s.ID, "card")
	assert.ErrorIs(t, err, ErrInvalidStep)

	bad := validAddress()
	bad.PostalCode = "1234"
	_, err = f.manager.SubmitShipping(s.ID, bad)
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "must be 5 digits", vErr.Fields["postalCode"])

	s, err = f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, s.Step)
	assert.Nil(t, s.Shipping)

	s, err = f.manager.SubmitShipping(s.ID, validAddress())
	require.NoError(t, err)
	assert.Equal(t, StepPayment, s.Step)

	_, err = f.manager.SelectPaymentMethod(s.ID, "cash")
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "paymentMethod")

	s, err = f.manager.Back(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, s.Step)
	require.NotNil(t, s.Shipping)
	assert.Equal(t, "Ada", s.Shipping.FirstName)
}

func TestManager_SubmitPaymentRequiresPaymentStep(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), "cart-1", nil)
	require.NoError(t, err)

	_, err = f.manager.SubmitPayment(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidStep)

	_, err = f.manager.SubmitShipping(s.ID, validAddress())
	require.NoError(t, err)
	_, err = f.manager.SubmitPayment(context.Background(), s.ID)
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "paymentMethod")

	assert.Zero(t, f.orders.count())
	f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestManager_PaymentSucceeds(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req payment.SessionRequest) bool {
		return req.Amount.Amount.Equal(decimal.RequireFromString("29.00")) &&
			req.ReturnURL == "http://shop.test/return"
	})).Return(redirect("https://pay.test/abc"), nil).Once()

	s, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, s.Step, "sending the request must not confirm")
	assert.False(t, s.Processing)
	assert.Equal(t, "https://pay.test/abc", s.RedirectURL)
	require.NotNil(t, s.OrderID)

	_, err = f.manager.Back(s.ID)
	assert.ErrorIs(t, err, ErrCannotGoBack)
	_, err = f.manager.SubmitShipping(s.ID, validAddress())
	assert.ErrorIs(t, err, ErrInvalidStep)

	f.manager.Acknowledge(context.Background(), *s.OrderID, true)

	s, err = f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, s.Step)

	c, err := f.carts.Load(context.Background(), "cart-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty(), "cart is cleared after confirmation")

	// A duplicate callback changes nothing.
	f.manager.Acknowledge(context.Background(), *s.OrderID, false)
	s, err = f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, s.Step)

	f.gateway.AssertExpectations(t)
}

func TestManager_OrderUsesCapturedTierTotal(t *testing.T) {
	f := newFixture(t)
	c := cart.New()
	c.AddPricedItem("thirds", "plain", 3, decimal.RequireFromString("20.00"), cart.Metadata{Name: "Thirds"})
	require.NoError(t, f.carts.Save(context.Background(), "cart-1", c))
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req payment.SessionRequest) bool {
		return req.Amount.Amount.Equal(decimal.RequireFromString("20.00"))
	})).Return(redirect("https://pay.test/abc"), nil).Once()

	s, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, s.OrderID)
	f.gateway.AssertExpectations(t)
}

func TestManager_RepeatedSubmitReusesOrder(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil).Once()

	first, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	second, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, *first.OrderID, *second.OrderID)
	assert.Equal(t, 1, f.orders.count())
	f.gateway.AssertNumberOfCalls(t, "CreateSession", 1)
}

func TestManager_DoubleClickWhileProcessing(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	release := make(chan struct{})
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(redirect("https://pay.test/abc"), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.SubmitPayment(context.Background(), s.ID)
		done <- err
	}()

	require.Eventually(t, func() bool {
		view, err := f.manager.Get(s.ID)
		return err == nil && view.Processing
	}, time.Second, 5*time.Millisecond)

	_, err := f.manager.SubmitPayment(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	_, err = f.manager.Back(s.ID)
	assert.ErrorIs(t, err, ErrCannotGoBack)

	close(release)
	require.NoError(t, <-done)

	view, err := f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, view.Processing)
	assert.Equal(t, 1, f.orders.count())
}

func TestManager_ConcurrentSubmitCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)

	const clicks = 8
	var wg sync.WaitGroup
	results := make(chan Session, clicks)
	errs := make(chan error, clicks)
	start := make(chan struct{})

	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			view, err := f.manager.SubmitPayment(context.Background(), s.ID)
			if err != nil {
				errs <- err
				return
			}
			results <- view
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrPaymentInProgress)
	}
	orderIDs := map[uuid.UUID]bool{}
	for view := range results {
		require.NotNil(t, view.OrderID)
		orderIDs[*view.OrderID] = true
	}
	assert.Len(t, orderIDs, 1)
	assert.Equal(t, 1, f.orders.count())
}

func TestManager_GatewayFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, &payment.GatewayError{Err: errors.New("connection refused")}).Once()
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(redirect("https://pay.test/abc"), nil).Once()

	failed, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.Error(t, err)
	assert.True(t, payment.IsGatewayFailure(err))
	assert.Equal(t, StepPayment, failed.Step)
	assert.False(t, failed.Processing)
	assert.NotEmpty(t, failed.LastError)
	require.NotNil(t, failed.OrderID, "pending order is kept for reconciliation")

	retried, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, *failed.OrderID, *retried.OrderID)
	assert.Empty(t, retried.LastError)
	assert.Equal(t, 1, f.orders.count())
}

func TestManager_PersistenceFailureClearsProcessing(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)
	f.orders.err = errors.New("db down")

	view, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.Error(t, err)
	assert.Equal(t, StepPayment, view.Step)
	assert.False(t, view.Processing)
	assert.Nil(t, view.OrderID)
	f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestManager_EmptyCartAtPayment(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)
	require.NoError(t, f.carts.Delete(context.Background(), "cart-1"))

	view, err := f.manager.SubmitPayment(context.Background(), s.ID)
	assert.ErrorIs(t, err, model.ErrCartEmpty)
	assert.False(t, view.Processing)
	assert.Zero(t, f.orders.count())
}

func TestManager_PaymentFailureStartsFreshOrder(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)

	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)

	first, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	f.orders.setStatus(*first.OrderID, model.StatusCancelled)

	f.manager.Acknowledge(context.Background(), *first.OrderID, false)

	view, err := f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.Step)
	assert.Nil(t, view.OrderID)
	assert.Equal(t, ErrPaymentFailed.Message, view.LastError)

	// Shipping stays locked because this session already placed an order.
	_, err = f.manager.Back(s.ID)
	assert.ErrorIs(t, err, ErrCannotGoBack)
	_, err = f.manager.SubmitShipping(s.ID, validAddress())
	assert.ErrorIs(t, err, ErrInvalidStep)

	second, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, *first.OrderID, *second.OrderID)
	assert.Equal(t, 2, f.orders.count())

	c, err := f.carts.Load(context.Background(), "cart-1")
	require.NoError(t, err)
	assert.False(t, c.IsEmpty(), "cart survives a failed payment")
}

func TestManager_AwaitTimesOutWithPendingOrder(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)

	_, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)

	view, err := f.manager.Await(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrPaymentTimeout)
	assert.Equal(t, StepPayment, view.Step)
	assert.NotNil(t, view.OrderID)
}

func TestManager_AwaitReturnsAtOnceAfterGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.PaymentWindow = 5 * time.Second
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, &payment.GatewayError{Err: errors.New("connection refused")}).Once()

	failed, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.Error(t, err)
	require.NotNil(t, failed.OrderID)
	require.Empty(t, failed.RedirectURL)

	start := time.Now()
	view, err := f.manager.Await(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StepPayment, view.Step)
	assert.NotEmpty(t, view.LastError)
}

func TestManager_AwaitWakesOnAcknowledge(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.PaymentWindow = 5 * time.Second
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)

	submitted, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)

	type result struct {
		view Session
		err  error
	}
	out := make(chan result, 1)
	go func() {
		view, err := f.manager.Await(context.Background(), s.ID)
		out <- result{view, err}
	}()

	time.Sleep(20 * time.Millisecond)
	f.manager.Acknowledge(context.Background(), *submitted.OrderID, true)

	select {
	case r := <-out:
		require.NoError(t, r.err)
		assert.Equal(t, StepConfirmation, r.view.Step)
	case <-time.After(2 * time.Second):
		t.Fatal("await did not return after acknowledgment")
	}
}

func TestManager_AwaitHonoursContext(t *testing.T) {
	f := newFixture(t)
	f.manager.cfg.PaymentWindow = 5 * time.Second
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)
	_, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.manager.Await(ctx, s.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_AbandonedSessionIgnoresLateCallback(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil)

	submitted, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.Abandon(s.ID))
	assert.ErrorIs(t, f.manager.Abandon(s.ID), ErrSessionNotFound)

	f.manager.Acknowledge(context.Background(), *submitted.OrderID, true)
	f.manager.Acknowledge(context.Background(), uuid.New(), true)

	_, err = f.manager.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_RepeatedSubmitAfterOrderPaid(t *testing.T) {
	f := newFixture(t)
	s := f.atPayment(t)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, &payment.GatewayError{StatusCode: 503, Err: errors.New("busy")}).Once()

	failed, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.Error(t, err)
	f.orders.setStatus(*failed.OrderID, model.StatusPaid)

	view, err := f.manager.SubmitPayment(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, view.Step)
	f.gateway.AssertNumberOfCalls(t, "CreateSession", 1)
}

// TestManager_NoConfirmationWithoutAcknowledgment drives random shopper
// actions and checks that only a success acknowledgment confirms.
func TestManager_NoConfirmationWithoutAcknowledgment(t *testing.T) {
	faker := gofakeit.New(11)

	for run := 0; run < 10; run++ {
		f := newFixture(t)
		f.manager.cfg.PaymentWindow = time.Millisecond
		f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(redirect("https://pay.test/abc"), nil).Maybe()

		s := f.atPayment(t)

		for step := 0; step < 40; step++ {
			switch faker.IntRange(0, 5) {
			case 0:
				_, _ = f.manager.SubmitPayment(context.Background(), s.ID)
			case 1:
				_, _ = f.manager.Back(s.ID)
			case 2:
				_, _ = f.manager.SubmitShipping(s.ID, validAddress())
			case 3:
				_, _ = f.manager.SelectPaymentMethod(s.ID, faker.RandomString([]string{"card", "crypto", "cash"}))
			case 4:
				_, _ = f.manager.Await(context.Background(), s.ID)
			case 5:
				view, err := f.manager.Get(s.ID)
				require.NoError(t, err)
				if view.OrderID != nil {
					f.manager.Acknowledge(context.Background(), *view.OrderID, false)
				}
			}

			view, err := f.manager.Get(s.ID)
			require.NoError(t, err)
			require.NotEqual(t, StepConfirmation, view.Step)
			require.False(t, view.Processing)
		}
	}
}

func TestManager_PruneAndJanitor(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.manager.now = func() time.Time { return now }

	old, err := f.manager.Start(context.Background(), "cart-1", nil)
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	fresh, err := f.manager.Start(context.Background(), "cart-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.manager.Prune(30*time.Minute))

	_, err = f.manager.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.manager.Get(fresh.ID)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.manager.RunJanitor(ctx, time.Millisecond, time.Hour)
		close(stopped)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-stopped
}

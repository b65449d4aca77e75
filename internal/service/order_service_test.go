package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"storefront/internal/events"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, bool, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Order), args.Bool(1), args.Error(2)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetStatus(ctx context.Context, id uuid.UUID) (model.OrderStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.OrderStatus), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

// MockPublisher is a mock implementation of events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

// casRepository holds statuses in memory and applies UpdateStatus as a
// compare-and-swap, like the SQL implementation.
type casRepository struct {
	MockOrderRepository

	mu       sync.Mutex
	statuses map[uuid.UUID]model.OrderStatus
	// beforeSwap runs after the service read the status and before the swap.
	beforeSwap func()
}

func newCASRepository(id uuid.UUID, status model.OrderStatus) *casRepository {
	return &casRepository{statuses: map[uuid.UUID]model.OrderStatus{id: status}}
}

func (r *casRepository) GetStatus(_ context.Context, id uuid.UUID) (model.OrderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[id]
	if !ok {
		return "", model.ErrOrderNotFound
	}
	return status, nil
}

func (r *casRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus, _ time.Time) (bool, error) {
	if r.beforeSwap != nil {
		r.beforeSwap()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[id] != from {
		return false, nil
	}
	r.statuses[id] = to
	return true, nil
}

func (r *casRepository) status(id uuid.UUID) model.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func newTestOrderService(repo repository.OrderRepository, pub events.Publisher) *orderService {
	svc := NewOrderService(repo, pub, currency.USD, zerolog.Nop()).(*orderService)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}

func createInput() model.CreateOrderInput {
	return model.CreateOrderInput{
		IdempotencyKey: "key-1",
		Items: []model.OrderItem{
			{ProductID: "velo", VariantID: "mint", Name: "Velo", Quantity: 3, Price: dec("7.00")},
			{ProductID: "zyn", VariantID: "citrus", Name: "Zyn", Quantity: 1, Price: dec("8.00")},
		},
		ShippingAddress: model.ShippingAddress{FirstName: "Ada", City: "Austin"},
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot is stored pending with computed total", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestOrderService(repo, new(MockPublisher))

		repo.On("Create", ctx, mock.MatchedBy(func(o *model.Order) bool {
			return o.Status == model.StatusPending &&
				o.IdempotencyKey == "key-1" &&
				o.Total.Amount.Equal(dec("29.00")) &&
				o.Total.Currency == currency.USD &&
				len(o.Items) == 2
		})).Return(&model.Order{ID: uuid.New(), Status: model.StatusPending}, true, nil)

		order, created, err := svc.CreateOrder(ctx, createInput())
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, model.StatusPending, order.Status)
		repo.AssertExpectations(t)
	})

	t.Run("total uses captured line subtotals", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestOrderService(repo, new(MockPublisher))

		in := createInput()
		in.Items = []model.OrderItem{
			{ProductID: "thirds", VariantID: "plain", Name: "Thirds", Quantity: 3, Price: dec("6.67"), Subtotal: dec("20.00")},
		}

		repo.On("Create", ctx, mock.MatchedBy(func(o *model.Order) bool {
			return o.Total.Amount.Equal(dec("20.00"))
		})).Return(&model.Order{ID: uuid.New(), Status: model.StatusPending}, true, nil)

		_, _, err := svc.CreateOrder(ctx, in)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("existing order is returned for a repeated key", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestOrderService(repo, new(MockPublisher))

		existing := &model.Order{ID: uuid.New(), Status: model.StatusPending}
		repo.On("Create", ctx, mock.Anything).Return(existing, false, nil)

		order, created, err := svc.CreateOrder(ctx, createInput())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, order.ID)
	})

	tests := []struct {
		name        string
		modify      func(*model.CreateOrderInput)
		expectedErr error
	}{
		{name: "no items", modify: func(in *model.CreateOrderInput) { in.Items = nil }, expectedErr: model.ErrCartEmpty},
		{name: "zero quantity", modify: func(in *model.CreateOrderInput) { in.Items[0].Quantity = 0 }, expectedErr: model.ErrInvalidQuantity},
		{name: "missing key", modify: func(in *model.CreateOrderInput) { in.IdempotencyKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			svc := newTestOrderService(repo, new(MockPublisher))

			in := createInput()
			tt.modify(&in)
			_, _, err := svc.CreateOrder(ctx, in)

			require.Error(t, err)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			}
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("repository error", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestOrderService(repo, new(MockPublisher))
		repo.On("Create", ctx, mock.Anything).Return(nil, false, errors.New("database error"))

		_, _, err := svc.CreateOrder(ctx, createInput())
		assert.ErrorContains(t, err, "failed to create order")
	})
}

func TestOrderService_TransitionTableClosure(t *testing.T) {
	ctx := context.Background()

	for _, from := range model.OrderStatuses {
		for _, to := range model.OrderStatuses {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				id := uuid.New()
				repo := newCASRepository(id, from)
				pub := new(MockPublisher)
				pub.On("PublishStatusChange", ctx, mock.Anything).Return(nil).Maybe()
				svc := newTestOrderService(repo, pub)

				change, err := svc.Transition(ctx, id, model.TransitionRequest{To: to, Actor: "admin"})

				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, from, change.From)
					assert.Equal(t, to, change.To)
					assert.Equal(t, to, repo.status(id))
					pub.AssertNumberOfCalls(t, "PublishStatusChange", 1)
					return
				}

				var te *model.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, from, te.Current)
				assert.Equal(t, from, repo.status(id), "rejected transitions never write")
				if from == to {
					assert.ErrorIs(t, err, model.ErrStaleStatus)
				} else {
					assert.ErrorIs(t, err, model.ErrInvalidTransition)
				}
				pub.AssertNotCalled(t, "PublishStatusChange", mock.Anything, mock.Anything)
			})
		}
	}
}

func TestOrderService_TransitionRejectsOutdatedFrom(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	repo := newCASRepository(id, model.StatusShipped)
	svc := newTestOrderService(repo, new(MockPublisher))

	paid := model.StatusPaid
	_, err := svc.Transition(ctx, id, model.TransitionRequest{From: &paid, To: model.StatusCancelled})

	var te *model.TransitionError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Stale)
	assert.Equal(t, model.StatusShipped, te.Current)
	assert.ErrorIs(t, err, model.ErrStaleStatus)
}

// Two admins act on a PAID order at once: one ships, one cancels. The
// loser's compare-and-swap fails and it is told the order's current status.
func TestOrderService_ConcurrentAdminsOneWins(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	repo := newCASRepository(id, model.StatusPaid)

	pub := new(MockPublisher)
	pub.On("PublishStatusChange", ctx, mock.Anything).Return(nil)
	svc := newTestOrderService(repo, pub)

	// Hold both writers until each has read PAID.
	var read sync.WaitGroup
	read.Add(2)
	repo.beforeSwap = func() {
		read.Done()
		read.Wait()
	}

	targets := []model.OrderStatus{model.StatusShipped, model.StatusCancelled}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to model.OrderStatus) {
			defer wg.Done()
			_, errs[i] = svc.Transition(ctx, id, model.TransitionRequest{To: to, Actor: "admin"})
		}(i, to)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Equal(t, targets[i], repo.status(id))
			continue
		}
		var te *model.TransitionError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Stale)
		assert.Equal(t, repo.status(id), te.Current)
	}
	assert.Equal(t, 1, winners)
	pub.AssertNumberOfCalls(t, "PublishStatusChange", 1)
}

func TestOrderService_PublishFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	repo := newCASRepository(id, model.StatusPending)

	pub := new(MockPublisher)
	pub.On("PublishStatusChange", ctx, mock.Anything).Return(errors.New("redis down"))
	svc := newTestOrderService(repo, pub)

	change, err := svc.Transition(ctx, id, model.TransitionRequest{To: model.StatusPaid})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, change.To)
	assert.Equal(t, model.StatusPaid, repo.status(id))
}

func TestOrderService_TransitionErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown target status", func(t *testing.T) {
		svc := newTestOrderService(new(MockOrderRepository), new(MockPublisher))
		_, err := svc.Transition(ctx, uuid.New(), model.TransitionRequest{To: "LOST"})
		assert.ErrorIs(t, err, model.ErrInvalidStatus)
	})

	t.Run("unknown order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestOrderService(repo, new(MockPublisher))
		id := uuid.New()
		repo.On("GetStatus", ctx, id).Return(model.OrderStatus(""), model.ErrOrderNotFound)

		_, err := svc.Transition(ctx, id, model.TransitionRequest{To: model.StatusPaid})
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}

func TestOrderService_HandlePaymentResult(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		start      model.OrderStatus
		succeeded  bool
		wantStatus model.OrderStatus
		wantErr    error
	}{
		{name: "success pays", start: model.StatusPending, succeeded: true, wantStatus: model.StatusPaid},
		{name: "failure cancels", start: model.StatusPending, succeeded: false, wantStatus: model.StatusCancelled},
		{name: "duplicate success", start: model.StatusPaid, succeeded: true, wantStatus: model.StatusPaid},
		{name: "duplicate failure", start: model.StatusCancelled, succeeded: false, wantStatus: model.StatusCancelled},
		{name: "success after cancel", start: model.StatusCancelled, succeeded: true, wantStatus: model.StatusCancelled, wantErr: model.ErrStaleStatus},
		{name: "failure after shipping", start: model.StatusShipped, succeeded: false, wantStatus: model.StatusShipped, wantErr: model.ErrStaleStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			repo := newCASRepository(id, tt.start)
			pub := new(MockPublisher)
			pub.On("PublishStatusChange", ctx, mock.MatchedBy(func(c model.StatusChange) bool {
				return c.Actor == ActorGateway
			})).Return(nil).Maybe()
			svc := newTestOrderService(repo, pub)

			status, err := svc.HandlePaymentResult(ctx, id, tt.succeeded)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, repo.status(id))
		})
	}
}

func TestOrderService_GetByIDAndList(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	svc := newTestOrderService(repo, new(MockPublisher))

	missing := uuid.New()
	repo.On("GetByID", ctx, missing).Return(nil, nil)
	_, err := svc.GetByID(ctx, missing)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	repo.On("List", ctx, model.OrderFilter{Limit: 10}).Return([]model.Order{}, nil)
	orders, err := svc.List(ctx, model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	bad := model.OrderStatus("LOST")
	_, err = svc.List(ctx, model.OrderFilter{Status: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
}

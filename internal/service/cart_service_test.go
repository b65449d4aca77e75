package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/cart"
	"storefront/internal/model"
)

func newCartFixture(t *testing.T) (CartService, cart.Store, *MockProductRepository) {
	t.Helper()
	store := cart.NewMemoryStore()
	repo := new(MockProductRepository)
	repo.On("GetByID", context.Background(), "velo").Return(testProduct(), nil).Maybe()
	repo.On("GetByID", context.Background(), "thirds").Return(unevenTierProduct(), nil).Maybe()
	repo.On("GetByID", context.Background(), "missing").Return(nil, nil).Maybe()
	return NewCartService(store, repo, zerolog.Nop()), store, repo
}

// unevenTierProduct has a bundle price that does not split into whole cents.
func unevenTierProduct() *model.Product {
	return &model.Product{
		ID:       "thirds",
		Name:     "Thirds",
		Variants: []model.Variant{{ID: "plain", ProductID: "thirds", Flavor: "Plain", Stock: 10}},
		Tiers: []model.PriceTier{
			{Quantity: 1, Price: dec("8.00")},
			{Quantity: 3, Price: dec("20.00")},
		},
	}
}

func TestCartService_AddItem(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		req         model.AddItemRequest
		expectedErr error
		wantItems   int
		wantTotal   string
	}{
		{
			name:      "tier price captured per unit",
			req:       model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 3},
			wantItems: 3,
			wantTotal: "21.00",
		},
		{
			name:      "tier total that does not divide evenly",
			req:       model.AddItemRequest{ProductID: "thirds", VariantID: "plain", Quantity: 3},
			wantItems: 3,
			wantTotal: "20.00",
		},
		{
			name:      "base price",
			req:       model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 2},
			wantItems: 2,
			wantTotal: "16.00",
		},
		{
			name:        "zero quantity",
			req:         model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 0},
			expectedErr: model.ErrInvalidQuantity,
		},
		{
			name:        "unknown product",
			req:         model.AddItemRequest{ProductID: "missing", VariantID: "mint", Quantity: 1},
			expectedErr: model.ErrProductNotFound,
		},
		{
			name:        "unknown variant",
			req:         model.AddItemRequest{ProductID: "velo", VariantID: "cola", Quantity: 1},
			expectedErr: model.ErrVariantNotFound,
		},
		{
			name:        "out of stock",
			req:         model.AddItemRequest{ProductID: "velo", VariantID: "berry", Quantity: 1},
			expectedErr: model.ErrInsufficientStock,
		},
		{
			name:        "more than stock",
			req:         model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 11},
			expectedErr: model.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _ := newCartFixture(t)

			snap, err := service.AddItem(ctx, "cart-1", tt.req)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItems, snap.TotalItems)
			assert.True(t, dec(tt.wantTotal).Equal(snap.TotalAmount), "total %s", snap.TotalAmount)
		})
	}
}

func TestCartService_AddItemMergesAndKeepsPrice(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newCartFixture(t)

	_, err := service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 3})
	require.NoError(t, err)
	snap, err := service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, snap.Items, 1)
	assert.Equal(t, 4, snap.Items[0].Quantity)
	assert.True(t, dec("7.00").Equal(snap.Items[0].UnitPrice), "the first captured unit price is kept")
	assert.True(t, dec("28.00").Equal(snap.TotalAmount))

	stored, err := store.Load(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalItems())
}

func TestCartService_StockCountsMergedLine(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newCartFixture(t)

	_, err := service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 8})
	require.NoError(t, err)

	_, err = service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 3})
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
}

func TestCartService_UpdateRemoveClear(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newCartFixture(t)
	itemID := cart.LineItemID("velo", "mint")

	_, err := service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 2})
	require.NoError(t, err)

	snap, err := service.UpdateQuantity(ctx, "cart-1", itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.TotalItems)

	_, err = service.UpdateQuantity(ctx, "cart-1", itemID, 50)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	snap, err = service.UpdateQuantity(ctx, "cart-1", "nope:nope", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.TotalItems, "unknown line is a no-op")

	snap, err = service.UpdateQuantity(ctx, "cart-1", itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)

	_, err = service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 1})
	require.NoError(t, err)
	snap, err = service.RemoveItem(ctx, "cart-1", itemID)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)

	_, err = service.AddItem(ctx, "cart-1", model.AddItemRequest{ProductID: "velo", VariantID: "mint", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, service.Clear(ctx, "cart-1"))
	snap, err = service.Get(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalItems)
}

func TestCartService_RequiresCartID(t *testing.T) {
	service, _, _ := newCartFixture(t)

	_, err := service.Get(context.Background(), "")

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "cartId")
}

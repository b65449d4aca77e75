package model

// AddItemRequest adds a product variant to a cart. The price is resolved
// server-side, never taken from the client.
type AddItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// UpdateItemRequest replaces a cart line's quantity.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// StartCheckoutRequest opens a checkout session for a cart.
type StartCheckoutRequest struct {
	CartID string `json:"cartId"`
}

// PaymentMethodRequest selects the shopper's payment method.
type PaymentMethodRequest struct {
	Method string `json:"method"`
}

// UpdateTiersRequest replaces a product's tier table.
type UpdateTiersRequest struct {
	Tiers []PriceTier `json:"tiers"`
}

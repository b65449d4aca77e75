package router

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Health   *handler.HealthHandler
	Product  *handler.ProductHandler
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Payment  *handler.PaymentHandler
	Order    *handler.OrderHandler
}

// Options carries the security settings applied by the router.
type Options struct {
	APIKey              string
	CustomerTokenSecret string
	CORSOrigins         []string
	// PayLimiter throttles payment submissions. Nil disables throttling.
	PayLimiter *middleware.RateLimiter
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, logger zerolog.Logger) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusNotFound, model.ErrorResponse{Error: "NOT_FOUND", Message: "route not found"})
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	// CORS answers preflight requests.
	router.HandleOPTIONS = false

	admin := middleware.APIKeyAuth(opts.APIKey, logger)
	pay := func(next http.Handler) http.Handler { return next }
	if opts.PayLimiter != nil {
		pay = opts.PayLimiter.Limit
	}

	// Health check endpoints (no authentication required)
	router.HandlerFunc(http.MethodGet, "/health", h.Health.Health)
	router.HandlerFunc(http.MethodGet, "/ready", h.Health.Ready)

	// Catalog
	router.HandlerFunc(http.MethodGet, "/api/products", h.Product.GetAll)
	router.HandlerFunc(http.MethodGet, "/api/products/:id", h.Product.GetByID)
	router.HandlerFunc(http.MethodGet, "/api/products/:id/price", h.Product.Quote)

	// Cart
	router.HandlerFunc(http.MethodGet, "/api/carts/:cartId", h.Cart.Get)
	router.HandlerFunc(http.MethodDelete, "/api/carts/:cartId", h.Cart.Clear)
	router.HandlerFunc(http.MethodPost, "/api/carts/:cartId/items", h.Cart.AddItem)
	router.HandlerFunc(http.MethodPut, "/api/carts/:cartId/items/:itemId", h.Cart.UpdateItem)
	router.HandlerFunc(http.MethodDelete, "/api/carts/:cartId/items/:itemId", h.Cart.RemoveItem)

	// Checkout
	router.HandlerFunc(http.MethodPost, "/api/checkout", h.Checkout.Start)
	router.HandlerFunc(http.MethodGet, "/api/checkout/:sessionId", h.Checkout.Get)
	router.HandlerFunc(http.MethodDelete, "/api/checkout/:sessionId", h.Checkout.Abandon)
	router.HandlerFunc(http.MethodPut, "/api/checkout/:sessionId/shipping", h.Checkout.Shipping)
	router.HandlerFunc(http.MethodPut, "/api/checkout/:sessionId/payment-method", h.Checkout.PaymentMethod)
	router.HandlerFunc(http.MethodPost, "/api/checkout/:sessionId/back", h.Checkout.Back)
	router.Handler(http.MethodPost, "/api/checkout/:sessionId/pay", pay(http.HandlerFunc(h.Checkout.Pay)))
	router.HandlerFunc(http.MethodGet, "/api/checkout/:sessionId/await", h.Checkout.Await)

	// Gateway callback, authenticated by its signature
	router.HandlerFunc(http.MethodPost, "/api/payments/callback", h.Payment.Callback)

	// Admin (X-API-Key)
	router.Handler(http.MethodGet, "/api/admin/orders", admin(http.HandlerFunc(h.Order.List)))
	router.Handler(http.MethodGet, "/api/admin/orders/:id", admin(http.HandlerFunc(h.Order.GetByID)))
	router.Handler(http.MethodPost, "/api/admin/orders/:id/status", admin(http.HandlerFunc(h.Order.Transition)))
	router.Handler(http.MethodGet, "/api/admin/orders/:id/packing-slip", admin(http.HandlerFunc(h.Order.PackingSlip)))
	router.Handler(http.MethodPut, "/api/admin/products/:id/tiers", admin(http.HandlerFunc(h.Product.UpdateTiers)))

	// Apply middleware in order: Recovery -> RequestID -> Logging -> CORS -> Customer
	return middleware.Chain(router,
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.Customer(opts.CustomerTokenSecret, logger),
	)
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, body model.ErrorResponse) {
	body.CorrelationID = middleware.RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

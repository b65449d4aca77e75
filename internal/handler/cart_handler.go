package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/service"
)

// CartHandler handles cart HTTP requests. The cart id is chosen by the
// client and names the stored cart.
type CartHandler struct {
	service service.CartService
	logger  zerolog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(service service.CartService, logger zerolog.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		logger:  logger.With().Str("handler", "cart").Logger(),
	}
}

// Get handles GET /api/carts/:cartId requests.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(r.Context(), param(r, "cartId"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// AddItem handles POST /api/carts/:cartId/items requests.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req model.AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	snapshot, err := h.service.AddItem(r.Context(), param(r, "cartId"), req)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// UpdateItem handles PUT /api/carts/:cartId/items/:itemId requests.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	snapshot, err := h.service.UpdateQuantity(r.Context(), param(r, "cartId"), param(r, "itemId"), req.Quantity)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// RemoveItem handles DELETE /api/carts/:cartId/items/:itemId requests.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.RemoveItem(r.Context(), param(r, "cartId"), param(r, "itemId"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Clear handles DELETE /api/carts/:cartId requests.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), param(r, "cartId")); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

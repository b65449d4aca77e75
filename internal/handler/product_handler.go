package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/service"
)

// ProductHandler handles product-related HTTP requests.
type ProductHandler struct {
	service service.ProductService
	logger  zerolog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(service service.ProductService, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger.With().Str("handler", "product").Logger(),
	}
}

// GetAll handles GET /api/products requests with pagination.
func (h *ProductHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error(), h.logger)
		return
	}

	products, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// GetByID handles GET /api/products/:id requests.
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetByID(r.Context(), param(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	if product == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeProductNotFound, model.ErrProductNotFound.Message, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// Quote handles GET /api/products/:id/price?quantity=N requests.
func (h *ProductHandler) Quote(w http.ResponseWriter, r *http.Request) {
	quantity := 1
	if s := r.URL.Query().Get("quantity"); s != "" {
		var err error
		quantity, err = strconv.Atoi(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidQuantity, "invalid quantity parameter", h.logger)
			return
		}
	}

	quote, err := h.service.Quote(r.Context(), param(r, "id"), quantity)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// UpdateTiers handles PUT /api/admin/products/:id/tiers requests.
func (h *ProductHandler) UpdateTiers(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateTiersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	product, err := h.service.UpdateTiers(r.Context(), param(r, "id"), req.Tiers)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	h.logger.Info().Str("product_id", product.ID).Int("tiers", len(product.Tiers)).Msg("price tiers replaced")
	writeJSON(w, http.StatusOK, product)
}

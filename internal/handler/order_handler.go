package handler

import (
	"bytes"
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/internal/slip"
)

// ActorAdmin names status changes made through the admin API.
const ActorAdmin = "admin"

// OrderHandler handles admin order HTTP requests.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// List handles GET /api/admin/orders?status=&limit=&offset= requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error(), h.logger)
		return
	}

	filter := model.OrderFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := model.ParseOrderStatus(s)
		if err != nil {
			writeDomainError(w, r, err, h.logger)
			return
		}
		filter.Status = &status
	}

	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetByID handles GET /api/admin/orders/:id requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	order, ok := h.order(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Transition handles POST /api/admin/orders/:id/status requests.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid order ID format", h.logger)
		return
	}

	var req model.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}
	req.Actor = ActorAdmin

	change, err := h.service.Transition(r.Context(), orderID, req)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// PackingSlip handles GET /api/admin/orders/:id/packing-slip requests.
func (h *OrderHandler) PackingSlip(w http.ResponseWriter, r *http.Request) {
	order, ok := h.order(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := slip.Render(&buf, order); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=packing-slip-"+order.ID.String()+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *OrderHandler) order(w http.ResponseWriter, r *http.Request) (*model.Order, bool) {
	orderID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid order ID format", h.logger)
		return nil, false
	}

	order, err := h.service.GetByID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return nil, false
	}
	return order, true
}

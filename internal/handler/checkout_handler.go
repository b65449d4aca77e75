package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/checkout"
	"storefront/internal/middleware"
	"storefront/internal/model"
)

// CheckoutFlow is the checkout session API used by the handler.
type CheckoutFlow interface {
	Start(ctx context.Context, cartID string, customerID *string) (checkout.Session, error)
	Get(sessionID string) (checkout.Session, error)
	SubmitShipping(sessionID string, addr model.ShippingAddress) (checkout.Session, error)
	SelectPaymentMethod(sessionID, method string) (checkout.Session, error)
	Back(sessionID string) (checkout.Session, error)
	SubmitPayment(ctx context.Context, sessionID string) (checkout.Session, error)
	Await(ctx context.Context, sessionID string) (checkout.Session, error)
	Abandon(sessionID string) error
}

// CheckoutHandler handles checkout session HTTP requests.
type CheckoutHandler struct {
	flow   CheckoutFlow
	logger zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(flow CheckoutFlow, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		flow:   flow,
		logger: logger.With().Str("handler", "checkout").Logger(),
	}
}

// Start handles POST /api/checkout requests.
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	session, err := h.flow.Start(r.Context(), req.CartID, middleware.CustomerFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /api/checkout/:sessionId requests.
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.flow.Get(param(r, "sessionId"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Shipping handles PUT /api/checkout/:sessionId/shipping requests.
func (h *CheckoutHandler) Shipping(w http.ResponseWriter, r *http.Request) {
	var addr model.ShippingAddress
	if err := decodeJSON(w, r, &addr); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	session, err := h.flow.SubmitShipping(param(r, "sessionId"), addr)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// PaymentMethod handles PUT /api/checkout/:sessionId/payment-method requests.
func (h *CheckoutHandler) PaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	session, err := h.flow.SelectPaymentMethod(param(r, "sessionId"), req.Method)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Back handles POST /api/checkout/:sessionId/back requests.
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	session, err := h.flow.Back(param(r, "sessionId"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Pay handles POST /api/checkout/:sessionId/pay requests. The order is
// pending until the gateway calls back, so success is 202.
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	session, err := h.flow.SubmitPayment(r.Context(), param(r, "sessionId"))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	status := http.StatusAccepted
	if session.Step == checkout.StepConfirmation {
		status = http.StatusOK
	}
	writeJSON(w, status, session)
}

// Await handles GET /api/checkout/:sessionId/await requests. When the
// payment window passes without a callback the pending view is returned
// with 202 so the client can keep polling.
func (h *CheckoutHandler) Await(w http.ResponseWriter, r *http.Request) {
	session, err := h.flow.Await(r.Context(), param(r, "sessionId"))
	if errors.Is(err, checkout.ErrPaymentTimeout) {
		h.logger.Info().Str("session_id", session.ID).Msg("payment confirmation still pending")
		writeJSON(w, http.StatusAccepted, session)
		return
	}
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Abandon handles DELETE /api/checkout/:sessionId requests.
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Abandon(param(r, "sessionId")); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

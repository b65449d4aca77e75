package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/service"
)

// SignatureHeader carries the callback body's HMAC.
const SignatureHeader = "X-Signature"

// PaymentAcknowledger is told the outcome of a payment for an order.
type PaymentAcknowledger interface {
	Acknowledge(ctx context.Context, orderID uuid.UUID, succeeded bool)
}

// PaymentHandler receives gateway callbacks.
type PaymentHandler struct {
	orders service.OrderService
	acks   PaymentAcknowledger
	secret string
	logger zerolog.Logger
}

// NewPaymentHandler creates a new payment callback handler. An empty secret
// disables signature checks.
func NewPaymentHandler(orders service.OrderService, acks PaymentAcknowledger, secret string, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders: orders,
		acks:   acks,
		secret: secret,
		logger: logger.With().Str("handler", "payment").Logger(),
	}
}

type callbackResponse struct {
	OrderID uuid.UUID         `json:"orderId"`
	Status  model.OrderStatus `json:"status"`
}

// Callback handles POST /api/payments/callback requests. The order is moved
// first and the checkout session is told afterwards, so a session never
// confirms an order that is not paid.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "could not read callback body", h.logger)
		return
	}

	if err := payment.VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeInvalidSignature, "callback signature does not match", h.logger)
		return
	}

	cb, err := payment.ParseCallback(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	status, err := h.orders.HandlePaymentResult(r.Context(), cb.OrderID, cb.Succeeded())
	if status == model.StatusPaid || status == model.StatusCancelled {
		h.acks.Acknowledge(r.Context(), cb.OrderID, status == model.StatusPaid)
	}
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	h.logger.Info().
		Str("order_id", cb.OrderID.String()).
		Str("outcome", cb.Status).
		Str("status", status.String()).
		Msg("payment callback applied")

	writeJSON(w, http.StatusOK, callbackResponse{OrderID: cb.OrderID, Status: status})
}

// Package checkout drives one purchase attempt from shipping through payment
// to confirmation.
//
// A session only ever reaches confirmation when the payment gateway's
// success callback is acknowledged. Sending a payment request is not enough.
package checkout

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/model"
)

// Step is a checkout session state.
type Step string

const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var (
	ErrSessionNotFound   = model.NewDomainError(model.ErrCodeSessionNotFound, "Checkout session not found")
	ErrInvalidStep       = model.NewDomainError(model.ErrCodeInvalidStep, "This action is not available at the current checkout step")
	ErrCannotGoBack      = model.NewDomainError(model.ErrCodeInvalidStep, "Cannot return to shipping after an order has been placed")
	ErrPaymentInProgress = model.NewDomainError(model.ErrCodePaymentInProgress, "A payment is already being processed")
	ErrPaymentTimeout    = model.NewDomainError(model.ErrCodePaymentPending, "Payment confirmation has not arrived yet")
	ErrPaymentFailed     = model.NewDomainError(model.ErrCodePaymentFailed, "Payment failed, please try again")
)

// Session is the ephemeral state of one checkout attempt.
type Session struct {
	ID            string                 `json:"id"`
	CartID        string                 `json:"cartId"`
	CustomerID    *string                `json:"-"`
	SubmissionKey string                 `json:"-"`
	Step          Step                   `json:"step"`
	Shipping      *model.ShippingAddress `json:"shipping,omitempty"`
	PaymentMethod string                 `json:"paymentMethod,omitempty"`
	Processing    bool                   `json:"processing"`
	OrderID       *uuid.UUID             `json:"orderId,omitempty"`
	RedirectURL   string                 `json:"redirectUrl,omitempty"`
	LastError     string                 `json:"lastError,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`

	// orderPlaced survives detachOrder so shipping stays locked once any
	// order exists for this session.
	orderPlaced bool
}

// HasOrder reports whether a pending order is attached to the session.
func (s *Session) HasOrder() bool {
	return s.OrderID != nil
}

// OrderPlaced reports whether this session has ever created an order,
// including one that was later cancelled by a failed payment.
func (s *Session) OrderPlaced() bool {
	return s.orderPlaced || s.HasOrder()
}

// SubmitShipping validates and stores addr, then moves to payment. It is
// allowed in shipping, and in payment until an order has been placed. On a
// validation failure the step does not change.
func (s *Session) SubmitShipping(addr model.ShippingAddress) error {
	switch {
	case s.Step == StepShipping:
	case s.Step == StepPayment && !s.OrderPlaced() && !s.Processing:
	default:
		return ErrInvalidStep
	}

	addr = NormalizeShipping(addr)
	if err := ValidateShipping(addr); err != nil {
		return err
	}

	s.Shipping = &addr
	s.Step = StepPayment
	return nil
}

// SelectPaymentMethod records one of the allowed methods.
func (s *Session) SelectPaymentMethod(method string, allowed []string) error {
	if s.Step != StepPayment || s.Processing {
		return ErrInvalidStep
	}

	method = strings.TrimSpace(method)
	if !slices.Contains(allowed, method) {
		return &model.ValidationError{Fields: map[string]string{
			"paymentMethod": fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")),
		}}
	}

	s.PaymentMethod = method
	return nil
}

// Back returns from payment to shipping. The captured address is kept.
func (s *Session) Back() error {
	if s.Step != StepPayment || s.OrderPlaced() || s.Processing {
		return ErrCannotGoBack
	}
	s.Step = StepShipping
	return nil
}

// readyForPayment checks the preconditions of a payment submission.
func (s *Session) readyForPayment() error {
	if s.Step != StepPayment {
		return ErrInvalidStep
	}
	if s.Processing {
		return ErrPaymentInProgress
	}
	if s.Shipping == nil {
		return &model.ValidationError{Fields: map[string]string{"shipping": "is required"}}
	}
	if s.PaymentMethod == "" {
		return &model.ValidationError{Fields: map[string]string{"paymentMethod": "is required"}}
	}
	return nil
}

// attachOrder records id as the session's pending order.
func (s *Session) attachOrder(id uuid.UUID) {
	s.OrderID = &id
	s.orderPlaced = true
}

// detachOrder forgets the failed order and issues a fresh submission key so
// that a retry creates a new order.
func (s *Session) detachOrder() {
	s.OrderID = nil
	s.RedirectURL = ""
	s.SubmissionKey = uuid.NewString()
}

// clone returns a copy that shares no pointers with s.
func (s Session) clone() Session {
	if s.Shipping != nil {
		addr := *s.Shipping
		s.Shipping = &addr
	}
	if s.OrderID != nil {
		id := *s.OrderID
		s.OrderID = &id
	}
	if s.CustomerID != nil {
		c := *s.CustomerID
		s.CustomerID = &c
	}
	return s
}

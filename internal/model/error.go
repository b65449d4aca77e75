package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string            `json:"error"`
	Message       string            `json:"message"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	CurrentStatus OrderStatus       `json:"currentStatus,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeVariantNotFound    = "VARIANT_NOT_FOUND"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeNoBasePrice        = "NO_BASE_PRICE"
	ErrCodeInvalidTiers       = "INVALID_PRICE_TIERS"
	ErrCodeCartEmpty          = "CART_EMPTY"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeStaleStatus        = "ORDER_ALREADY_UPDATED"
	ErrCodeSessionNotFound    = "CHECKOUT_SESSION_NOT_FOUND"
	ErrCodeInvalidStep        = "INVALID_CHECKOUT_STEP"
	ErrCodePaymentInProgress  = "PAYMENT_IN_PROGRESS"
	ErrCodePaymentFailed      = "PAYMENT_FAILED"
	ErrCodePaymentPending     = "PAYMENT_PENDING"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeUnauthorised       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so a
// detailed error built with NewDomainError still matches its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrProductNotFound   = NewDomainError(ErrCodeProductNotFound, "Product not found")
	ErrVariantNotFound   = NewDomainError(ErrCodeVariantNotFound, "Variant not found for product")
	ErrInsufficientStock = NewDomainError(ErrCodeInsufficientStock, "Not enough stock for the requested quantity")
	ErrInvalidQuantity   = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrNoBasePrice       = NewDomainError(ErrCodeNoBasePrice, "Product has no base price tier for quantity 1")
	ErrInvalidTiers      = NewDomainError(ErrCodeInvalidTiers, "Price tiers are invalid")
	ErrCartEmpty         = NewDomainError(ErrCodeCartEmpty, "Cart is empty")
	ErrOrderNotFound     = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrInvalidStatus     = NewDomainError(ErrCodeInvalidStatus, "Order status must be one of PENDING, PAID, SHIPPED, DELIVERED, CANCELLED")
	ErrInvalidTransition = NewDomainError(ErrCodeInvalidTransition, "Order status transition is not allowed")
	ErrStaleStatus       = NewDomainError(ErrCodeStaleStatus, "This order was already updated")
)

// ValidationError carries one message per invalid input field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransitionError reports a rejected order status change together with the
// authoritative status the order holds right now.
type TransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
	Current OrderStatus
	// Stale is set when another actor moved the order before this request.
	Stale bool
}

func (e *TransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("order %s was already updated (current status %s)", e.OrderID, e.Current)
	}
	return fmt.Sprintf("order %s: transition %s -> %s is not allowed", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	if e.Stale {
		return target == ErrStaleStatus
	}
	return target == ErrInvalidTransition
}

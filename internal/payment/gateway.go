// Package payment talks to the external payment gateway. The gateway takes an
// order reference and an amount and answers with a redirect URL; the outcome
// arrives later through a signed callback.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storefront/internal/model"
)

// ErrGatewayRejected is returned when the gateway refuses a session request,
// for example because the amount is malformed.
var ErrGatewayRejected = errors.New("payment gateway rejected the request")

// SessionRequest asks the gateway for a payment session for one order.
type SessionRequest struct {
	OrderID   uuid.UUID   `json:"orderId"`
	Amount    model.Money `json:"amount"`
	ReturnURL string      `json:"returnUrl,omitempty"`
}

// Session is the gateway's answer to a session request.
type Session struct {
	RedirectURL string `json:"redirectUrl"`
}

// Gateway creates payment sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// GatewayError reports a gateway that could not be reached or answered with
// a server error.
type GatewayError struct {
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment gateway unreachable: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayFailure reports whether err came from the gateway rather than
// from local validation or persistence.
func IsGatewayFailure(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) || errors.Is(err, ErrGatewayRejected)
}

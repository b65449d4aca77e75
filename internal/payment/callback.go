package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Callback outcomes sent by the gateway.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrInvalidSignature is returned when a callback body does not match its
// signature header.
var ErrInvalidSignature = errors.New("invalid callback signature")

// Callback is the asynchronous payment outcome for one order.
type Callback struct {
	OrderID uuid.UUID `json:"orderId"`
	Status  string    `json:"status"`
}

// Succeeded reports whether the payment went through.
func (c Callback) Succeeded() bool {
	return c.Status == StatusSucceeded
}

// ParseCallback decodes and checks a callback body.
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, fmt.Errorf("failed to decode callback: %w", err)
	}
	if cb.OrderID == uuid.Nil {
		return Callback{}, fmt.Errorf("callback has no orderId")
	}
	if cb.Status != StatusSucceeded && cb.Status != StatusFailed {
		return Callback{}, fmt.Errorf("callback status %q is not one of %s, %s", cb.Status, StatusSucceeded, StatusFailed)
	}
	return cb, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks signature against body. An empty secret disables
// verification.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(secret, body))) {
		return ErrInvalidSignature
	}
	return nil
}

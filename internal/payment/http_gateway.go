package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPGateway calls a remote gateway's session endpoint.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPGateway creates a gateway client that POSTs to baseURL + "/sessions".
// Every call is bounded by timeout.
func NewHTTPGateway(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "payment-gateway").Logger(),
	}
}

// CreateSession requests a payment session keyed by the order id.
func (g *HTTPGateway) CreateSession(ctx context.Context, sr SessionRequest) (*Session, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sr.OrderID.String())

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", sr.OrderID.String()).Msg("payment gateway request failed")
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	g.logger.Debug().
		Str("order_id", sr.OrderID.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("payment gateway responded")

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode session response: %w", err)}
	}
	if session.RedirectURL == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("session response has no redirect URL")}
	}
	return &session, nil
}

// SandboxGateway answers every request locally. It is used when no gateway is
// configured; the payment outcome is then posted to the callback by hand.
type SandboxGateway struct {
	returnURL string
}

// NewSandboxGateway creates a gateway that redirects straight to returnURL.
func NewSandboxGateway(returnURL string) *SandboxGateway {
	return &SandboxGateway{returnURL: returnURL}
}

func (g *SandboxGateway) CreateSession(_ context.Context, sr SessionRequest) (*Session, error) {
	if !sr.Amount.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}

	sep := "?"
	if strings.Contains(g.returnURL, "?") {
		sep = "&"
	}
	return &Session{RedirectURL: g.returnURL + sep + "orderId=" + sr.OrderID.String()}, nil
}

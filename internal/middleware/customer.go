package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// CustomerFrom returns the authenticated customer reference, or nil for a
// guest.
func CustomerFrom(ctx context.Context) *string {
	id, ok := ctx.Value(customerIDKey).(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

// WithCustomer stores a customer reference on ctx.
func WithCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, customerIDKey, customerID)
}

// Customer reads an optional HS256 bearer token and records its subject as
// the customer reference. Missing or invalid tokens continue as a guest.
func Customer(secret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if secret == "" || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := parser.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring invalid customer token")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCustomer(r.Context(), claims.Subject)))
		})
	}
}

package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisStore keeps each cart as a JSON string under "<prefix><cartID>".
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed cart store. Every save refreshes the
// key's expiry to ttl; a zero ttl keeps carts until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) Store {
	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "cart-store").Logger(),
	}
}

func (s *redisStore) key(cartID string) string {
	return s.prefix + cartID
}

func (s *redisStore) Load(ctx context.Context, cartID string) (*Cart, error) {
	if cartID == "" {
		return nil, fmt.Errorf("cartID is empty")
	}

	data, err := s.client.Get(ctx, s.key(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to load cart")
		return nil, fmt.Errorf("failed to load cart %s: %w", cartID, err)
	}

	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		s.logger.Warn().Err(err).Str("cart_id", cartID).Msg("discarding unreadable cart")
		return New(), nil
	}
	return c, nil
}

func (s *redisStore) Save(ctx context.Context, cartID string, c *Cart) error {
	if cartID == "" {
		return fmt.Errorf("cartID is empty")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cart %s: %w", cartID, err)
	}

	if err := s.client.Set(ctx, s.key(cartID), data, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to save cart")
		return fmt.Errorf("failed to save cart %s: %w", cartID, err)
	}

	s.logger.Debug().
		Str("cart_id", cartID).
		Int("total_items", c.TotalItems()).
		Msg("cart saved")

	return nil
}

func (s *redisStore) Delete(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, s.key(cartID)).Err(); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("failed to delete cart")
		return fmt.Errorf("failed to delete cart %s: %w", cartID, err)
	}
	return nil
}

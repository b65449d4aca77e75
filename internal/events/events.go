// Package events fans out the fact of completed order status transitions to
// collaborators such as fulfillment and inventory.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// DefaultChannel is the Redis channel status changes are published on.
const DefaultChannel = "order-status-events"

// Publisher announces successful order status transitions.
type Publisher interface {
	PublishStatusChange(ctx context.Context, change model.StatusChange) error
}

// RedisPublisher publishes status changes as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string, logger zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

func (p *RedisPublisher) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode status change: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish status change: %w", err)
	}

	p.logger.Debug().
		Str("order_id", change.OrderID.String()).
		Str("from", change.From.String()).
		Str("to", change.To.String()).
		Msg("status change published")
	return nil
}

// Handler reacts to one status change.
type Handler func(ctx context.Context, change model.StatusChange)

// Listen subscribes to the publisher's channel and calls handle for every
// status change until ctx is cancelled. Undecodable messages are skipped.
func (p *RedisPublisher) Listen(ctx context.Context, handle Handler) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}

	p.logger.Info().Str("channel", p.channel).Msg("listening for status changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change model.StatusChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				p.logger.Warn().Err(err).Msg("skipping undecodable status change")
				continue
			}
			handle(ctx, change)
		}
	}
}

// LogPublisher writes status changes to the log. It is used when Redis is
// not configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) PublishStatusChange(_ context.Context, change model.StatusChange) error {
	p.logger.Info().
		Str("order_id", change.OrderID.String()).
		Str("from", change.From.String()).
		Str("to", change.To.String()).
		Str("actor", change.Actor).
		Time("at", change.At).
		Msg("order status changed")
	return nil
}

// Reactor is the default handler for published status changes. It logs the
// downstream work each transition calls for.
func Reactor(logger zerolog.Logger) Handler {
	logger = logger.With().Str("component", "fulfillment").Logger()
	return func(_ context.Context, change model.StatusChange) {
		event := logger.Info().Str("order_id", change.OrderID.String())
		switch change.To {
		case model.StatusPaid:
			event.Msg("fulfillment notification queued")
		case model.StatusCancelled:
			event.Str("from", change.From.String()).Msg("inventory release queued")
		default:
			event.Str("status", change.To.String()).Msg("status change observed")
		}
	}
}

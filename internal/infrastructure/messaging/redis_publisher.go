package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/circuitbreaker"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS PUBLISHER
// Publishes event envelopes on a Redis channel. A circuit breaker stops
// hammering Redis while it is down; events published meanwhile are dropped.
// ══════════════════════════════════════════════════════════════════════════════

// PubSubClient is the part of the Redis client the publisher needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events to Redis pub/sub and then to an optional
// local bus.
type RedisPublisher struct {
	client  PubSubClient
	channel string
	breaker *circuitbreaker.CircuitBreaker
	local   shared.EventPublisher
	log     *logger.Logger
}

// RedisPublisherConfig contains configuration for RedisPublisher.
type RedisPublisherConfig struct {
	Client  PubSubClient
	Channel string

	// Local receives every event after the Redis publish, whatever its outcome.
	Local shared.EventPublisher

	Logger *logger.Logger
}

// NewRedisPublisher creates a publisher guarded by the event publisher breaker.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.With(logger.Component("redis_publisher"))

	breaker := circuitbreaker.EventPublisherBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	return &RedisPublisher{
		client:  cfg.Client,
		channel: cfg.Channel,
		breaker: breaker,
		local:   cfg.Local,
		log:     log,
	}, nil
}

var _ shared.EventPublisher = (*RedisPublisher)(nil)

// Publish implements shared.EventPublisher.
func (p *RedisPublisher) Publish(ctx context.Context, event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	var correlationID string
	if c, ok := event.(interface{ Correlation() string }); ok {
		correlationID = c.Correlation()
	}
	envelope, err := shared.NewEnvelope(event, correlationID)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	pubErr := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.client.Publish(ctx, p.channel, data).Err()
	})

	if p.local != nil {
		if err := p.local.Publish(ctx, event); err != nil {
			p.log.Warn("local event delivery failed", logger.Err(err))
		}
	}

	if pubErr != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType(), p.channel, pubErr)
	}
	return nil
}

// BreakerState reports the state of the publish circuit.
func (p *RedisPublisher) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/circuitbreaker"
)

func awardedEvent() badge.BadgeAwardedEvent {
	e := badge.NewBadgeAwardedEvent(badge.Grant{
		ID:      uuid.NewString(),
		UserID:  shared.UserID(uuid.NewString()),
		BadgeID: uuid.NewString(),
		Scope:   badge.GlobalScope(),
	}, badge.SlugConsistentPresence5)
	e.BaseEvent = e.BaseEvent.WithCorrelationID("req-42")
	return e
}

// ─────────────────────────────────────────────────────────────────────────────
// In-memory bus
// ─────────────────────────────────────────────────────────────────────────────

func TestInMemoryBusSyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventBadgeAwarded, func(_ context.Context, e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(context.Background(), awardedEvent()))
	computed := badge.NewBadgesComputedEvent(shared.UserID(uuid.NewString()), nil, 0, 0)
	require.NoError(t, bus.Publish(context.Background(), computed))

	assert.Equal(t, []shared.EventType{shared.EventBadgeAwarded}, typed)
	assert.Equal(t, []shared.EventType{shared.EventBadgeAwarded, shared.EventBadgesComputed}, all)
}

func TestInMemoryBusAsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventBadgeAwarded, func(context.Context, shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), awardedEvent()))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), delivered.Load(), "close drains the queue")
	assert.ErrorIs(t, bus.Publish(context.Background(), awardedEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventBadgeAwarded, func(context.Context, shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

func TestInMemoryBusDropsWhenQueueIsFull(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventBadgeAwarded, func(context.Context, shared.Event) error {
		if delivered.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), awardedEvent()))
	<-started

	// The worker is busy: one delivery fits in the queue, the next is dropped.
	require.NoError(t, bus.Publish(context.Background(), awardedEvent()))
	require.NoError(t, bus.Publish(context.Background(), awardedEvent()))

	close(release)
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(2), delivered.Load())
}

func TestInMemoryBusRecoversHandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})

	var after int
	require.NoError(t, bus.Subscribe(shared.EventBadgeAwarded, func(context.Context, shared.Event) error {
		panic("boom")
	}))
	require.NoError(t, bus.SubscribeAll(func(context.Context, shared.Event) error {
		after++
		return nil
	}))

	assert.NoError(t, bus.Publish(context.Background(), awardedEvent()))
	assert.Equal(t, 1, after)
}

func TestInMemoryBusRejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	assert.Error(t, bus.Subscribe(shared.EventBadgeAwarded, nil))
	assert.Error(t, bus.Publish(context.Background(), nil))
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis publisher
// ─────────────────────────────────────────────────────────────────────────────

type fakePubSub struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
	calls    int
	err      error
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func TestRedisPublisherPublishesEnvelope(t *testing.T) {
	client := &fakePubSub{}
	local := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	var localHits int
	require.NoError(t, local.SubscribeAll(func(context.Context, shared.Event) error { localHits++; return nil }))

	pub, err := NewRedisPublisher(RedisPublisherConfig{Client: client, Channel: "pubsub:badges", Local: local})
	require.NoError(t, err)

	event := awardedEvent()
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, client.messages, 1)
	assert.Equal(t, "pubsub:badges", client.channel)
	assert.Equal(t, 1, localHits)

	var envelope shared.EventEnvelope
	require.NoError(t, json.Unmarshal(client.messages[0], &envelope))
	assert.Equal(t, event.ID, envelope.ID)
	assert.Equal(t, shared.EventBadgeAwarded, envelope.Type)
	assert.Equal(t, "req-42", envelope.CorrelationID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, badge.SlugConsistentPresence5, payload["badge_slug"])
	assert.Equal(t, "global", payload["scope_key"])
}

func TestRedisPublisherOpensCircuit(t *testing.T) {
	client := &fakePubSub{err: errors.New("connection refused")}
	pub, err := NewRedisPublisher(RedisPublisherConfig{Client: client, Channel: "pubsub:badges"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Error(t, pub.Publish(context.Background(), awardedEvent()))
	}
	assert.Equal(t, circuitbreaker.StateOpen, pub.BreakerState())

	err = pub.Publish(context.Background(), awardedEvent())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 3, client.calls)
}

func TestNewRedisPublisherValidates(t *testing.T) {
	_, err := NewRedisPublisher(RedisPublisherConfig{Channel: "x"})
	assert.Error(t, err)
	_, err = NewRedisPublisher(RedisPublisherConfig{Client: &fakePubSub{}})
	assert.Error(t, err)
}

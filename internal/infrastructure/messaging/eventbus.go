// Package messaging delivers badge events: an in-process bus for handlers
// living in the API process and a Redis pub/sub publisher for realtime clients.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ErrEventBusClosed is returned when publishing on a closed bus.
var ErrEventBusClosed = errors.New("messaging: event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// delivery is one event bound for one handler.
type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

// InMemoryEventBus fans events out to handlers in the same process.
//
// In async mode deliveries go through a bounded queue drained by a fixed set
// of workers. When the queue is full the delivery is dropped and logged:
// badge events are notifications, the grants themselves are already stored.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	// nil in synchronous mode
	queue   chan delivery
	workers sync.WaitGroup

	log *logger.Logger
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers events on worker goroutines instead of the
	// publisher's goroutine.
	AsyncMode bool

	Workers   int
	QueueSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode: true,
		Workers:   4,
		QueueSize: 256,
	}
}

// NewInMemoryEventBus creates a bus and, in async mode, starts its workers.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	b := &InMemoryEventBus{
		byType: make(map[shared.EventType][]shared.EventHandler),
		log:    config.Logger.With(logger.Component("event_bus")),
	}

	if config.AsyncMode {
		workers := max(config.Workers, 1)
		b.queue = make(chan delivery, max(config.QueueSize, 1))
		b.workers.Add(workers)
		for i := 0; i < workers; i++ {
			go b.work()
		}
	}
	return b
}

var (
	_ shared.EventPublisher  = (*InMemoryEventBus)(nil)
	_ shared.EventSubscriber = (*InMemoryEventBus)(nil)
)

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(func() { b.byType[eventType] = append(b.byType[eventType], handler) }, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(func() { b.wildcard = append(b.wildcard, handler) }, handler)
}

func (b *InMemoryEventBus) register(add func(), handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish hands the event to every matching handler. Handler errors are
// logged, never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	// The read lock is held across enqueueing so Close cannot close the
	// queue under a sender.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrEventBusClosed
	}

	typed := b.byType[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	handlers = append(handlers, typed...)
	handlers = append(handlers, b.wildcard...)

	for _, h := range handlers {
		if b.queue == nil {
			b.deliver(ctx, delivery{event: event, handler: h})
			continue
		}
		select {
		case b.queue <- delivery{event: event, handler: h}:
		default:
			b.log.Warn("event queue full, dropping delivery",
				logger.String("event_type", string(event.EventType())),
				logger.String("event_id", event.EventID()),
			)
		}
	}
	return nil
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		// Detached from the publisher: the request may be long gone.
		b.deliver(context.Background(), d)
	}
}

func (b *InMemoryEventBus) deliver(ctx context.Context, d delivery) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return d.handler(ctx, d.event)
	}()
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(d.event.EventType())),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
}

// Close rejects further events and waits until queued deliveries are done.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	return nil
}

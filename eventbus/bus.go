package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/domain"
)

// Handler consumes one event. Errors are logged, never propagated to the
// publisher.
type Handler func(ctx context.Context, event domain.Event) error

// Bus is a synchronous in-process publish/subscribe fan-out. Handlers for
// one event run sequentially in subscription order; a failing or panicking
// handler never stops the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]namedHandler)}
}

// Subscribe registers a handler for an event type. The name only shows up in
// logs when the handler fails.
func (b *Bus) Subscribe(eventType, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, handler: handler})
}

// Publish delivers the event to every subscriber of its type, in
// subscription order. Publish itself never fails.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	subs := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub namedHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("subscriber", sub.name).
				Str("eventType", event.Type).
				Str("aggregateID", event.AggregateID).
				Msg("Subscriber panicked")
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("subscriber", sub.name).
			Str("eventType", event.Type).
			Str("aggregateID", event.AggregateID).
			Msg("Subscriber failed")
	}
}

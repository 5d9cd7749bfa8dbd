// Package eventbus provides the in-process typed publish/subscribe bus that
// decouples the voice engine's pipeline stages from one another.
//
// Handlers never call each other directly: a producer publishes an event and
// every subscriber for that event's type is invoked, synchronous handlers
// first in registration order, then asynchronous handlers concurrently.
// Publish blocks until every handler for that call has finished, so a
// producer that needs a side effect to have landed before it continues
// (e.g. MessageRouter updating LastActivityTime before AudioProcessingService
// reads it) gets that ordering for free from synchronous subscribers.
//
// A handler's panic or returned error is recovered, logged, and isolated: it
// never aborts sibling handlers or the publisher.
package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Event is the marker interface implemented by every event type published on
// the bus. Type returns a stable string discriminator used as the
// subscription key, decoupled from the event's Go type name so events can be
// renamed without breaking persisted configuration or logs.
type Event interface {
	Type() string
}

// Handler processes one event. Returning an error only affects logging: it
// does not stop other handlers or the publisher from proceeding.
type Handler func(ctx context.Context, event Event) error

// subscription pairs a handler with the async flag it was registered under.
type subscription struct {
	id      uint64
	handler Handler
	async   bool
}

// Bus is an in-process, typed event bus. The zero value is not usable; use
// [New].
//
// Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

// New creates an empty, ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscription is an opaque handle returned by Subscribe, passed to
// Unsubscribe to remove the registration.
type Subscription struct {
	eventType string
	id        uint64
}

// Subscribe registers handler for eventType. When async is false, handler
// runs synchronously, in registration order relative to other synchronous
// handlers, before Publish returns. When async is true, handler runs
// concurrently with other async handlers for the same Publish call; Publish
// still waits for it to finish, but its interleaving with other async
// handlers is undefined.
//
// Subscribing the same handler twice registers it twice; Subscribe performs
// no deduplication — that is the caller's responsibility.
func (b *Bus) Subscribe(eventType string, handler Handler, async bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler, async: async})
	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered subscription. Unsubscribing an
// already-removed or unknown subscription is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish dispatches event to every subscriber registered for its Type().
// Synchronous handlers run first, in registration order; asynchronous
// handlers are then started concurrently via an [errgroup.Group]. Publish
// blocks until all of them have returned.
//
// A handler's panic is recovered and logged as an error; it is treated the
// same as a returned error for isolation purposes and does not propagate to
// the publisher or to other handlers.
func (b *Bus) Publish(ctx context.Context, event Event) {
	eventType := event.Type()

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	var asyncSubs []subscription
	for _, s := range subs {
		if s.async {
			asyncSubs = append(asyncSubs, s)
			continue
		}
		invoke(ctx, eventType, event, s.handler)
	}

	if len(asyncSubs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range asyncSubs {
		s := s
		g.Go(func() error {
			invoke(gctx, eventType, event, s.handler)
			return nil
		})
	}
	_ = g.Wait()
}

// invoke calls handler, recovering panics and logging any error or panic
// without letting it escape to the caller.
func invoke(ctx context.Context, eventType string, event Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventbus: handler panicked",
				"event_type", eventType,
				"panic", r,
				"handler", reflect.ValueOf(handler).Pointer())
		}
	}()
	if err := handler(ctx, event); err != nil {
		slog.Error("eventbus: handler returned error", "event_type", eventType, "error", err)
	}
}

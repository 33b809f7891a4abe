package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus fans events out to subscribers. The world and the network layer
// publish to it from hot paths, so Emit never waits for a handler: each
// handler runs on its own goroutine. Handlers never run on the tick
// goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	// any receives every event type.
	any     []handlerEntry
	emitted map[EventType]uint64
	stopped bool
	wg      sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
		emitted:  make(map[EventType]uint64),
	}
}

// Subscribe registers handler for one event type. name identifies the
// handler in logs and for Unsubscribe.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handlerEntry{name: name, handler: handler})

	log.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed to event")
}

// SubscribeAll registers handler for every event type.
func (eb *EventBus) SubscribeAll(name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.any = append(eb.any, handlerEntry{name: name, handler: handler})

	log.Debug().Str("handler", name).Msg("subscribed to all events")
}

// Unsubscribe removes the named handler from eventType.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := eb.handlers[eventType][:0]
	for _, h := range eb.handlers[eventType] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	eb.handlers[eventType] = kept
}

// targets copies the handlers for event and counts it. It returns nil once
// the bus is stopped.
func (eb *EventBus) targets(event Event) []handlerEntry {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.stopped {
		return nil
	}
	eb.emitted[event.Type]++

	specific := eb.handlers[event.Type]
	out := make([]handlerEntry, 0, len(specific)+len(eb.any))
	out = append(out, specific...)
	return append(out, eb.any...)
}

// Emit delivers event to its subscribers without waiting for them.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	handlers := eb.targets(event)
	if len(handlers) == 0 {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting event")

	eb.wg.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer eb.wg.Done()
			invoke(ctx, h, event)
		}()
	}
}

// EmitSync delivers event and waits for every subscriber. It returns the
// first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	handlers := eb.targets(event)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer wg.Done()
			if err := invoke(ctx, h, event); err != nil {
				once.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func invoke(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Stop rejects further events and waits for in-flight handlers.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	eb.stopped = true
	eb.mu.Unlock()

	eb.wg.Wait()
	log.Info().Msg("event bus stopped")
}

// HandlerCount returns the handlers eventType reaches, including those
// subscribed to every event.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType]) + len(eb.any)
}

// Emitted returns how many events of each type have been published.
func (eb *EventBus) Emitted() map[EventType]uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	out := make(map[EventType]uint64, len(eb.emitted))
	for k, v := range eb.emitted {
		out[k] = v
	}
	return out
}

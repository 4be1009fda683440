package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc observes one event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus fans lifecycle events out to named subscribers. A nil *EventBus
// is valid and drops everything, so peers can run without observers.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[EventType][]subscriber
	stopped bool
	pending sync.WaitGroup
}

type subscriber struct {
	name string
	fn   HandlerFunc
}

// deliver runs the handler, turning a panic into an error, and logs any
// failure under the subscriber's name.
func (s subscriber) deliver(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("event", string(event.Type)).
				Str("handler", s.name).
				Msg("event handler failed")
		}
	}()
	return s.fn(ctx, event)
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventType][]subscriber)}
}

// Subscribe adds fn for events of type t. name shows up in logs.
func (b *EventBus) Subscribe(t EventType, name string, fn HandlerFunc) {
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], subscriber{name: name, fn: fn})
	b.mu.Unlock()

	log.Debug().Str("event", string(t)).Str("handler", name).Msg("subscribed to event")
}

// Emit hands the event to every subscriber on its own goroutine and
// returns at once. Events emitted after Stop are dropped.
func (b *EventBus) Emit(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	subs := b.subs[event.Type]
	b.pending.Add(len(subs))
	b.mu.RUnlock()

	if len(subs) > 0 {
		log.Trace().
			Str("event", string(event.Type)).
			Str("source", event.Source).
			Int("handlers", len(subs)).
			Msg("emitting event")
	}
	for _, s := range subs {
		go func() {
			defer b.pending.Done()
			_ = s.deliver(ctx, event)
		}()
	}
}

// EmitSync runs the subscribers in subscription order on the calling
// goroutine and joins their errors.
func (b *EventBus) EmitSync(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	stopped := b.stopped
	subs := append([]subscriber(nil), b.subs[event.Type]...)
	b.mu.RUnlock()
	if stopped {
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := s.deliver(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Drain waits for in-flight Emit handlers without stopping the bus.
func (b *EventBus) Drain() {
	b.pending.Wait()
}

// Stop rejects further events and waits for in-flight handlers. Calling it
// again is a no-op.
func (b *EventBus) Stop() {
	b.mu.Lock()
	already := b.stopped
	b.stopped = true
	b.mu.Unlock()
	if already {
		return
	}

	b.pending.Wait()
	log.Info().Msg("event bus stopped")
}

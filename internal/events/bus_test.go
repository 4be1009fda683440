package events

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestEmitDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	var got atomic.Int32
	bus.Subscribe(EventSessionOpened, "counter", func(ctx context.Context, e Event) error {
		if p, ok := e.Payload.(SessionPayload); ok && p.NetID == 7 {
			got.Add(1)
		}
		return nil
	})

	bus.Emit(context.Background(), New(EventSessionOpened, "test", SessionPayload{NetID: 7}))
	bus.Drain()
	if got.Load() != 1 {
		t.Fatalf("handler calls: %d", got.Load())
	}
}

func TestEmitSyncReturnsHandlerError(t *testing.T) {
	bus := NewEventBus()
	want := errors.New("boom")
	bus.Subscribe(EventShutdown, "failing", func(ctx context.Context, e Event) error { return want })

	if err := bus.EmitSync(context.Background(), New(EventShutdown, "test", nil)); !errors.Is(err, want) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestEmitSyncRunsInOrderAndRecoversPanics(t *testing.T) {
	bus := NewEventBus()
	var order []string
	bus.Subscribe(EventSessionClosed, "first", func(context.Context, Event) error {
		order = append(order, "first")
		panic("observer bug")
	})
	bus.Subscribe(EventSessionClosed, "second", func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})

	err := bus.EmitSync(context.Background(), New(EventSessionClosed, "test", nil))
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Fatalf("expected panic reported as error, got %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Fatalf("order: %v", order)
	}
}

func TestStopDropsLaterEvents(t *testing.T) {
	bus := NewEventBus()
	var got atomic.Int32
	bus.Subscribe(EventEntitySpawned, "counter", func(context.Context, Event) error {
		got.Add(1)
		return nil
	})

	bus.Emit(context.Background(), New(EventEntitySpawned, "test", nil))
	bus.Stop()
	bus.Stop()
	if got.Load() != 1 {
		t.Fatalf("in-flight handler not awaited: %d", got.Load())
	}

	bus.Emit(context.Background(), New(EventEntitySpawned, "test", nil))
	if err := bus.EmitSync(context.Background(), New(EventEntitySpawned, "test", nil)); err != nil {
		t.Fatalf("emit after stop: %v", err)
	}
	bus.Drain()
	if got.Load() != 1 {
		t.Fatalf("handler ran after stop: %d", got.Load())
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *EventBus
	bus.Emit(context.Background(), New(EventShutdown, "test", nil))
	if err := bus.EmitSync(context.Background(), New(EventShutdown, "test", nil)); err != nil {
		t.Fatalf("nil bus: %v", err)
	}
}

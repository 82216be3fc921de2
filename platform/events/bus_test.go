package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/DmitryZaika/granite-webhooks/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishSyncRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var calls atomic.Int32
	bus.Subscribe("lead.created", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))
	bus.Subscribe("lead.created", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return errors.New("boom")
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "lead.created"})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 handler calls, got %d", got)
	}
}

func TestPublishSyncIgnoresOtherEvents(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var calls atomic.Int32
	bus.Subscribe("lead.created", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))

	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "lead.claimed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected 0 handler calls, got %d", got)
	}
}

func TestPublishAsyncCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var calls atomic.Int32
	bus.Subscribe("lead.created", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "lead.created"})
	bus.Close()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 handler call, got %d", got)
	}
}

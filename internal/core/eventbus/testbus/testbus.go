// Package testbus wraps a running EventBus with event recording and
// assertion helpers for tests.
package testbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hay-kot/pickup/internal/core/eventbus"
)

// RecordedEvent holds a captured event name and payload.
type RecordedEvent struct {
	Event   eventbus.Event
	Payload any
}

// Bus is a started EventBus that records every event it dispatches.
type Bus struct {
	*eventbus.EventBus

	mu     sync.Mutex
	events []RecordedEvent
}

// New starts a bus that records all event types. The bus is stopped when
// the test completes.
func New(t *testing.T) *Bus {
	t.Helper()

	bus := eventbus.New(64)
	ctx, cancel := context.WithCancel(context.Background())
	tb := &Bus{EventBus: bus}

	bus.SubscribeOrderPlaced(func(p eventbus.OrderPlacedPayload) {
		tb.record(eventbus.EventOrderPlaced, p)
	})
	bus.SubscribeOrderUpdated(func(p eventbus.OrderUpdatedPayload) {
		tb.record(eventbus.EventOrderUpdated, p)
	})
	bus.SubscribeOrderCancelled(func(p eventbus.OrderCancelledPayload) {
		tb.record(eventbus.EventOrderCancelled, p)
	})
	bus.SubscribeOrderLocked(func(p eventbus.OrderLockedPayload) {
		tb.record(eventbus.EventOrderLocked, p)
	})
	bus.SubscribeDraftSaved(func(p eventbus.DraftSavedPayload) {
		tb.record(eventbus.EventDraftSaved, p)
	})
	bus.SubscribeDraftCleared(func(p eventbus.DraftClearedPayload) {
		tb.record(eventbus.EventDraftCleared, p)
	})
	bus.SubscribeConflictDetected(func(p eventbus.ConflictDetectedPayload) {
		tb.record(eventbus.EventConflictDetected, p)
	})
	bus.SubscribeConflictResolved(func(p eventbus.ConflictResolvedPayload) {
		tb.record(eventbus.EventConflictResolved, p)
	})
	bus.SubscribeNoticePublished(func(p eventbus.NoticePublishedPayload) {
		tb.record(eventbus.EventNoticePublished, p)
	})

	go bus.Start(ctx)

	t.Cleanup(func() {
		cancel()
		<-bus.Done()
	})

	return tb
}

func (tb *Bus) record(event eventbus.Event, payload any) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.events = append(tb.events, RecordedEvent{Event: event, Payload: payload})
}

// Events returns a copy of all recorded events.
func (tb *Bus) Events() []RecordedEvent {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := make([]RecordedEvent, len(tb.events))
	copy(out, tb.events)
	return out
}

// Of returns the payloads recorded for event in dispatch order.
func (tb *Bus) Of(event eventbus.Event) []any {
	var out []any
	for _, e := range tb.Events() {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Reset clears all recorded events.
func (tb *Bus) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.events = nil
}

// WaitFor blocks until an event of the given type is recorded or the
// timeout expires.
func (tb *Bus) WaitFor(event eventbus.Event, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if tb.count(event) > 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

// WaitForN blocks until n events of the given type are recorded.
func (tb *Bus) WaitForN(event eventbus.Event, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if tb.count(event) >= n {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

func (tb *Bus) count(event eventbus.Event) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	n := 0
	for _, e := range tb.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// AssertPublished asserts that an event of the given type was recorded.
func (tb *Bus) AssertPublished(t *testing.T, event eventbus.Event) {
	t.Helper()
	if !tb.WaitFor(event, 500*time.Millisecond) {
		t.Errorf("expected event %q to be published, but it was not", event)
	}
}

// AssertNotPublished asserts that an event of the given type was not
// recorded within wait.
func (tb *Bus) AssertNotPublished(t *testing.T, event eventbus.Event, wait time.Duration) {
	t.Helper()
	time.Sleep(wait)
	if tb.count(event) > 0 {
		t.Errorf("expected event %q to not be published, but it was", event)
	}
}

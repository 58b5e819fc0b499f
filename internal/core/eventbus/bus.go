package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

type subscriber struct {
	id uint64
	fn func(any)
}

// EventBus delivers events to subscribers from a single dispatch goroutine,
// so subscribers observe events in publish order.
type EventBus struct {
	ch    chan envelope
	hooks hooks
	done  chan struct{}

	mu     sync.RWMutex
	nextID uint64
	subs   map[Event][]subscriber
}

// New returns a bus that buffers up to size undelivered events. Events
// published while the buffer is full are dropped.
func New(size int) *EventBus {
	if size < 1 {
		size = 1
	}
	return &EventBus{
		ch:   make(chan envelope, size),
		done: make(chan struct{}),
		subs: make(map[Event][]subscriber),
	}
}

// Start dispatches events until ctx is cancelled. Events still buffered at
// cancellation are delivered before Start returns.
func (bus *EventBus) Start(ctx context.Context) {
	defer close(bus.done)
	for {
		select {
		case env := <-bus.ch:
			bus.dispatch(env)
		case <-ctx.Done():
			for {
				select {
				case env := <-bus.ch:
					bus.dispatch(env)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Start returns.
func (bus *EventBus) Done() <-chan struct{} { return bus.done }

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]subscriber, len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			s.fn(env.payload)
		}()
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) (cancel func()) {
	bus.mu.Lock()
	bus.nextID++
	id := bus.nextID
	bus.subs[event] = append(bus.subs[event], subscriber{id: id, fn: fn})
	bus.mu.Unlock()

	bus.runOnSubscribe(event)

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.mu.Lock()
			defer bus.mu.Unlock()
			subs := bus.subs[event]
			for i, s := range subs {
				if s.id == id {
					bus.subs[event] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

func subscribeTyped[T any](bus *EventBus, event Event, fn func(T)) func() {
	return bus.subscribe(event, func(p any) {
		if v, ok := p.(T); ok {
			fn(v)
		}
	})
}

func (bus *EventBus) PublishOrderPlaced(p OrderPlacedPayload) { bus.send(EventOrderPlaced, p) }

func (bus *EventBus) SubscribeOrderPlaced(fn func(OrderPlacedPayload)) func() {
	return subscribeTyped(bus, EventOrderPlaced, fn)
}

func (bus *EventBus) PublishOrderUpdated(p OrderUpdatedPayload) { bus.send(EventOrderUpdated, p) }

func (bus *EventBus) SubscribeOrderUpdated(fn func(OrderUpdatedPayload)) func() {
	return subscribeTyped(bus, EventOrderUpdated, fn)
}

func (bus *EventBus) PublishOrderCancelled(p OrderCancelledPayload) {
	bus.send(EventOrderCancelled, p)
}

func (bus *EventBus) SubscribeOrderCancelled(fn func(OrderCancelledPayload)) func() {
	return subscribeTyped(bus, EventOrderCancelled, fn)
}

func (bus *EventBus) PublishOrderLocked(p OrderLockedPayload) { bus.send(EventOrderLocked, p) }

func (bus *EventBus) SubscribeOrderLocked(fn func(OrderLockedPayload)) func() {
	return subscribeTyped(bus, EventOrderLocked, fn)
}

func (bus *EventBus) PublishDraftSaved(p DraftSavedPayload) { bus.send(EventDraftSaved, p) }

func (bus *EventBus) SubscribeDraftSaved(fn func(DraftSavedPayload)) func() {
	return subscribeTyped(bus, EventDraftSaved, fn)
}

func (bus *EventBus) PublishDraftCleared(p DraftClearedPayload) { bus.send(EventDraftCleared, p) }

func (bus *EventBus) SubscribeDraftCleared(fn func(DraftClearedPayload)) func() {
	return subscribeTyped(bus, EventDraftCleared, fn)
}

func (bus *EventBus) PublishConflictDetected(p ConflictDetectedPayload) {
	bus.send(EventConflictDetected, p)
}

func (bus *EventBus) SubscribeConflictDetected(fn func(ConflictDetectedPayload)) func() {
	return subscribeTyped(bus, EventConflictDetected, fn)
}

func (bus *EventBus) PublishConflictResolved(p ConflictResolvedPayload) {
	bus.send(EventConflictResolved, p)
}

func (bus *EventBus) SubscribeConflictResolved(fn func(ConflictResolvedPayload)) func() {
	return subscribeTyped(bus, EventConflictResolved, fn)
}

func (bus *EventBus) PublishNoticePublished(p NoticePublishedPayload) {
	bus.send(EventNoticePublished, p)
}

func (bus *EventBus) SubscribeNoticePublished(fn func(NoticePublishedPayload)) func() {
	return subscribeTyped(bus, EventNoticePublished, fn)
}

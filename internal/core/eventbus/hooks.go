package eventbus

import "sync"

// hooks are observers of the bus itself rather than of any one event.
type hooks struct {
	mu          sync.RWMutex
	onPublish   []func(Event, any)
	onDrop      []func(Event, any)
	onSubscribe []func(Event)
	onPanic     []func(Event, any, any)
}

// OnPublish registers a hook that fires after an event is enqueued.
func (bus *EventBus) OnPublish(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPublish = append(bus.hooks.onPublish, fn)
	bus.hooks.mu.Unlock()
}

// OnDrop registers a hook that fires when an event is dropped because the
// buffer is full.
func (bus *EventBus) OnDrop(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onDrop = append(bus.hooks.onDrop, fn)
	bus.hooks.mu.Unlock()
}

// OnSubscribe registers a hook that fires after a subscriber is added.
func (bus *EventBus) OnSubscribe(fn func(Event)) {
	bus.hooks.mu.Lock()
	bus.hooks.onSubscribe = append(bus.hooks.onSubscribe, fn)
	bus.hooks.mu.Unlock()
}

// OnPanic registers a hook that fires when a subscriber panics. The
// recovered value is passed as the last argument.
func (bus *EventBus) OnPanic(fn func(Event, any, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPanic = append(bus.hooks.onPanic, fn)
	bus.hooks.mu.Unlock()
}

func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		for _, fn := range snapshot(&bus.hooks.mu, &bus.hooks.onPublish) {
			fn(event, payload)
		}
	default:
		for _, fn := range snapshot(&bus.hooks.mu, &bus.hooks.onDrop) {
			fn(event, payload)
		}
	}
}

func (bus *EventBus) runOnSubscribe(event Event) {
	for _, fn := range snapshot(&bus.hooks.mu, &bus.hooks.onSubscribe) {
		fn(event)
	}
}

func (bus *EventBus) runOnPanic(event Event, payload any, recovered any) {
	for _, fn := range snapshot(&bus.hooks.mu, &bus.hooks.onPanic) {
		func() {
			defer func() { recover() }() //nolint:errcheck
			fn(event, payload, recovered)
		}()
	}
}

// snapshot copies a hook list under the read lock so hooks run unlocked.
func snapshot[F any](mu *sync.RWMutex, fns *[]F) []F {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]F, len(*fns))
	copy(out, *fns)
	return out
}

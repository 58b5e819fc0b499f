package eventbus_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/eventbus/testbus"
	"github.com/hay-kot/pickup/internal/core/order"
)

func TestBus_DeliversInPublishOrder(t *testing.T) {
	tb := testbus.New(t)

	for v := 1; v <= 20; v++ {
		tb.PublishOrderUpdated(eventbus.OrderUpdatedPayload{Order: order.PlacedOrder{ID: "o1", Version: v}})
	}
	require.True(t, tb.WaitForN(eventbus.EventOrderUpdated, 20, time.Second))

	for i, p := range tb.Of(eventbus.EventOrderUpdated) {
		assert.Equal(t, i+1, p.(eventbus.OrderUpdatedPayload).Order.Version)
	}
}

func TestBus_CancelSubscription(t *testing.T) {
	tb := testbus.New(t)

	var calls atomic.Int32
	cancel := tb.SubscribeOrderCancelled(func(eventbus.OrderCancelledPayload) { calls.Add(1) })

	tb.PublishOrderCancelled(eventbus.OrderCancelledPayload{OrderID: "o1"})
	require.True(t, tb.WaitForN(eventbus.EventOrderCancelled, 1, time.Second))

	cancel()
	cancel()
	tb.PublishOrderCancelled(eventbus.OrderCancelledPayload{OrderID: "o2"})
	require.True(t, tb.WaitForN(eventbus.EventOrderCancelled, 2, time.Second))

	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	tb := testbus.New(t)

	var recovered atomic.Value
	tb.OnPanic(func(_ eventbus.Event, _ any, r any) { recovered.Store(r) })
	tb.SubscribeOrderLocked(func(eventbus.OrderLockedPayload) { panic("boom") })

	tb.PublishOrderLocked(eventbus.OrderLockedPayload{})
	tb.PublishOrderPlaced(eventbus.OrderPlacedPayload{})

	tb.AssertPublished(t, eventbus.EventOrderPlaced)
	assert.Equal(t, "boom", recovered.Load())
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := eventbus.New(1)

	var dropped []eventbus.Event
	bus.OnDrop(func(e eventbus.Event, _ any) { dropped = append(dropped, e) })

	bus.PublishDraftSaved(eventbus.DraftSavedPayload{})
	bus.PublishDraftCleared(eventbus.DraftClearedPayload{})

	assert.Equal(t, []eventbus.Event{eventbus.EventDraftCleared}, dropped)
}

func TestBus_StartDrainsOnCancel(t *testing.T) {
	bus := eventbus.New(8)

	var got atomic.Int32
	bus.SubscribeDraftSaved(func(eventbus.DraftSavedPayload) { got.Add(1) })
	bus.PublishDraftSaved(eventbus.DraftSavedPayload{})
	bus.PublishDraftSaved(eventbus.DraftSavedPayload{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Start(ctx)

	assert.Equal(t, int32(2), got.Load())
	select {
	case <-bus.Done():
	default:
		t.Fatal("Done not closed after Start returned")
	}
}

package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/eventbus/testbus"
	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/core/order"
)

func latestNotice(tb *testbus.Bus, t *testing.T) eventbus.NoticePublishedPayload {
	t.Helper()
	tb.AssertPublished(t, eventbus.EventNoticePublished)

	notices := tb.Of(eventbus.EventNoticePublished)
	require.NotEmpty(t, notices)
	p, ok := notices[len(notices)-1].(eventbus.NoticePublishedPayload)
	require.True(t, ok)
	return p
}

func TestNoticeRouter_OrderPlaced(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNoticeRouter(tb.EventBus).Register()

	tb.PublishOrderPlaced(eventbus.OrderPlacedPayload{Order: order.PlacedOrder{
		ID:       "o-123",
		PickupAt: time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
	}})
	p := latestNotice(tb, t)

	assert.Equal(t, eventbus.NoticeInfo, p.Level)
	assert.Equal(t, "order o-123 placed for Thu Jan 18", p.Message)
}

func TestNoticeRouter_OrderLocked(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNoticeRouter(tb.EventBus).Register()

	tb.PublishOrderLocked(eventbus.OrderLockedPayload{Order: order.PlacedOrder{ID: "o-9"}})
	p := latestNotice(tb, t)

	assert.Equal(t, eventbus.NoticeWarning, p.Level)
	assert.Contains(t, p.Message, "o-9")
}

func TestNoticeRouter_ConflictDetected(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNoticeRouter(tb.EventBus).Register()

	c := merge.Detect(
		basket.Cart{SourceOrderID: "o-1", Lines: []basket.Line{{ProductID: "apple", Quantity: 2}}},
		order.PlacedOrder{ID: "o-1", Lines: []order.Line{{ProductID: "apple", Quantity: 3}}},
	)
	require.NotNil(t, c)

	tb.PublishConflictDetected(eventbus.ConflictDetectedPayload{BuyerID: "b", Conflict: c})
	p := latestNotice(tb, t)

	assert.Equal(t, eventbus.NoticeWarning, p.Level)
	assert.Contains(t, p.Message, "apple")
}

func TestNoticeRouter_Close(t *testing.T) {
	tb := testbus.New(t)
	r := eventbus.NewNoticeRouter(tb.EventBus)
	r.Register()
	r.Close()

	tb.PublishOrderCancelled(eventbus.OrderCancelledPayload{OrderID: "o-1"})
	tb.AssertPublished(t, eventbus.EventOrderCancelled)
	tb.AssertNotPublished(t, eventbus.EventNoticePublished, 20*time.Millisecond)
}

package eventbus_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/eventbus/testbus"
	"github.com/hay-kot/pickup/internal/core/order"
)

func TestRegisterDebugLogger(t *testing.T) {
	tb := testbus.New(t)

	var buf bytes.Buffer
	eventbus.RegisterDebugLogger(tb.EventBus, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tb.PublishOrderPlaced(eventbus.OrderPlacedPayload{Order: order.PlacedOrder{ID: "o1", BuyerID: "b1"}})
	tb.PublishDraftCleared(eventbus.DraftClearedPayload{BuyerID: "b1"})

	tb.AssertPublished(t, eventbus.EventDraftCleared)
	assert.Contains(t, buf.String(), `"event":"order.placed"`)
	assert.Contains(t, buf.String(), `"event":"draft.cleared"`)
	assert.Contains(t, buf.String(), `"order_id":"o1"`)
	assert.Contains(t, buf.String(), `"buyer_id":"b1"`)
}

package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger logs bus activity: publishes at debug level, drops
// as warnings and subscriber panics as errors. Each line carries the order
// and buyer the payload is about, when it names them.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		withSubject(logger.Debug().Str("event", string(event)), payload).Msg("event published")
	})

	bus.OnDrop(func(event Event, payload any) {
		withSubject(logger.Warn().Str("event", string(event)), payload).Msg("event dropped: buffer full")
	})

	bus.OnPanic(func(event Event, payload any, recovered any) {
		withSubject(logger.Error().Str("event", string(event)), payload).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}

// withSubject adds order_id and buyer_id fields for payload.
func withSubject(e *zerolog.Event, payload any) *zerolog.Event {
	orderID, buyerID := subject(payload)
	if orderID != "" {
		e = e.Str("order_id", orderID)
	}
	if buyerID != "" {
		e = e.Str("buyer_id", buyerID)
	}
	return e
}

func subject(payload any) (orderID, buyerID string) {
	switch p := payload.(type) {
	case OrderPlacedPayload:
		return p.Order.ID, p.Order.BuyerID
	case OrderUpdatedPayload:
		return p.Order.ID, p.Order.BuyerID
	case OrderLockedPayload:
		return p.Order.ID, p.Order.BuyerID
	case OrderCancelledPayload:
		return p.OrderID, p.BuyerID
	case DraftSavedPayload:
		return p.Cart.SourceOrderID, p.BuyerID
	case DraftClearedPayload:
		return "", p.BuyerID
	case ConflictDetectedPayload:
		if p.Conflict != nil {
			return p.Conflict.Remote.ID, p.BuyerID
		}
		return "", p.BuyerID
	case ConflictResolvedPayload:
		return p.OrderID, p.BuyerID
	default:
		return "", ""
	}
}

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook copies buyer_id and order_id from the event's context onto
// the log event.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if buyerID := GetBuyerID(ctx); buyerID != "" {
		e.Str("buyer_id", buyerID)
	}

	if orderID := GetOrderID(ctx); orderID != "" {
		e.Str("order_id", orderID)
	}
}

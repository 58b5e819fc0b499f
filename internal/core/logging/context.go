package logging

import "context"

type contextKey string

const (
	buyerIDKey contextKey = "buyer_id"
	orderIDKey contextKey = "order_id"
)

// WithBuyerID adds a buyer ID to the context.
func WithBuyerID(ctx context.Context, buyerID string) context.Context {
	return context.WithValue(ctx, buyerIDKey, buyerID)
}

// WithOrderID adds an order ID to the context.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, orderIDKey, orderID)
}

// GetBuyerID retrieves the buyer ID from the context.
// Returns empty string if not present.
func GetBuyerID(ctx context.Context) string {
	if id, ok := ctx.Value(buyerIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOrderID retrieves the order ID from the context.
// Returns empty string if not present.
func GetOrderID(ctx context.Context) string {
	if id, ok := ctx.Value(orderIDKey).(string); ok {
		return id
	}
	return ""
}

// Package profile defines the buyer profile mapping from pickup dates to
// placed orders.
package profile

import (
	"context"
	"maps"
	"slices"
)

// Store supplies the pickup date to order mapping of a buyer. Keys are
// yyyyMMdd date keys in the tenant's zone.
type Store interface {
	PickupOrders(ctx context.Context, buyerID string) (map[string]string, error)
	SetPickupOrder(ctx context.Context, buyerID, dateKey, orderID string) error
	RemovePickupOrder(ctx context.Context, buyerID, dateKey string) error
}

// OrderIDs returns the order ids of a mapping ordered by date key.
func OrderIDs(m map[string]string) []string {
	keys := slices.Sorted(maps.Keys(m))
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, m[k])
	}
	return ids
}

// KeyFor returns the date key mapped to orderID.
func KeyFor(m map[string]string, orderID string) (string, bool) {
	for k, id := range m {
		if id == orderID {
			return k, true
		}
	}
	return "", false
}

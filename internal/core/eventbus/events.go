// Package eventbus provides a typed publish/subscribe event bus that carries
// order and cart changes between the lifecycle coordinator, the lock sweeper
// and the metrics recorder.
package eventbus

import (
	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/core/order"
)

// Event names a kind of bus message.
type Event string

// Keep list sorted A-Z
const (
	EventConflictDetected Event = "conflict.detected"
	EventConflictResolved Event = "conflict.resolved"
	EventDraftCleared     Event = "draft.cleared"
	EventDraftSaved       Event = "draft.saved"
	EventNoticePublished  Event = "notice.published"
	EventOrderCancelled   Event = "order.cancelled"
	EventOrderLocked      Event = "order.locked"
	EventOrderPlaced      Event = "order.placed"
	EventOrderUpdated     Event = "order.updated"
)

// OrderPlacedPayload is emitted after checkout persists a new order.
type OrderPlacedPayload struct {
	Order order.PlacedOrder
}

// OrderUpdatedPayload is emitted after an order's lines are written back.
type OrderUpdatedPayload struct {
	Order order.PlacedOrder
}

// OrderCancelledPayload is emitted when a buyer cancels an order.
type OrderCancelledPayload struct {
	OrderID string
	BuyerID string
}

// OrderLockedPayload is emitted when the sweeper locks an order whose edit
// deadline has passed.
type OrderLockedPayload struct {
	Order order.PlacedOrder
}

// DraftSavedPayload is emitted after a cart mutation is persisted.
type DraftSavedPayload struct {
	BuyerID string
	Cart    basket.Cart
}

// DraftClearedPayload is emitted when the persisted draft is removed.
type DraftClearedPayload struct {
	BuyerID string
}

// ConflictDetectedPayload is emitted when a persisted cart diverges from
// the remote order it edits.
type ConflictDetectedPayload struct {
	BuyerID  string
	Conflict *merge.Conflict
}

// ConflictResolvedPayload is emitted after a conflict has been merged.
type ConflictResolvedPayload struct {
	BuyerID string
	OrderID string
	Policy  string
}

// NoticePublishedPayload is a user-facing message derived from a domain event.
type NoticePublishedPayload struct {
	Level   NoticeLevel
	Message string
}

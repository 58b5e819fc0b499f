// Package order defines placed order domain types and the store interface
// the lifecycle coordinator persists them through.
package order

import (
	"math"
	"slices"
	"time"
)

// Status represents the lifecycle state of a placed order.
// ENUM(draft, placed, locked, completed, cancelled).
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPlaced    Status = "placed"
	StatusLocked    Status = "locked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPlaced, StatusLocked, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Editable reports whether an order in this status may still change. The
// deadline is checked separately.
func (s Status) Editable() bool {
	return s == StatusPlaced
}

// CanBecome reports whether an order may move from s to next. Completed and
// cancelled orders are final.
func (s Status) CanBecome(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusPlaced
	case StatusPlaced:
		return next == StatusLocked || next == StatusCompleted || next == StatusCancelled
	case StatusLocked:
		return next == StatusCompleted
	default:
		return false
	}
}

// quantityTolerance absorbs float noise from fractional units (e.g. 0.1 kg steps).
const quantityTolerance = 1e-9

// Line is one product in a cart or order snapshot. UnitPrice is in minor
// currency units; Quantity may be fractional for weighed units.
type Line struct {
	ProductID   string  `json:"product_id"`
	DisplayName string  `json:"display_name"`
	Unit        string  `json:"unit"`
	UnitPrice   int64   `json:"unit_price"`
	Quantity    float64 `json:"quantity"`
}

// Total returns the line price in minor units, rounded half away from zero.
func (l Line) Total() int64 {
	return int64(math.Round(float64(l.UnitPrice) * l.Quantity))
}

// SameQuantity reports whether both lines order the same amount.
func (l Line) SameQuantity(other Line) bool {
	return math.Abs(l.Quantity-other.Quantity) <= quantityTolerance
}

// CloneLines returns a copy of lines that shares no backing array.
func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	return slices.Clone(lines)
}

// SumLines returns the total of all lines in minor units.
func SumLines(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

// PlacedOrder is an order the remote store holds for one pickup date.
//
// Version is bumped by the store on every write and is used to reject
// updates based on a stale read. Cleared is the server's tombstone for an
// order the buyer intentionally emptied; an order that merely arrives with
// no lines is not treated as cleared.
type PlacedOrder struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	BuyerID   string    `json:"buyer_id"`
	PickupAt  time.Time `json:"pickup_at"`
	Status    Status    `json:"status"`
	Lines     []Line    `json:"lines"`
	Version   int       `json:"version"`
	Cleared   bool      `json:"cleared,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the order.
func (o PlacedOrder) Clone() PlacedOrder {
	o.Lines = CloneLines(o.Lines)
	return o
}

// Total returns the order total in minor units.
func (o PlacedOrder) Total() int64 {
	return SumLines(o.Lines)
}

// MarkStatus transitions the order to status.
func (o *PlacedOrder) MarkStatus(status Status, now time.Time) {
	o.Status = status
	o.UpdatedAt = now
}

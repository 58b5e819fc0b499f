// Package basket owns the active cart of a session and enforces which
// mutations are legal for a fresh draft, an edit of a placed order, or an
// order past its deadline.
package basket

import (
	"context"
	"errors"
	"time"

	"github.com/hay-kot/pickup/internal/core/order"
)

var (
	// ErrNotEditable is returned when a mutation targets a locked cart.
	ErrNotEditable = errors.New("cart is not editable")

	// ErrDeadlinePassed is returned when an order update arrives after its
	// edit deadline.
	ErrDeadlinePassed = errors.New("edit deadline has passed")

	// ErrEmptyCart is returned when checking out a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrLineNotFound is returned when a product is not in the cart.
	ErrLineNotFound = errors.New("product not in cart")

	// ErrInvalidLine is returned for lines that cannot be priced.
	ErrInvalidLine = errors.New("invalid cart line")
)

// Line is a product in the cart.
type Line = order.Line

// Cart is an immutable snapshot of the session's cart. Every value handed
// out by the machine is a copy.
type Cart struct {
	Lines []Line `json:"lines"`
	// SourceOrderID is empty for a fresh draft.
	SourceOrderID string `json:"source_order_id,omitempty"`
	// SourcePickupDateKey is the yyyyMMdd pickup date of the source order,
	// or the date selected for a draft.
	SourcePickupDateKey string `json:"source_pickup_date_key,omitempty"`
	// SourceVersion is the version of the source order the lines were
	// based on. Saving against a newer version is a conflict.
	SourceVersion int       `json:"source_version,omitempty"`
	LastModified  time.Time `json:"last_modified"`
}

// IsDraft reports whether the cart is not tied to a placed order.
func (c Cart) IsDraft() bool { return c.SourceOrderID == "" }

// Total sums the lines in minor units.
func (c Cart) Total() int64 { return order.SumLines(c.Lines) }

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	c.Lines = order.CloneLines(c.Lines)
	return c
}

// Line returns the line for productID.
func (c Cart) Line(productID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

// DraftStore persists the buyer's unsynced cart between sessions.
type DraftStore interface {
	// LoadDraft returns the persisted cart; ok is false when none exists.
	LoadDraft(ctx context.Context, buyerID string) (cart Cart, ok bool, err error)
	SaveDraft(ctx context.Context, buyerID string, cart Cart) error
	ClearDraft(ctx context.Context, buyerID string) error
}

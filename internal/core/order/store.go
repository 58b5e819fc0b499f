package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/schedule"
)

var (
	// ErrNotFound is returned when an order id is unknown to the store.
	ErrNotFound = errors.New("order not found")

	// ErrNotEditable is returned when a write targets an order that can no
	// longer change.
	ErrNotEditable = errors.New("order not editable")

	// ErrStale is returned when an update was based on an outdated version.
	ErrStale = errors.New("order changed since it was read")
)

// Guard inspects the currently persisted order inside a store write and
// returns an error to reject the write. Stores run it after loading the row
// they are about to change, so the check sees the authoritative state.
type Guard func(current PlacedOrder) error

// Store is the remote order store.
type Store interface {
	// FetchOrders returns the orders with the given ids. Unknown ids are
	// skipped; the result is ordered by pickup date.
	FetchOrders(ctx context.Context, ids []string) ([]PlacedOrder, error)

	// PlaceOrder persists a new order and returns it with store-assigned
	// fields (version, timestamps) populated.
	PlaceOrder(ctx context.Context, o PlacedOrder) (PlacedOrder, error)

	// UpdateOrder replaces the lines of an existing order. It fails with
	// ErrNotEditable if the order may no longer change and ErrStale if
	// o.Version does not match the persisted version.
	UpdateOrder(ctx context.Context, o PlacedOrder) error

	// CancelOrder marks an editable order cancelled.
	CancelOrder(ctx context.Context, id string) error

	// ListByStatus returns all orders in the given status.
	ListByStatus(ctx context.Context, status Status) ([]PlacedOrder, error)

	// SetStatus transitions an order without touching its lines.
	SetStatus(ctx context.Context, id string, status Status) error
}

// CheckEditable runs guard, if any, after the status check every store
// applies.
func CheckEditable(current PlacedOrder, guard Guard) error {
	if !current.Status.Editable() {
		return ErrNotEditable
	}
	if guard != nil {
		return guard(current)
	}
	return nil
}

// Options configures a Store implementation.
type Options struct {
	// Tenant scopes every read and write.
	Tenant string
	// Zone derives yyyyMMdd date keys from pickup instants.
	Zone *time.Location
	// Guard runs inside every update and cancel after the status check.
	Guard Guard
	Clock clock.Clock
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.Tenant == "" {
		o.Tenant = "default"
	}
	if o.Zone == nil {
		o.Zone = time.UTC
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	return o
}

// DateKey returns the date key for pickup in the configured zone.
func (o Options) DateKey(pickup time.Time) string {
	return schedule.DateKey(pickup, o.Zone)
}

// PrepareNew fills store-assigned fields of an order about to be placed.
func (o Options) PrepareNew(p PlacedOrder) PlacedOrder {
	now := o.Clock.Now()
	p = p.Clone()
	p.Tenant = o.Tenant
	if p.Status == "" {
		p.Status = StatusPlaced
	}
	p.Version = 1
	p.Cleared = false
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

// ApplyUpdate checks an update against the persisted order and returns the
// row to write: lines replaced, version bumped and the cleared tombstone
// set when the buyer saved an empty order.
func (o Options) ApplyUpdate(current, update PlacedOrder) (PlacedOrder, error) {
	if err := CheckEditable(current, o.Guard); err != nil {
		return PlacedOrder{}, err
	}
	if update.Version != current.Version {
		return PlacedOrder{}, ErrStale
	}
	next := current.Clone()
	next.Lines = CloneLines(update.Lines)
	next.Cleared = len(update.Lines) == 0
	next.Version = current.Version + 1
	next.UpdatedAt = o.Clock.Now()
	return next, nil
}

// ApplyStatus returns current moved to status with its version bumped. A
// transition the current status does not allow is ErrNotEditable.
func (o Options) ApplyStatus(current PlacedOrder, status Status) (PlacedOrder, error) {
	if !current.Status.CanBecome(status) {
		return PlacedOrder{}, fmt.Errorf("%w: order %s is %s, cannot become %s", ErrNotEditable, current.ID, current.Status, status)
	}
	next := current.Clone()
	next.MarkStatus(status, o.Clock.Now())
	next.Version++
	return next, nil
}

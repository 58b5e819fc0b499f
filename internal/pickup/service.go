// Package pickup coordinates a buyer's cart with the order, draft and
// profile stores: it decides where a session's cart comes from and drives
// checkout, order edits, cancellation and conflict resolution.
package pickup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/logging"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/profile"
	"github.com/hay-kot/pickup/internal/core/schedule"
)

const defaultLookahead = 4

// Metrics receives counters the bus does not carry.
type Metrics interface {
	CartMutation(op string, err error)
	RemoteError(op string)
}

type nopMetrics struct{}

func (nopMetrics) CartMutation(string, error) {}
func (nopMetrics) RemoteError(string)         {}

// Deps are the collaborators of an OrderService. Orders, Drafts, Profiles
// and Calculator are required.
type Deps struct {
	Orders     order.Store
	Drafts     basket.DraftStore
	Profiles   profile.Store
	Calculator *schedule.Calculator
	Clock      clock.Clock
	Bus        *eventbus.EventBus
	Metrics    Metrics
	Logger     zerolog.Logger
	// Timeout bounds every store call; zero disables the bound.
	Timeout time.Duration
	// Lookahead is the number of pickup dates offered for checkout.
	Lookahead int
	// NewID generates order ids. Defaults to random UUIDs.
	NewID func() string
}

// OrderService opens buyer sessions and runs store-wide maintenance.
type OrderService struct {
	orders    order.Store
	drafts    basket.DraftStore
	profiles  profile.Store
	calc      *schedule.Calculator
	clock     clock.Clock
	bus       *eventbus.EventBus
	metrics   Metrics
	log       zerolog.Logger
	timeout   time.Duration
	lookahead int
	newID     func() string
}

// NewOrderService validates deps and fills defaults.
func NewOrderService(d Deps) (*OrderService, error) {
	switch {
	case d.Orders == nil:
		return nil, errors.New("order store is required")
	case d.Drafts == nil:
		return nil, errors.New("draft store is required")
	case d.Profiles == nil:
		return nil, errors.New("profile store is required")
	case d.Calculator == nil:
		return nil, errors.New("schedule calculator is required")
	}

	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Lookahead <= 0 {
		d.Lookahead = defaultLookahead
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}

	return &OrderService{
		orders:    d.Orders,
		drafts:    d.Drafts,
		profiles:  d.Profiles,
		calc:      d.Calculator,
		clock:     d.Clock,
		bus:       d.Bus,
		metrics:   d.Metrics,
		log:       d.Logger.With().Str("cmp", "orders").Logger(),
		timeout:   d.Timeout,
		lookahead: d.Lookahead,
		newID:     d.NewID,
	}, nil
}

// Now returns the service clock's current time.
func (s *OrderService) Now() time.Time { return s.clock.Now() }

// Calculator returns the schedule calculator sessions use.
func (s *OrderService) Calculator() *schedule.Calculator { return s.calc }

// AvailablePickups returns the pickup dates open for ordering at the
// current time.
func (s *OrderService) AvailablePickups() []schedule.PickupCycle {
	now := s.clock.Now()
	dates := s.calc.AvailableList(s.lookahead, now)
	out := make([]schedule.PickupCycle, 0, len(dates))
	for _, d := range dates {
		pc, err := s.calc.PickupCycle(d)
		if err != nil {
			continue
		}
		out = append(out, pc)
	}
	return out
}

// Orders returns the buyer's orders ordered by pickup date.
func (s *OrderService) Orders(ctx context.Context, buyerID string) ([]order.PlacedOrder, error) {
	m, err := s.pickupOrders(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, profile.OrderIDs(m))
}

// LockExpired moves every placed order whose edit deadline has passed to
// locked and returns the locked orders. Orders another writer moved out of
// placed in the meantime keep their status.
func (s *OrderService) LockExpired(ctx context.Context) ([]order.PlacedOrder, error) {
	var placed []order.PlacedOrder
	err := s.call(ctx, "list placed orders", func(ctx context.Context) error {
		var err error
		placed, err = s.orders.ListByStatus(ctx, order.StatusPlaced)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		locked []order.PlacedOrder
		errs   []error
	)
	for _, o := range placed {
		dl, err := s.calc.EditDeadline(o.PickupAt)
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", o.ID).Msg("skipping order with invalid pickup date")
			continue
		}
		if !now.After(dl) {
			continue
		}

		err = s.call(ctx, "lock order", func(ctx context.Context) error {
			return s.orders.SetStatus(ctx, o.ID, order.StatusLocked)
		})
		if errors.Is(err, order.ErrNotEditable) || errors.Is(err, order.ErrStale) {
			// completed or cancelled since it was listed
			s.log.Debug().Err(err).Str("order_id", o.ID).Msg("order moved before it could be locked")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("lock order %s: %w", o.ID, err))
			continue
		}

		o.MarkStatus(order.StatusLocked, now)
		o.Version++
		locked = append(locked, o)
		s.log.Info().Str("order_id", o.ID).Time("deadline", dl).Msg("order locked")
		s.emit(func(b *eventbus.EventBus) { b.PublishOrderLocked(eventbus.OrderLockedPayload{Order: o}) })
	}
	return locked, errors.Join(errs...)
}

// Open starts a session for buyerID. A persisted draft wins over the
// buyer's upcoming order so unsynced edits are never clobbered; without
// either the session starts an empty draft.
func (s *OrderService) Open(ctx context.Context, buyerID string) (*Session, error) {
	if buyerID == "" {
		return nil, errors.New("buyer id is required")
	}
	ctx = logging.WithBuyerID(ctx, buyerID)

	sess := newSession(s, buyerID)

	var (
		draft    basket.Cart
		hasDraft bool
	)
	err := s.call(ctx, "load draft", func(ctx context.Context) error {
		var err error
		draft, hasDraft, err = s.drafts.LoadDraft(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case hasDraft && draft.IsDraft():
		if _, err := sess.machine.Restore(draft, nil); err != nil {
			return nil, err
		}
	case hasDraft:
		if err := sess.restoreEdit(ctx, draft); err != nil {
			return nil, err
		}
	default:
		upcoming, err := s.upcoming(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		if upcoming == nil {
			sess.machine.StartDraft()
			break
		}
		if _, err := sess.machine.LoadOrder(*upcoming); err != nil {
			return nil, err
		}
		sess.remote = upcoming
	}

	sess.subscribe()

	s.log.Debug().
		Str("buyer_id", buyerID).
		Stringer("state", sess.machine.State()).
		Bool("conflict", sess.pending != nil).
		Msg("session opened")
	return sess, nil
}

// upcoming returns the buyer's order with the earliest pickup strictly in
// the future, or nil.
func (s *OrderService) upcoming(ctx context.Context, buyerID string) (*order.PlacedOrder, error) {
	orders, err := s.Orders(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	orders = slices.DeleteFunc(orders, func(o order.PlacedOrder) bool {
		return o.Status == order.StatusCancelled || !o.PickupAt.After(now)
	})
	if len(orders) == 0 {
		return nil, nil
	}
	first := slices.MinFunc(orders, func(a, b order.PlacedOrder) int { return a.PickupAt.Compare(b.PickupAt) })
	return &first, nil
}

func (s *OrderService) pickupOrders(ctx context.Context, buyerID string) (map[string]string, error) {
	var m map[string]string
	err := s.call(ctx, "load profile", func(ctx context.Context) error {
		var err error
		m, err = s.profiles.PickupOrders(ctx, buyerID)
		return err
	})
	return m, err
}

func (s *OrderService) fetch(ctx context.Context, ids []string) ([]order.PlacedOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []order.PlacedOrder
	err := s.call(ctx, "fetch orders", func(ctx context.Context) error {
		var err error
		out, err = s.orders.FetchOrders(ctx, ids)
		return err
	})
	return out, err
}

// fetchOne returns the order with id, or order.ErrNotFound.
func (s *OrderService) fetchOne(ctx context.Context, id string) (order.PlacedOrder, error) {
	got, err := s.fetch(ctx, []string{id})
	if err != nil {
		return order.PlacedOrder{}, err
	}
	for _, o := range got {
		if o.ID == id {
			return o, nil
		}
	}
	return order.PlacedOrder{}, fmt.Errorf("%w: %s", order.ErrNotFound, id)
}

// call runs fn under the remote timeout. Domain rejections pass through;
// anything else (transport failures, timeouts, cancellation) becomes an
// *IOError.
func (s *OrderService) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil || isDomainError(err) {
		return err
	}

	s.metrics.RemoteError(op)
	s.log.Warn().Err(err).Str("op", op).
		Str("buyer_id", logging.GetBuyerID(ctx)).
		Msg("store call failed")
	return &IOError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		order.ErrNotFound,
		order.ErrNotEditable,
		order.ErrStale,
		basket.ErrDeadlinePassed,
		schedule.ErrInvalidPickupDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *OrderService) emit(fn func(*eventbus.EventBus)) {
	if s.bus != nil {
		fn(s.bus)
	}
}

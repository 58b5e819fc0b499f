package pickup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/deadline"
	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/schedule"
)

// Session is one buyer's cart session. Actions are serialized; the
// machine's own lock keeps reads safe while an action runs.
type Session struct {
	svc     *OrderService
	buyerID string
	machine *basket.Machine
	log     zerolog.Logger

	mu sync.Mutex
	// remote is the last authoritative copy of the order the cart mirrors.
	remote  *order.PlacedOrder
	pending *merge.Conflict
	cancels []func()
}

// View is the read model handed to the CLI.
type View struct {
	BuyerID   string                 `json:"buyer_id"`
	State     basket.State           `json:"state"`
	Cart      basket.Cart            `json:"cart"`
	Total     int64                  `json:"total"`
	Window    *basket.Window         `json:"window,omitempty"`
	Remaining time.Duration          `json:"remaining,omitempty"`
	Available []schedule.PickupCycle `json:"available"`
	Conflict  *merge.Conflict        `json:"conflict,omitempty"`
}

func newSession(svc *OrderService, buyerID string) *Session {
	return &Session{
		svc:     svc,
		buyerID: buyerID,
		machine: basket.NewMachine(svc.calc, svc.clock),
		log:     svc.log.With().Str("buyer_id", buyerID).Logger(),
	}
}

// BuyerID returns the buyer the session belongs to.
func (s *Session) BuyerID() string { return s.buyerID }

// State returns the current cart state.
func (s *Session) State() basket.State { return s.machine.State() }

// View returns a snapshot of the cart, its window and the open pickup dates.
func (s *Session) View() View {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	v := View{
		BuyerID:   s.buyerID,
		State:     s.machine.State(),
		Cart:      s.machine.Snapshot(),
		Total:     s.machine.Total(),
		Available: s.svc.AvailablePickups(),
		Conflict:  pending,
	}
	if w, ok := s.machine.Window(); ok {
		v.Window = &w
		v.Remaining = deadline.Remaining(s.svc.clock.Now(), w.Deadline)
	}
	return v
}

// PendingConflict returns the unresolved conflict, if any.
func (s *Session) PendingConflict() *merge.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Orders returns the buyer's orders.
func (s *Session) Orders(ctx context.Context) ([]order.PlacedOrder, error) {
	return s.svc.Orders(ctx, s.buyerID)
}

// Close cancels the session's bus subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// AddOrUpdateLine adds line or replaces the line for the same product.
func (s *Session) AddOrUpdateLine(ctx context.Context, line basket.Line) error {
	return s.mutate(ctx, "add", func() error { return s.machine.AddOrUpdateLine(line) })
}

// RemoveLine removes productID from the cart.
func (s *Session) RemoveLine(ctx context.Context, productID string) error {
	return s.mutate(ctx, "remove", func() error { return s.machine.RemoveLine(productID) })
}

// SetQuantity changes the quantity of productID; zero or less removes it.
func (s *Session) SetQuantity(ctx context.Context, productID string, qty float64) error {
	return s.mutate(ctx, "set", func() error { return s.machine.SetQuantity(productID, qty) })
}

// SelectPickupDate records the yyyyMMdd pickup date the draft checks out for.
func (s *Session) SelectPickupDate(ctx context.Context, key string) error {
	return s.mutate(ctx, "date", func() error { return s.machine.SelectPickupDate(key) })
}

// StartNewDraft discards the cart and starts an empty draft.
func (s *Session) StartNewDraft(ctx context.Context) error {
	return s.mutate(ctx, "new", func() error {
		s.machine.StartDraft()
		return nil
	})
}

// Clear discards the cart and its persisted copy.
func (s *Session) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func() error {
		s.machine.Clear()
		return nil
	})
}

// mutate applies fn, keeps a pending conflict in step with the cart and
// persists the result. A failed persist rolls the machine back so local and
// persisted state never diverge.
func (s *Session) mutate(ctx context.Context, op string, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.svc.metrics.CartMutation(op, err) }()

	cp := s.machine.Checkpoint()
	remote, pending := s.remote, s.pending
	undo := func() {
		s.machine.Rollback(cp)
		s.remote, s.pending = remote, pending
	}
	if err := fn(); err != nil {
		return err
	}
	if err := s.refreshPending(); err != nil {
		undo()
		return err
	}
	if err := s.persist(ctx); err != nil {
		undo()
		return err
	}
	if s.machine.State() == basket.Empty || s.machine.Snapshot().IsDraft() {
		s.remote = nil
		s.pending = nil
	}
	return nil
}

// Checkout places the draft as a new order for its selected pickup date,
// or the first open one, and switches the session to editing that order.
func (s *Session) Checkout(ctx context.Context) (order.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.machine.State() {
	case basket.Draft:
	case basket.Empty:
		return order.PlacedOrder{}, basket.ErrEmptyCart
	default:
		return order.PlacedOrder{}, fmt.Errorf("%w: cart edits an order, save changes instead", ErrWrongState)
	}

	cart := s.machine.Snapshot()
	if len(cart.Lines) == 0 {
		return order.PlacedOrder{}, basket.ErrEmptyCart
	}

	pickup, err := s.pickupFor(cart.SourcePickupDateKey, s.svc.clock.Now())
	if err != nil {
		return order.PlacedOrder{}, err
	}
	key := s.svc.calc.DateKey(pickup)

	if err := s.checkNoOrderFor(ctx, key); err != nil {
		return order.PlacedOrder{}, err
	}

	var placed order.PlacedOrder
	err = s.svc.call(ctx, "place order", func(ctx context.Context) error {
		var err error
		placed, err = s.svc.orders.PlaceOrder(ctx, order.PlacedOrder{
			ID:       s.svc.newID(),
			BuyerID:  s.buyerID,
			PickupAt: pickup,
			Status:   order.StatusPlaced,
			Lines:    cart.Lines,
		})
		return err
	})
	if err != nil {
		return order.PlacedOrder{}, err
	}

	err = s.svc.call(ctx, "record pickup order", func(ctx context.Context) error {
		return s.svc.profiles.SetPickupOrder(ctx, s.buyerID, key, placed.ID)
	})
	if err != nil {
		// the order is unreachable without its profile entry
		if cerr := s.svc.call(ctx, "cancel order", func(ctx context.Context) error {
			return s.svc.orders.CancelOrder(ctx, placed.ID)
		}); cerr != nil {
			s.log.Error().Err(cerr).Str("order_id", placed.ID).Msg("failed to cancel unrecorded order")
		}
		return order.PlacedOrder{}, err
	}

	if _, err := s.machine.LoadOrder(placed); err != nil {
		return order.PlacedOrder{}, err
	}
	s.remote = &placed
	s.pending = nil

	s.log.Info().Str("order_id", placed.ID).Str("date_key", key).Int64("total", placed.Total()).Msg("order placed")
	s.svc.emit(func(b *eventbus.EventBus) { b.PublishOrderPlaced(eventbus.OrderPlacedPayload{Order: placed}) })

	// The persisted copy is still the draft that was just ordered. It must
	// not survive as a draft or a later session could order it again.
	if err := s.persist(ctx); err != nil {
		if cerr := s.clearDraft(ctx); cerr != nil {
			s.log.Error().Err(cerr).Str("order_id", placed.ID).Msg("ordered draft left in draft store")
			return placed, fmt.Errorf("order %s placed, saved cart not replaced: %w", placed.ID, err)
		}
		return placed, nil
	}
	s.clearDraftQuietly(ctx)
	return placed, nil
}

func (s *Session) pickupFor(key string, now time.Time) (time.Time, error) {
	available := s.svc.calc.AvailableList(s.svc.lookahead, now)
	if len(available) == 0 {
		return time.Time{}, ErrPickupUnavailable
	}
	if key == "" {
		return available[0], nil
	}

	want, err := s.svc.calc.ParseDateKey(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrPickupUnavailable, err)
	}
	for _, t := range available {
		if t.Equal(want) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s is not among the next %d open pickups", ErrPickupUnavailable, key, s.svc.lookahead)
}

// checkNoOrderFor rejects a second live order for the same pickup date.
func (s *Session) checkNoOrderFor(ctx context.Context, key string) error {
	m, err := s.svc.pickupOrders(ctx, s.buyerID)
	if err != nil {
		return err
	}
	id, ok := m[key]
	if !ok {
		return nil
	}
	existing, err := s.svc.fetchOne(ctx, id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.Status == order.StatusCancelled:
		return nil
	}
	return fmt.Errorf("%w: order %s already exists for %s, edit it instead", ErrPickupUnavailable, id, key)
}

// EnableEditing loads orderID into the cart for editing. An unsynced edit
// of the same order is checked for conflicts first; a draft with lines is
// only discarded when force is set.
func (s *Session) EnableEditing(ctx context.Context, orderID string, force bool) (basket.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.ownOrder(ctx, orderID)
	if err != nil {
		return s.machine.State(), err
	}

	cart := s.machine.Snapshot()
	state := s.machine.State()

	if state != basket.Empty && cart.SourceOrderID == orderID {
		return s.reEdit(ctx, cart, o)
	}

	if !force && s.unsynced() {
		return state, fmt.Errorf("%w: save, clear or force before editing order %s", ErrUnsavedDraft, orderID)
	}

	cp := s.machine.Checkpoint()
	next, err := s.machine.LoadOrder(o)
	if err != nil {
		return state, err
	}
	if err := s.persist(ctx); err != nil {
		s.machine.Rollback(cp)
		return state, err
	}
	s.remote = &o
	s.pending = nil
	s.log.Debug().Str("order_id", orderID).Stringer("state", next).Msg("editing order")
	return next, nil
}

// SaveChanges writes the edited lines back to the order. The order is
// re-read first and must still be placed and inside its window; the store
// checks the window again inside its own write. A remote order that moved
// since the cart was loaded is reported as a *ConflictError. Nothing local
// changes on failure.
func (s *Session) SaveChanges(ctx context.Context) (order.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.machine.Snapshot()
	if cart.IsDraft() {
		return order.PlacedOrder{}, fmt.Errorf("%w: no order is being edited", ErrWrongState)
	}

	fetched, err := s.svc.fetchOne(ctx, cart.SourceOrderID)
	if err != nil {
		return order.PlacedOrder{}, err
	}
	if err := s.machine.RefreshSource(fetched); err != nil {
		return order.PlacedOrder{}, err
	}
	if err := s.checkWritable(fetched); err != nil {
		return order.PlacedOrder{}, err
	}

	c := merge.Detect(cart, fetched)
	switch {
	case c == nil:
		// nothing to write, or the remote already moved to the same lines
		return s.synced(ctx, fetched)
	case fetched.Version != cart.SourceVersion:
		if !s.unsynced() {
			return s.synced(ctx, fetched)
		}
		s.remote = &fetched
		s.setPending(c)
		return order.PlacedOrder{}, &ConflictError{Conflict: c}
	}

	update := fetched.Clone()
	update.Lines = cart.Lines
	err = s.svc.call(ctx, "update order", func(ctx context.Context) error {
		return s.svc.orders.UpdateOrder(ctx, update)
	})
	if errors.Is(err, order.ErrStale) {
		return s.afterStale(ctx, cart)
	}
	if err != nil {
		return order.PlacedOrder{}, err
	}

	saved := fetched.Clone()
	saved.Lines = order.CloneLines(cart.Lines)
	saved.Cleared = len(cart.Lines) == 0
	saved.Version++
	saved.UpdatedAt = s.svc.clock.Now()

	if _, err := s.synced(ctx, saved); err != nil {
		return order.PlacedOrder{}, err
	}

	s.log.Info().Str("order_id", saved.ID).Int("version", saved.Version).Msg("order updated")
	s.svc.emit(func(b *eventbus.EventBus) { b.PublishOrderUpdated(eventbus.OrderUpdatedPayload{Order: saved}) })
	return saved, nil
}

// reEdit refreshes an edit of o already in the cart. Local edits survive
// unless the remote order moved underneath them.
func (s *Session) reEdit(ctx context.Context, cart basket.Cart, o order.PlacedOrder) (basket.State, error) {
	state := s.machine.State()
	if o.Version == cart.SourceVersion {
		if err := s.machine.RefreshSource(o); err != nil {
			return state, err
		}
		s.remote = &o
		return s.machine.State(), nil
	}

	if s.unsynced() {
		if c := merge.Detect(cart, o); c != nil {
			if err := s.machine.RefreshSource(o); err != nil {
				return state, err
			}
			s.remote = &o
			s.setPending(c)
			return s.machine.State(), &ConflictError{Conflict: c}
		}
	}

	cp := s.machine.Checkpoint()
	next, err := s.machine.LoadOrder(o)
	if err != nil {
		return state, err
	}
	if err := s.persist(ctx); err != nil {
		s.machine.Rollback(cp)
		return state, err
	}
	s.remote = &o
	s.pending = nil
	return next, nil
}

func (s *Session) checkWritable(o order.PlacedOrder) error {
	switch o.Status {
	case order.StatusPlaced:
	case order.StatusLocked:
		return fmt.Errorf("%w: order %s is locked", basket.ErrDeadlinePassed, o.ID)
	default:
		return fmt.Errorf("%w: order %s is %s", basket.ErrNotEditable, o.ID, o.Status)
	}
	return checkWindow(s.svc.calc, s.svc.clock.Now(), o)
}

// afterStale re-reads the order after a lost write race.
func (s *Session) afterStale(ctx context.Context, cart basket.Cart) (order.PlacedOrder, error) {
	latest, err := s.svc.fetchOne(ctx, cart.SourceOrderID)
	if err != nil {
		return order.PlacedOrder{}, err
	}
	if c := merge.Detect(cart, latest); c != nil {
		s.remote = &latest
		s.setPending(c)
		return order.PlacedOrder{}, &ConflictError{Conflict: c}
	}
	return s.synced(ctx, latest)
}

// synced mirrors o after the cart and the store agree and drops the
// persisted edit copy.
func (s *Session) synced(ctx context.Context, o order.PlacedOrder) (order.PlacedOrder, error) {
	if _, err := s.machine.LoadOrder(o); err != nil {
		return order.PlacedOrder{}, err
	}
	s.remote = &o
	s.pending = nil
	s.clearDraftQuietly(ctx)
	return o, nil
}

// CancelOrder cancels one of the buyer's orders while it is editable. A
// session editing that order falls back to an empty draft.
func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.ownOrder(ctx, orderID)
	if err != nil {
		return err
	}

	err = s.svc.call(ctx, "cancel order", func(ctx context.Context) error {
		return s.svc.orders.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}

	key := s.svc.calc.DateKey(o.PickupAt)
	err = s.svc.call(ctx, "remove pickup order", func(ctx context.Context) error {
		return s.svc.profiles.RemovePickupOrder(ctx, s.buyerID, key)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("cancelled order still mapped in profile")
	}

	if s.machine.Snapshot().SourceOrderID == orderID {
		s.machine.StartDraft()
		s.remote = nil
		s.pending = nil
		s.clearDraftQuietly(ctx)
	}

	s.log.Info().Str("order_id", orderID).Msg("order cancelled")
	s.svc.emit(func(b *eventbus.EventBus) {
		b.PublishOrderCancelled(eventbus.OrderCancelledPayload{OrderID: orderID, BuyerID: s.buyerID})
	})
	return nil
}

// ResolveConflict merges the live cart with the remote side of the pending
// conflict under policy and persists the merged cart.
func (s *Session) ResolveConflict(ctx context.Context, policy merge.Policy) (basket.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return basket.Cart{}, ErrNoConflict
	}
	if policy == nil {
		return basket.Cart{}, errors.New("resolve conflict: policy is required")
	}

	remote := s.pending.Remote.Clone()
	now := s.svc.clock.Now()

	var merged basket.Cart
	if c := merge.Detect(s.machine.Snapshot(), remote); c != nil {
		var err error
		if merged, err = merge.Resolve(c, policy, now); err != nil {
			return basket.Cart{}, err
		}
	} else {
		merged = rebase(s.machine.Snapshot(), remote, now)
	}

	cp := s.machine.Checkpoint()
	if _, err := s.machine.Restore(merged, &remote); err != nil {
		return basket.Cart{}, err
	}
	if err := s.persist(ctx); err != nil {
		s.machine.Rollback(cp)
		return basket.Cart{}, err
	}

	s.remote = &remote
	s.pending = nil

	name := merge.Name(policy)
	s.log.Info().Str("order_id", remote.ID).Str("policy", name).Msg("conflict resolved")
	s.svc.emit(func(b *eventbus.EventBus) {
		b.PublishConflictResolved(eventbus.ConflictResolvedPayload{BuyerID: s.buyerID, OrderID: remote.ID, Policy: name})
	})
	return merged, nil
}

// restoreEdit hydrates the session from a persisted edit of an order. A
// remote order that moved since the edit started becomes a pending
// conflict instead of overwriting either side.
func (s *Session) restoreEdit(ctx context.Context, draft basket.Cart) error {
	o, err := s.svc.fetchOne(ctx, draft.SourceOrderID)
	if errors.Is(err, order.ErrNotFound) {
		s.log.Warn().Str("order_id", draft.SourceOrderID).Msg("edited order no longer exists, keeping lines as draft")
		draft.SourceOrderID = ""
		draft.SourceVersion = 0
		_, err = s.machine.Restore(draft, nil)
		return err
	}
	if err != nil {
		return err
	}

	if _, err := s.machine.Restore(draft, &o); err != nil {
		return err
	}
	s.remote = &o

	if o.Version == draft.SourceVersion {
		return nil
	}
	if c := merge.Detect(draft, o); c != nil {
		s.setPending(c)
		return nil
	}
	_, err = s.machine.LoadOrder(o)
	return err
}

func (s *Session) ownOrder(ctx context.Context, orderID string) (order.PlacedOrder, error) {
	o, err := s.svc.fetchOne(ctx, orderID)
	if err != nil {
		return order.PlacedOrder{}, err
	}
	if o.BuyerID != s.buyerID {
		return order.PlacedOrder{}, fmt.Errorf("%w: %s", order.ErrNotFound, orderID)
	}
	return o, nil
}

// unsynced reports whether the cart holds changes that exist nowhere else.
func (s *Session) unsynced() bool {
	cart := s.machine.Snapshot()
	if cart.IsDraft() {
		return len(cart.Lines) > 0
	}
	if s.remote == nil || s.remote.ID != cart.SourceOrderID {
		return true
	}
	return merge.Detect(cart, *s.remote) != nil
}

// refreshPending re-detects the pending conflict against the live cart, so
// lines edited after detection take part in its resolution. A cart that now
// matches the remote order adopts its version and the conflict is gone.
func (s *Session) refreshPending() error {
	if s.pending == nil {
		return nil
	}
	cart := s.machine.Snapshot()
	if cart.SourceOrderID != s.pending.Remote.ID {
		return nil
	}
	if c := merge.Detect(cart, s.pending.Remote); c != nil {
		s.pending = c
		return nil
	}
	remote := s.pending.Remote.Clone()
	if _, err := s.machine.Restore(rebase(cart, remote, s.svc.clock.Now()), &remote); err != nil {
		return err
	}
	s.remote = &remote
	s.pending = nil
	return nil
}

// rebase moves cart onto the version of remote without touching its lines.
func rebase(cart basket.Cart, remote order.PlacedOrder, now time.Time) basket.Cart {
	cart = cart.Clone()
	cart.SourceVersion = remote.Version
	cart.LastModified = now
	return cart
}

func (s *Session) setPending(c *merge.Conflict) {
	s.pending = c
	s.log.Warn().Str("order_id", c.Remote.ID).Strs("products", c.ProductIDs()).Msg("cart conflicts with remote order")
	s.svc.emit(func(b *eventbus.EventBus) {
		b.PublishConflictDetected(eventbus.ConflictDetectedPayload{BuyerID: s.buyerID, Conflict: c})
	})
}

// persist writes the cart to the draft store, or clears it when empty.
func (s *Session) persist(ctx context.Context) error {
	if s.machine.State() == basket.Empty {
		return s.clearDraft(ctx)
	}
	cart := s.machine.Snapshot()
	err := s.svc.call(ctx, "save draft", func(ctx context.Context) error {
		return s.svc.drafts.SaveDraft(ctx, s.buyerID, cart)
	})
	if err != nil {
		return err
	}
	s.svc.emit(func(b *eventbus.EventBus) {
		b.PublishDraftSaved(eventbus.DraftSavedPayload{BuyerID: s.buyerID, Cart: cart})
	})
	return nil
}

func (s *Session) clearDraft(ctx context.Context) error {
	err := s.svc.call(ctx, "clear draft", func(ctx context.Context) error {
		return s.svc.drafts.ClearDraft(ctx, s.buyerID)
	})
	if err != nil {
		return err
	}
	s.svc.emit(func(b *eventbus.EventBus) {
		b.PublishDraftCleared(eventbus.DraftClearedPayload{BuyerID: s.buyerID})
	})
	return nil
}

// clearDraftQuietly drops a persisted edit copy whose lines the store
// already holds. A leftover copy restores as an edit of that order.
func (s *Session) clearDraftQuietly(ctx context.Context) {
	if err := s.clearDraft(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear draft")
	}
}

// subscribe follows changes to the mirrored order made by other sessions
// and the lock sweeper.
func (s *Session) subscribe() {
	bus := s.svc.bus
	if bus == nil {
		return
	}
	s.cancels = append(s.cancels,
		bus.SubscribeOrderUpdated(func(p eventbus.OrderUpdatedPayload) { s.onRemote(p.Order) }),
		bus.SubscribeOrderLocked(func(p eventbus.OrderLockedPayload) { s.onRemote(p.Order) }),
		bus.SubscribeOrderCancelled(s.onCancelled),
	)
}

// onRemote applies a newer copy of the mirrored order. A cart without
// unsynced edits follows it; otherwise the divergence becomes a pending
// conflict.
func (s *Session) onRemote(o order.PlacedOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.machine.Snapshot()
	if cart.IsDraft() || cart.SourceOrderID != o.ID {
		return
	}
	if s.remote != nil && o.Version <= s.remote.Version {
		return
	}

	ctx := context.Background()
	if !s.unsynced() {
		if _, err := s.machine.LoadOrder(o); err != nil {
			s.log.Warn().Err(err).Str("order_id", o.ID).Msg("failed to reload order")
			return
		}
		s.remote = &o
		if err := s.persist(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist reloaded order")
		}
		s.log.Debug().Str("order_id", o.ID).Int("version", o.Version).Msg("reloaded remote order")
		return
	}

	if err := s.machine.RefreshSource(o); err != nil {
		s.log.Warn().Err(err).Str("order_id", o.ID).Msg("failed to refresh order")
		return
	}
	s.remote = &o
	if !o.Status.Editable() {
		return
	}
	if c := merge.Detect(cart, o); c != nil {
		s.setPending(c)
	}
}

func (s *Session) onCancelled(p eventbus.OrderCancelledPayload) {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if remote == nil || remote.ID != p.OrderID || remote.Status == order.StatusCancelled {
		return
	}
	o := remote.Clone()
	o.MarkStatus(order.StatusCancelled, s.svc.clock.Now())
	o.Version++
	s.onRemote(o)
}

package basket

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/deadline"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/schedule"
)

// State is the editing state of the cart.
type State int

const (
	Empty State = iota
	Draft
	EditingOrder
	LockedView
)

var stateNames = [...]string{
	Empty:        "empty",
	Draft:        "draft",
	EditingOrder: "editing-order",
	LockedView:   "locked-view",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name for JSON output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Window describes the edit window of the order a cart mirrors.
type Window struct {
	OrderID  string                `json:"order_id"`
	Pickup   time.Time             `json:"pickup"`
	Deadline time.Time             `json:"deadline"`
	Status   deadline.WindowStatus `json:"status"`
	Urgency  deadline.Urgency      `json:"urgency"`
	// OrderStatus is the status of the order as last loaded.
	OrderStatus order.Status `json:"order_status"`
}

// source is what the machine remembers about the order a cart mirrors.
type source struct {
	id       string
	pickup   time.Time
	deadline time.Time
	status   order.Status
}

// Checkpoint is an opaque copy of the machine's state used to undo a
// mutation whose persistence failed.
type Checkpoint struct {
	empty bool
	cart  Cart
	src   *source
}

// Machine is the cart state machine of one session. Mutations are
// serialized; reads may run concurrently. The editing state is derived from
// the clock on every call, so a cart whose deadline passes mid-session
// locks without any explicit transition.
type Machine struct {
	calc  *schedule.Calculator
	clock clock.Clock

	mu    sync.RWMutex
	empty bool
	cart  Cart
	src   *source
}

// NewMachine returns a machine in the Empty state.
func NewMachine(calc *schedule.Calculator, clk clock.Clock) *Machine {
	return &Machine{calc: calc, clock: clk, empty: true}
}

// State returns the current editing state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateAt(m.clock.Now())
}

func (m *Machine) stateAt(now time.Time) State {
	switch {
	case m.empty:
		return Empty
	case m.src == nil:
		return Draft
	case m.src.status.Editable() && deadline.Status(now, m.src.deadline, m.src.pickup) == deadline.Open:
		return EditingOrder
	default:
		return LockedView
	}
}

// Snapshot returns a copy of the current cart.
func (m *Machine) Snapshot() Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

// Total recomputes the cart total in minor units.
func (m *Machine) Total() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Total()
}

// Window returns the edit window of the mirrored order; ok is false for
// drafts and empty carts.
func (m *Machine) Window() (w Window, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.src == nil {
		return Window{}, false
	}
	now := m.clock.Now()
	return Window{
		OrderID:     m.src.id,
		Pickup:      m.src.pickup,
		Deadline:    m.src.deadline,
		Status:      deadline.Status(now, m.src.deadline, m.src.pickup),
		Urgency:     deadline.Level(now, m.src.deadline),
		OrderStatus: m.src.status,
	}, true
}

// Checkpoint captures the current state.
func (m *Machine) Checkpoint() Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := Checkpoint{empty: m.empty, cart: m.cart.Clone()}
	if m.src != nil {
		src := *m.src
		cp.src = &src
	}
	return cp
}

// Rollback restores a state captured by Checkpoint.
func (m *Machine) Rollback(cp Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.empty = cp.empty
	m.cart = cp.cart.Clone()
	m.src = nil
	if cp.src != nil {
		src := *cp.src
		m.src = &src
	}
}

// StartDraft discards the current cart and starts an empty draft.
func (m *Machine) StartDraft() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.empty = false
	m.src = nil
	m.cart = Cart{LastModified: m.clock.Now()}
}

// Clear discards the cart and returns to Empty.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.empty = true
	m.src = nil
	m.cart = Cart{LastModified: m.clock.Now()}
}

// LoadOrder mirrors o in the cart. The result is EditingOrder while the
// order is placed and its window is open, LockedView otherwise.
func (m *Machine) LoadOrder(o order.PlacedOrder) (State, error) {
	src, err := m.sourceFor(o)
	if err != nil {
		return Empty, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.empty = false
	m.src = src
	m.cart = Cart{
		Lines:               order.CloneLines(o.Lines),
		SourceOrderID:       o.ID,
		SourcePickupDateKey: m.calc.DateKey(o.PickupAt),
		SourceVersion:       o.Version,
		LastModified:        now,
	}
	return m.stateAt(now), nil
}

// Restore hydrates the machine from a persisted cart. A cart that edits an
// order needs that order's metadata to classify its window; the lines of
// the cart are kept as they are.
func (m *Machine) Restore(cart Cart, o *order.PlacedOrder) (State, error) {
	var src *source
	if !cart.IsDraft() {
		if o == nil || o.ID != cart.SourceOrderID {
			return Empty, fmt.Errorf("restore cart for order %s: order metadata missing", cart.SourceOrderID)
		}
		var err error
		if src, err = m.sourceFor(*o); err != nil {
			return Empty, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.empty = false
	m.src = src
	m.cart = cart.Clone()
	return m.stateAt(m.clock.Now()), nil
}

// RefreshSource updates the mirrored order's metadata (status, pickup)
// without touching the cart lines.
func (m *Machine) RefreshSource(o order.PlacedOrder) error {
	src, err := m.sourceFor(o)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil || m.src.id != o.ID {
		return fmt.Errorf("cart does not mirror order %s", o.ID)
	}
	m.src = src
	return nil
}

func (m *Machine) sourceFor(o order.PlacedOrder) (*source, error) {
	dl, err := m.calc.EditDeadline(o.PickupAt)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return &source{id: o.ID, pickup: o.PickupAt, deadline: dl, status: o.Status}, nil
}

// AddOrUpdateLine adds line or replaces the line with the same product.
// Adding to an empty cart starts a draft.
func (m *Machine) AddOrUpdateLine(line Line) error {
	if err := validateLine(line); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if err := m.checkEditable(now); err != nil {
		return err
	}

	m.empty = false
	for i, existing := range m.cart.Lines {
		if existing.ProductID == line.ProductID {
			m.cart.Lines = order.CloneLines(m.cart.Lines)
			m.cart.Lines[i] = line
			m.cart.LastModified = now
			return nil
		}
	}
	m.cart.Lines = append(order.CloneLines(m.cart.Lines), line)
	m.cart.LastModified = now
	return nil
}

// RemoveLine removes the line for productID.
func (m *Machine) RemoveLine(productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(productID, m.clock.Now())
}

// SetQuantity changes the quantity of an existing line. A quantity of zero
// or less removes the line.
func (m *Machine) SetQuantity(productID string, qty float64) error {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return fmt.Errorf("%w: quantity %v", ErrInvalidLine, qty)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if qty <= 0 {
		return m.removeLocked(productID, now)
	}
	if err := m.checkEditable(now); err != nil {
		return err
	}

	idx := m.indexOf(productID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	m.cart.Lines = order.CloneLines(m.cart.Lines)
	m.cart.Lines[idx].Quantity = qty
	m.cart.LastModified = now
	return nil
}

// SelectPickupDate records the pickup date a draft will be checked out for.
// The pickup date of a placed order cannot change.
func (m *Machine) SelectPickupDate(key string) error {
	if _, err := m.calc.ParseDateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	switch m.stateAt(now) {
	case Empty:
		m.empty = false
	case Draft:
	default:
		return fmt.Errorf("%w: pickup date of order %s is fixed", ErrNotEditable, m.src.id)
	}
	m.cart.SourcePickupDateKey = key
	m.cart.LastModified = now
	return nil
}

func (m *Machine) removeLocked(productID string, now time.Time) error {
	if err := m.checkEditable(now); err != nil {
		return err
	}
	idx := m.indexOf(productID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	lines := make([]Line, 0, len(m.cart.Lines)-1)
	lines = append(lines, m.cart.Lines[:idx]...)
	lines = append(lines, m.cart.Lines[idx+1:]...)
	m.cart.Lines = lines
	m.cart.LastModified = now
	return nil
}

func (m *Machine) checkEditable(now time.Time) error {
	if m.stateAt(now) != LockedView {
		return nil
	}
	return fmt.Errorf("%w: order %s is %s, window %s",
		ErrNotEditable, m.src.id, m.src.status, deadline.Status(now, m.src.deadline, m.src.pickup))
}

func (m *Machine) indexOf(productID string) int {
	for i, l := range m.cart.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func validateLine(l Line) error {
	switch {
	case strings.TrimSpace(l.ProductID) == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidLine)
	case l.UnitPrice < 0:
		return fmt.Errorf("%w: %s: negative unit price", ErrInvalidLine, l.ProductID)
	case math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0) || l.Quantity <= 0:
		return fmt.Errorf("%w: %s: quantity must be positive", ErrInvalidLine, l.ProductID)
	}
	return nil
}

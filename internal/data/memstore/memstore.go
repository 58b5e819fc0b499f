// Package memstore provides in-memory order, draft and profile stores for
// tests and throwaway sessions.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/profile"
)

var (
	_ order.Store       = (*Orders)(nil)
	_ basket.DraftStore = (*Drafts)(nil)
	_ profile.Store     = (*Profiles)(nil)
)

// Orders is an in-memory order.Store.
type Orders struct {
	opts order.Options

	mu     sync.Mutex
	orders map[string]order.PlacedOrder
}

// NewOrders returns an empty order store.
func NewOrders(opts order.Options) *Orders {
	return &Orders{opts: opts.WithDefaults(), orders: make(map[string]order.PlacedOrder)}
}

// FetchOrders returns the known orders among ids ordered by pickup date.
func (s *Orders) FetchOrders(_ context.Context, ids []string) ([]order.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []order.PlacedOrder
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

// PlaceOrder stores a new order.
func (s *Orders) PlaceOrder(_ context.Context, o order.PlacedOrder) (order.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return order.PlacedOrder{}, fmt.Errorf("order %s already exists", o.ID)
	}
	o = s.opts.PrepareNew(o)
	s.orders[o.ID] = o
	return o.Clone(), nil
}

// UpdateOrder replaces the lines of an editable order.
func (s *Orders) UpdateOrder(_ context.Context, o order.PlacedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrNotFound, o.ID)
	}
	next, err := s.opts.ApplyUpdate(current, o)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	s.orders[o.ID] = next
	return nil
}

// CancelOrder marks an editable order cancelled.
func (s *Orders) CancelOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}
	if err := order.CheckEditable(current, s.opts.Guard); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	next, err := s.opts.ApplyStatus(current, order.StatusCancelled)
	if err != nil {
		return err
	}
	s.orders[id] = next
	return nil
}

// ListByStatus returns all orders in status.
func (s *Orders) ListByStatus(_ context.Context, status order.Status) ([]order.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []order.PlacedOrder
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

// SetStatus transitions an order without touching its lines. Transitions
// the current status does not allow fail with order.ErrNotEditable.
func (s *Orders) SetStatus(_ context.Context, id string, status order.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}
	next, err := s.opts.ApplyStatus(current, status)
	if err != nil {
		return err
	}
	s.orders[id] = next
	return nil
}

// Put stores o as is, bypassing every check. Tests use it to simulate
// edits made by another device.
func (s *Orders) Put(o order.PlacedOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

// Get returns the stored order.
func (s *Orders) Get(id string) (order.PlacedOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o.Clone(), ok
}

func sortOrders(orders []order.PlacedOrder) {
	slices.SortFunc(orders, func(a, b order.PlacedOrder) int {
		if c := a.PickupAt.Compare(b.PickupAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Drafts is an in-memory basket.DraftStore.
type Drafts struct {
	mu     sync.Mutex
	drafts map[string]basket.Cart
}

// NewDrafts returns an empty draft store.
func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[string]basket.Cart)}
}

func (s *Drafts) LoadDraft(_ context.Context, buyerID string) (basket.Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.drafts[buyerID]
	return c.Clone(), ok, nil
}

func (s *Drafts) SaveDraft(_ context.Context, buyerID string, cart basket.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[buyerID] = cart.Clone()
	return nil
}

func (s *Drafts) ClearDraft(_ context.Context, buyerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, buyerID)
	return nil
}

// Profiles is an in-memory profile.Store.
type Profiles struct {
	mu    sync.Mutex
	byKey map[string]map[string]string
}

// NewProfiles returns an empty profile store.
func NewProfiles() *Profiles {
	return &Profiles{byKey: make(map[string]map[string]string)}
}

func (s *Profiles) PickupOrders(_ context.Context, buyerID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.byKey[buyerID])
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (s *Profiles) SetPickupOrder(_ context.Context, buyerID, dateKey, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byKey[buyerID]
	if !ok {
		m = make(map[string]string)
		s.byKey[buyerID] = m
	}
	m[dateKey] = orderID
	return nil
}

func (s *Profiles) RemovePickupOrder(_ context.Context, buyerID, dateKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey[buyerID], dateKey)
	return nil
}

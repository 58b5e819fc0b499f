package pickup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/data/memstore"
)

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.AddOrUpdateLine(ctx, apple))
	_, ok, _ := f.drafts.LoadDraft(ctx, buyer)
	require.True(t, ok, "mutation persists the draft")

	placed, err := s.Checkout(ctx)
	require.NoError(t, err)

	assert.Equal(t, "order-1", placed.ID)
	assert.Equal(t, order.StatusPlaced, placed.Status)
	assert.Equal(t, 1, placed.Version)
	assert.True(t, placed.PickupAt.Equal(thursday))
	assert.Equal(t, basket.EditingOrder, s.State())
	assert.Equal(t, "order-1", s.View().Cart.SourceOrderID)

	m, err := f.profiles.PickupOrders(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"20240118": "order-1"}, m)

	_, ok, _ = f.drafts.LoadDraft(ctx, buyer)
	assert.False(t, ok, "checkout clears the draft")
	assert.True(t, f.bus.WaitFor(eventbus.EventOrderPlaced, time.Second))
}

func TestCheckout_SelectedDate(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.AddOrUpdateLine(ctx, bread))
	require.NoError(t, s.SelectPickupDate(ctx, "20240125"))

	placed, err := s.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20240125", f.calc.DateKey(placed.PickupAt))
}

func TestCheckout_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		s := newFixture(t).open(t)
		_, err := s.Checkout(ctx)
		require.ErrorIs(t, err, basket.ErrEmptyCart)
	})

	t.Run("date beyond lookahead", func(t *testing.T) {
		s := newFixture(t).open(t)
		require.NoError(t, s.AddOrUpdateLine(ctx, apple))
		require.NoError(t, s.SelectPickupDate(ctx, "20240229"))

		_, err := s.Checkout(ctx)
		require.ErrorIs(t, err, ErrPickupUnavailable)
		assert.Equal(t, basket.Draft, s.State())
	})

	t.Run("date already ordered", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "existing", thursday, apple)
		s := f.open(t)
		require.NoError(t, s.StartNewDraft(ctx))
		require.NoError(t, s.AddOrUpdateLine(ctx, bread))

		_, err := s.Checkout(ctx)
		require.ErrorIs(t, err, ErrPickupUnavailable)
	})

	t.Run("editing an order", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "existing", thursday, apple)
		s := f.open(t)

		_, err := s.Checkout(ctx)
		require.ErrorIs(t, err, ErrWrongState)
	})
}

func TestCheckout_DraftClearFails(t *testing.T) {
	drafts := &failingDrafts{}
	f := newFixture(t, func(f *fixture, d *Deps) {
		drafts.Drafts = f.drafts
		d.Drafts = drafts
	})
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdateLine(ctx, apple))
	drafts.clearErr = errBoom

	placed, err := s.Checkout(ctx)
	require.NoError(t, err)

	saved, ok, err := f.drafts.LoadDraft(ctx, buyer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, placed.ID, saved.SourceOrderID, "leftover copy is an edit of the placed order")

	reopened := f.open(t)
	assert.Equal(t, basket.EditingOrder, reopened.State())
	assert.Equal(t, placed.ID, reopened.View().Cart.SourceOrderID)
	assert.Nil(t, reopened.PendingConflict())

	_, err = reopened.Checkout(ctx)
	require.ErrorIs(t, err, ErrWrongState, "the ordered lines cannot be checked out twice")
}

func TestCheckout_DraftSaveFails(t *testing.T) {
	drafts := &failingDrafts{}
	f := newFixture(t, func(f *fixture, d *Deps) {
		drafts.Drafts = f.drafts
		d.Drafts = drafts
	})
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdateLine(ctx, apple))

	t.Run("clear still drops the draft", func(t *testing.T) {
		drafts.err = errBoom

		_, err := s.Checkout(ctx)
		require.NoError(t, err)

		_, ok, err := f.drafts.LoadDraft(ctx, buyer)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("draft store down", func(t *testing.T) {
		f := newFixture(t, func(f *fixture, d *Deps) {
			drafts.Drafts = f.drafts
			d.Drafts = drafts
		})
		drafts.err = nil
		drafts.clearErr = nil
		s := f.open(t)
		require.NoError(t, s.AddOrUpdateLine(ctx, apple))
		drafts.err = errBoom
		drafts.clearErr = errBoom

		placed, err := s.Checkout(ctx)
		require.ErrorIs(t, err, ErrIO)
		assert.Equal(t, "order-1", placed.ID, "order is placed even though the draft remains")
		assert.Equal(t, basket.EditingOrder, s.State())
	})
}

func TestSaveChanges(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))

	saved, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	got, _ := f.orders.Get("next")
	assert.Equal(t, 2, got.Version)
	assert.InDelta(t, 5, got.Lines[0].Quantity, 1e-9)

	assert.Equal(t, 2, s.View().Cart.SourceVersion)
	_, ok, _ := f.drafts.LoadDraft(ctx, buyer)
	assert.False(t, ok)
	assert.True(t, f.bus.WaitFor(eventbus.EventOrderUpdated, time.Second))
}

func TestSaveChanges_NothingToWrite(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)

	saved, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	got, _ := f.orders.Get("next")
	assert.Equal(t, 1, got.Version)
}

func TestSaveChanges_EmptyOrderIsTombstoned(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.RemoveLine(ctx, "apple"))
	saved, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.True(t, saved.Cleared)

	got, _ := f.orders.Get("next")
	assert.True(t, got.Cleared)
	assert.Empty(t, got.Lines)
	assert.Equal(t, basket.EditingOrder, s.State())
}

func TestSaveChanges_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))
	f.clk.Set(wednesday)

	_, err := s.SaveChanges(ctx)
	require.ErrorIs(t, err, basket.ErrDeadlinePassed)

	got, _ := f.orders.Get("next")
	assert.Equal(t, 1, got.Version)
	assert.InDelta(t, 5, s.View().Cart.Lines[0].Quantity, 1e-9, "local edits survive")
}

func TestSaveChanges_CancelledOrder(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.SetQuantity(ctx, "apple", 5))

	o.Status = order.StatusCancelled
	o.Version = 2
	f.orders.Put(o)

	_, err := s.SaveChanges(ctx)
	require.ErrorIs(t, err, basket.ErrNotEditable)
	assert.Equal(t, basket.LockedView, s.State())
}

func TestSaveChanges_RemoteMovedIsConflict(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))
	f.remoteEdit(t, "next", bread)

	_, err := s.SaveChanges(ctx)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, []string{"apple", "bread"}, conflictErr.Conflict.ProductIDs())
	require.NotNil(t, s.PendingConflict())
	assert.True(t, f.bus.WaitFor(eventbus.EventConflictDetected, time.Second))

	merged, err := s.ResolveConflict(ctx, merge.PreferLocal{})
	require.NoError(t, err)
	assert.Len(t, merged.Lines, 2)
	assert.Equal(t, 2, merged.SourceVersion)
	assert.Nil(t, s.PendingConflict())
	assert.True(t, f.bus.WaitFor(eventbus.EventConflictResolved, time.Second))

	saved, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Version)
	assert.Len(t, saved.Lines, 2)
}

func TestSaveChanges_RemoteMovedWithoutLocalEdits(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)

	f.remoteEdit(t, "next", bread)

	saved, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, []basket.Line{bread}, s.View().Cart.Lines)
	assert.Nil(t, s.PendingConflict())
}

func TestSaveChanges_LostRaceIsConflict(t *testing.T) {
	var racing *racingOrders
	f := newFixture(t, func(f *fixture, d *Deps) {
		racing = &racingOrders{Orders: f.orders}
		d.Orders = racing
	})
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))
	racing.before = func() { f.remoteEdit(t, "next", bread) }

	_, err := s.SaveChanges(ctx)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, 2, conflictErr.Conflict.Remote.Version)

	got, _ := f.orders.Get("next")
	assert.Equal(t, []order.Line{bread}, got.Lines, "remote write kept")

	merged, err := s.ResolveConflict(ctx, merge.PreferRemote{})
	require.NoError(t, err)
	assert.Len(t, merged.Lines, 2, "local-only line kept without tombstone")

	saved, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Version)
}

func TestResolveConflict_KeepsEditsMadeAfterDetection(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))
	f.remoteEdit(t, "next", bread)
	_, err := s.SaveChanges(ctx)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	cheese := basket.Line{ProductID: "cheese", DisplayName: "Cheese", Unit: "pc", UnitPrice: 600, Quantity: 1}
	require.NoError(t, s.AddOrUpdateLine(ctx, cheese))

	pending := s.PendingConflict()
	require.NotNil(t, pending)
	assert.Equal(t, []string{"apple", "bread", "cheese"}, pending.ProductIDs())

	merged, err := s.ResolveConflict(ctx, merge.PreferLocal{})
	require.NoError(t, err)

	ids := make([]string, len(merged.Lines))
	for i, l := range merged.Lines {
		ids[i] = l.ProductID
	}
	assert.Equal(t, []string{"apple", "cheese", "bread"}, ids)
	assert.Equal(t, merged.Lines, s.View().Cart.Lines)

	saved, ok, err := f.drafts.LoadDraft(ctx, buyer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, merged.Lines, saved.Lines)
}

func TestResolveConflict_CartMatchingRemoteAdoptsVersion(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.SetQuantity(ctx, "apple", 5))
	f.remoteEdit(t, "next", bread)
	_, err := s.SaveChanges(ctx)
	require.Error(t, err)
	require.NotNil(t, s.PendingConflict())

	require.NoError(t, s.RemoveLine(ctx, "apple"))
	require.NotNil(t, s.PendingConflict(), "bread is still missing locally")
	require.NoError(t, s.AddOrUpdateLine(ctx, bread))

	assert.Nil(t, s.PendingConflict())
	assert.Equal(t, 2, s.View().Cart.SourceVersion)

	saved, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version, "nothing left to write")
}

func TestResolveConflict_NothingPending(t *testing.T) {
	s := newFixture(t).open(t)
	_, err := s.ResolveConflict(context.Background(), merge.PreferLocal{})
	require.ErrorIs(t, err, ErrNoConflict)
}

func TestEnableEditing(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdateLine(ctx, bread))

	f.seedOrder(t, "next", thursday, apple)

	_, err := s.EnableEditing(ctx, "next", false)
	require.ErrorIs(t, err, ErrUnsavedDraft)
	assert.Equal(t, basket.Draft, s.State())

	state, err := s.EnableEditing(ctx, "next", true)
	require.NoError(t, err)
	assert.Equal(t, basket.EditingOrder, state)
	assert.Equal(t, []basket.Line{apple}, s.View().Cart.Lines)

	draft, ok, err := f.drafts.LoadDraft(ctx, buyer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "next", draft.SourceOrderID)
}

func TestEnableEditing_SameOrderKeepsEdits(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdateLine(ctx, bread))

	_, err := s.EnableEditing(ctx, "next", false)
	require.NoError(t, err)
	assert.Len(t, s.View().Cart.Lines, 2)

	f.remoteEdit(t, "next")
	_, err = s.EnableEditing(ctx, "next", false)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestEnableEditing_ReloadsMovedOrderWithoutEdits(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)

	f.remoteEdit(t, "next", bread)

	_, err := s.EnableEditing(context.Background(), "next", false)
	require.NoError(t, err)
	assert.Equal(t, []basket.Line{bread}, s.View().Cart.Lines)
	assert.Equal(t, 2, s.View().Cart.SourceVersion)
}

func TestEnableEditing_OtherBuyersOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(order.PlacedOrder{ID: "theirs", BuyerID: "buyer-2", PickupAt: thursday, Status: order.StatusPlaced, Version: 1})
	s := f.open(t)

	_, err := s.EnableEditing(context.Background(), "theirs", true)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.CancelOrder(ctx, "next"))

	got, _ := f.orders.Get("next")
	assert.Equal(t, order.StatusCancelled, got.Status)
	m, err := f.profiles.PickupOrders(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Equal(t, basket.Draft, s.State())
	assert.True(t, f.bus.WaitFor(eventbus.EventOrderCancelled, time.Second))
}

func TestCancelOrder_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)
	f.clk.Set(wednesday)

	err := s.CancelOrder(context.Background(), "next")
	require.ErrorIs(t, err, basket.ErrDeadlinePassed)

	got, _ := f.orders.Get("next")
	assert.Equal(t, order.StatusPlaced, got.Status)
}

func TestMutate_RollsBackWhenPersistFails(t *testing.T) {
	drafts := &failingDrafts{}
	metrics := &recordingMetrics{}
	f := newFixture(t, func(f *fixture, d *Deps) {
		drafts.Drafts = f.drafts
		d.Drafts = drafts
		d.Metrics = metrics
	})
	s := f.open(t)
	ctx := context.Background()

	require.NoError(t, s.AddOrUpdateLine(ctx, apple))
	drafts.err = errBoom

	err := s.AddOrUpdateLine(ctx, bread)
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []basket.Line{apple}, s.View().Cart.Lines)

	saved, ok, _ := f.drafts.LoadDraft(ctx, buyer)
	require.True(t, ok)
	assert.Equal(t, []basket.Line{apple}, saved.Lines)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"add:ok", "add:rejected"}, metrics.mutations)
	assert.Equal(t, []string{"save draft"}, metrics.remote)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdateLine(ctx, apple))

	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, basket.Empty, s.State())
	_, ok, _ := f.drafts.LoadDraft(ctx, buyer)
	assert.False(t, ok)
	assert.True(t, f.bus.WaitFor(eventbus.EventDraftCleared, time.Second))
}

func TestSession_FollowsRemoteUpdate(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	phone := f.open(t)
	laptop := f.open(t)
	ctx := context.Background()

	require.NoError(t, laptop.SetQuantity(ctx, "apple", 5))
	_, err := laptop.SaveChanges(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lines := phone.View().Cart.Lines
		return len(lines) == 1 && lines[0].Quantity == 5
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, phone.PendingConflict())
}

func TestSession_RemoteUpdateConflictsWithLocalEdits(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	phone := f.open(t)
	laptop := f.open(t)
	ctx := context.Background()

	require.NoError(t, phone.AddOrUpdateLine(ctx, bread))
	require.NoError(t, laptop.SetQuantity(ctx, "apple", 5))
	_, err := laptop.SaveChanges(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return phone.PendingConflict() != nil }, time.Second, 5*time.Millisecond)
	assert.Len(t, phone.View().Cart.Lines, 2, "local edits kept")
}

func TestSession_FollowsLock(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "next", thursday, apple)
	s := f.open(t)

	f.clk.Set(wednesday)
	_, err := f.svc.LockExpired(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		w := s.View().Window
		return w != nil && w.OrderStatus == order.StatusLocked
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, basket.LockedView, s.State())
}

// racingOrders runs before ahead of the next update, simulating a write
// from another device landing in between.
type racingOrders struct {
	*memstore.Orders
	before func()
}

func (r *racingOrders) UpdateOrder(ctx context.Context, o order.PlacedOrder) error {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.Orders.UpdateOrder(ctx, o)
}

type recordingMetrics struct {
	mu        sync.Mutex
	mutations []string
	remote    []string
}

func (m *recordingMetrics) CartMutation(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.mutations = append(m.mutations, op+":"+result)
}

func (m *recordingMetrics) RemoteError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote = append(m.remote, op)
}

package order

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/clock"
)

func TestLine_Total(t *testing.T) {
	tests := []struct {
		name string
		line Line
		want int64
	}{
		{name: "whole units", line: Line{UnitPrice: 250, Quantity: 3}, want: 750},
		{name: "weighed", line: Line{UnitPrice: 899, Quantity: 0.5}, want: 450},
		{name: "rounding", line: Line{UnitPrice: 333, Quantity: 0.1}, want: 33},
		{name: "zero", line: Line{UnitPrice: 100, Quantity: 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.line.Total())
		})
	}
}

func TestLine_SameQuantity(t *testing.T) {
	a := Line{Quantity: 0.1 + 0.2}
	b := Line{Quantity: 0.3}
	assert.True(t, a.SameQuantity(b))
	assert.False(t, a.SameQuantity(Line{Quantity: 0.31}))
}

func TestPlacedOrder_CloneDoesNotAlias(t *testing.T) {
	o := PlacedOrder{ID: "o1", Lines: []Line{{ProductID: "apple", Quantity: 1}}}
	c := o.Clone()
	c.Lines[0].Quantity = 5

	assert.Equal(t, 1.0, o.Lines[0].Quantity)
}

func TestPlacedOrder_Total(t *testing.T) {
	o := PlacedOrder{Lines: []Line{
		{UnitPrice: 100, Quantity: 2},
		{UnitPrice: 450, Quantity: 1.5},
	}}
	assert.Equal(t, int64(875), o.Total())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPlaced.Editable())
	for _, s := range []Status{StatusDraft, StatusLocked, StatusCompleted, StatusCancelled} {
		assert.False(t, s.Editable(), s)
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("shipped").IsValid())
}

func TestMarkStatus(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	o := PlacedOrder{Status: StatusPlaced}
	o.MarkStatus(StatusLocked, now)

	assert.Equal(t, StatusLocked, o.Status)
	assert.Equal(t, now, o.UpdatedAt)
}

func TestStatus_CanBecome(t *testing.T) {
	assert.True(t, StatusDraft.CanBecome(StatusPlaced))
	assert.True(t, StatusPlaced.CanBecome(StatusLocked))
	assert.True(t, StatusPlaced.CanBecome(StatusCancelled))
	assert.True(t, StatusLocked.CanBecome(StatusCompleted))

	assert.False(t, StatusLocked.CanBecome(StatusLocked))
	assert.False(t, StatusCompleted.CanBecome(StatusLocked))
	assert.False(t, StatusCancelled.CanBecome(StatusLocked))
	assert.False(t, StatusLocked.CanBecome(StatusPlaced))
}

func TestOptions_ApplyStatus(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	opts := Options{Clock: clock.NewFake(now)}.WithDefaults()

	next, err := opts.ApplyStatus(PlacedOrder{ID: "o1", Status: StatusPlaced, Version: 2}, StatusLocked)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, next.Status)
	assert.Equal(t, 3, next.Version)
	assert.Equal(t, now, next.UpdatedAt)

	_, err = opts.ApplyStatus(PlacedOrder{ID: "o1", Status: StatusCancelled, Version: 4}, StatusLocked)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestCheckEditable(t *testing.T) {
	errGuard := errors.New("guard")

	assert.NoError(t, CheckEditable(PlacedOrder{Status: StatusPlaced}, nil))
	assert.ErrorIs(t, CheckEditable(PlacedOrder{Status: StatusLocked}, nil), ErrNotEditable)
	assert.ErrorIs(t, CheckEditable(PlacedOrder{Status: StatusPlaced}, func(PlacedOrder) error { return errGuard }), errGuard)

	called := false
	_ = CheckEditable(PlacedOrder{Status: StatusCancelled}, func(PlacedOrder) error { called = true; return nil })
	assert.False(t, called, "guard must not run for non-editable status")
}

func TestOptions_ApplyUpdate(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	opts := Options{Clock: clock.NewFake(now)}.WithDefaults()

	current := PlacedOrder{ID: "o1", Status: StatusPlaced, Version: 3, Lines: []Line{{ProductID: "apple", Quantity: 1}}}

	t.Run("stale", func(t *testing.T) {
		_, err := opts.ApplyUpdate(current, PlacedOrder{ID: "o1", Version: 2})
		assert.ErrorIs(t, err, ErrStale)
	})

	t.Run("not editable wins over stale", func(t *testing.T) {
		locked := current
		locked.Status = StatusLocked
		_, err := opts.ApplyUpdate(locked, PlacedOrder{ID: "o1", Version: 2})
		assert.ErrorIs(t, err, ErrNotEditable)
	})

	t.Run("bumps version and sets tombstone", func(t *testing.T) {
		next, err := opts.ApplyUpdate(current, PlacedOrder{ID: "o1", Version: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, next.Version)
		assert.True(t, next.Cleared)
		assert.Empty(t, next.Lines)
		assert.Equal(t, now, next.UpdatedAt)
	})

	t.Run("lines replace", func(t *testing.T) {
		next, err := opts.ApplyUpdate(current, PlacedOrder{ID: "o1", Version: 3, Lines: []Line{{ProductID: "pear", Quantity: 2}}})
		require.NoError(t, err)
		assert.False(t, next.Cleared)
		assert.Equal(t, "pear", next.Lines[0].ProductID)
		assert.Equal(t, "apple", current.Lines[0].ProductID)
	})
}

func TestOptions_PrepareNew(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	opts := Options{Tenant: "farm", Clock: clock.NewFake(now)}.WithDefaults()

	p := opts.PrepareNew(PlacedOrder{ID: "o1", Version: 9, Cleared: true})
	assert.Equal(t, "farm", p.Tenant)
	assert.Equal(t, StatusPlaced, p.Status)
	assert.Equal(t, 1, p.Version)
	assert.False(t, p.Cleared)
	assert.Equal(t, now, p.CreatedAt)

	assert.Equal(t, "20240118", opts.DateKey(time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC)))
}

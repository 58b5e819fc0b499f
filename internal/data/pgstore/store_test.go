package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/order"
)

const dsnEnv = "PICKUP_TEST_POSTGRES_DSN"

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "", order.Options{})
	require.Error(t, err)
}

func TestOpen_PropagatesOpenError(t *testing.T) {
	errBoom := errors.New("boom")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errBoom })
	defer restore()

	_, err := Open(context.Background(), "postgres://ignored", order.Options{})
	require.ErrorIs(t, err, errBoom)
}

func openTestStore(t *testing.T, guard order.Guard) (*Store, *clock.Fake) {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	clk := clock.NewFake(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	// a fresh tenant per test keeps runs independent on a shared database
	s, err := Open(context.Background(), dsn, order.Options{
		Tenant: "test-" + uuid.NewString(),
		Guard:  guard,
		Clock:  clk,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func sampleOrder() order.PlacedOrder {
	return order.PlacedOrder{
		ID:       uuid.NewString(),
		BuyerID:  "buyer-1",
		PickupAt: time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
		Lines:    []order.Line{{ProductID: "apple", UnitPrice: 300, Quantity: 2}},
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s, _ := openTestStore(t, nil)
	ctx := context.Background()

	placed, err := s.PlaceOrder(ctx, sampleOrder())
	require.NoError(t, err)

	got, err := s.FetchOrders(ctx, []string{placed.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, int64(600), got[0].Total())

	placed.Lines = nil
	require.NoError(t, s.UpdateOrder(ctx, placed))
	assert.ErrorIs(t, s.UpdateOrder(ctx, placed), order.ErrStale)

	got, err = s.FetchOrders(ctx, []string{placed.ID})
	require.NoError(t, err)
	assert.True(t, got[0].Cleared)

	require.NoError(t, s.SetStatus(ctx, placed.ID, order.StatusLocked))
	locked, err := s.ListByStatus(ctx, order.StatusLocked)
	require.NoError(t, err)
	require.Len(t, locked, 1)

	assert.ErrorIs(t, s.CancelOrder(ctx, placed.ID), order.ErrNotEditable)
	assert.ErrorIs(t, s.CancelOrder(ctx, "missing"), order.ErrNotFound)
}

func TestStore_GuardRunsInsideWrite(t *testing.T) {
	errLate := errors.New("too late")
	s, _ := openTestStore(t, func(order.PlacedOrder) error { return errLate })
	ctx := context.Background()

	placed, err := s.PlaceOrder(ctx, sampleOrder())
	require.NoError(t, err)
	assert.ErrorIs(t, s.UpdateOrder(ctx, placed), errLate)
	assert.ErrorIs(t, s.CancelOrder(ctx, placed.ID), errLate)
}

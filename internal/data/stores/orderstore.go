package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/data/db"
)

// OrderStore implements order.Store using SQLite.
type OrderStore struct {
	db   *db.DB
	opts order.Options
}

var _ order.Store = (*OrderStore)(nil)

// NewOrderStore creates a new SQLite-backed order store.
func NewOrderStore(db *db.DB, opts order.Options) *OrderStore {
	return &OrderStore{db: db, opts: opts.WithDefaults()}
}

const orderColumns = `id, tenant, buyer_id, pickup_at, status, lines, version, cleared, created_at, updated_at`

// FetchOrders returns the orders with the given ids ordered by pickup date.
func (s *OrderStore) FetchOrders(ctx context.Context, ids []string) ([]order.PlacedOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, s.opts.Tenant)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE tenant = ? AND id IN (` + placeholders(len(ids)) + `)
		ORDER BY pickup_at, id`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return collectOrders(rows)
}

// PlaceOrder persists a new order.
func (s *OrderStore) PlaceOrder(ctx context.Context, o order.PlacedOrder) (order.PlacedOrder, error) {
	o = s.opts.PrepareNew(o)

	lines, err := json.Marshal(nonNil(o.Lines))
	if err != nil {
		return order.PlacedOrder{}, fmt.Errorf("failed to marshal lines: %w", err)
	}

	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO orders (id, tenant, date_key, buyer_id, pickup_at, status, lines, version, cleared, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Tenant, s.opts.DateKey(o.PickupAt), o.BuyerID, o.PickupAt.UnixNano(), string(o.Status),
		string(lines), o.Version, boolInt(o.Cleared), o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return order.PlacedOrder{}, fmt.Errorf("failed to place order: %w", err)
	}

	return o, nil
}

// UpdateOrder replaces the lines of an editable order. The status check,
// the guard and the version check all run inside the write transaction.
func (s *OrderStore) UpdateOrder(ctx context.Context, o order.PlacedOrder) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, o.ID)
		if err != nil {
			return err
		}

		next, err := s.opts.ApplyUpdate(current, o)
		if err != nil {
			return fmt.Errorf("update order %s: %w", o.ID, err)
		}

		lines, err := json.Marshal(nonNil(next.Lines))
		if err != nil {
			return fmt.Errorf("failed to marshal lines: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET lines = ?, cleared = ?, version = ?, updated_at = ?
			WHERE tenant = ? AND id = ? AND version = ?`,
			string(lines), boolInt(next.Cleared), next.Version, next.UpdatedAt.UnixNano(),
			s.opts.Tenant, o.ID, current.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
}

// CancelOrder marks an editable order cancelled.
func (s *OrderStore) CancelOrder(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := order.CheckEditable(current, s.opts.Guard); err != nil {
			return fmt.Errorf("cancel order %s: %w", id, err)
		}
		next, err := s.opts.ApplyStatus(current, order.StatusCancelled)
		if err != nil {
			return err
		}
		return s.writeStatus(ctx, tx, current.Version, next)
	})
}

// ListByStatus returns all orders of the tenant in the given status.
func (s *OrderStore) ListByStatus(ctx context.Context, status order.Status) ([]order.PlacedOrder, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant = ? AND status = ? ORDER BY pickup_at, id`,
		s.opts.Tenant, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// SetStatus transitions an order without touching its lines. Transitions
// the current status does not allow fail with order.ErrNotEditable.
func (s *OrderStore) SetStatus(ctx context.Context, id string, status order.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := s.opts.ApplyStatus(current, status)
		if err != nil {
			return err
		}
		return s.writeStatus(ctx, tx, current.Version, next)
	})
}

func (s *OrderStore) writeStatus(ctx context.Context, tx *sql.Tx, version int, next order.PlacedOrder) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, version = ?, updated_at = ? WHERE tenant = ? AND id = ? AND version = ?`,
		string(next.Status), next.Version, next.UpdatedAt.UnixNano(), s.opts.Tenant, next.ID, version,
	)
	if err != nil {
		return fmt.Errorf("failed to set order status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return order.ErrStale
	}
	return nil
}

func (s *OrderStore) get(ctx context.Context, tx *sql.Tx, id string) (order.PlacedOrder, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant = ? AND id = ?`, s.opts.Tenant, id)
	o, err := scanOrder(row)
	if IsNotFoundError(err) {
		return order.PlacedOrder{}, fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}
	if err != nil {
		return order.PlacedOrder{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (order.PlacedOrder, error) {
	var (
		o                    order.PlacedOrder
		status, lines        string
		pickup, created, upd int64
		cleared              int
	)
	if err := row.Scan(&o.ID, &o.Tenant, &o.BuyerID, &pickup, &status, &lines, &o.Version, &cleared, &created, &upd); err != nil {
		return order.PlacedOrder{}, err
	}
	if err := json.Unmarshal([]byte(lines), &o.Lines); err != nil {
		return order.PlacedOrder{}, fmt.Errorf("failed to unmarshal lines of %s: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.Cleared = cleared != 0
	o.PickupAt = time.Unix(0, pickup)
	o.CreatedAt = time.Unix(0, created)
	o.UpdatedAt = time.Unix(0, upd)
	return o, nil
}

func collectOrders(rows *sql.Rows) ([]order.PlacedOrder, error) {
	defer func() { _ = rows.Close() }()

	var out []order.PlacedOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(lines []order.Line) []order.Line {
	if lines == nil {
		return []order.Line{}
	}
	return lines
}

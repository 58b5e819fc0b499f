// Package pgstore provides a Postgres-backed order store for deployments
// where several terminals share one order database.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/hay-kot/pickup/internal/core/order"
)

var _ order.Store = (*Store)(nil)

const driverName = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS pickup_orders (
	id         TEXT PRIMARY KEY,
	tenant     TEXT NOT NULL,
	date_key   TEXT NOT NULL,
	buyer_id   TEXT NOT NULL,
	pickup_at  TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL,
	lines      JSONB NOT NULL DEFAULT '[]'::jsonb,
	version    INTEGER NOT NULL DEFAULT 1,
	cleared    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pickup_orders_tenant_status ON pickup_orders (tenant, status)`

const columns = `id, tenant, buyer_id, pickup_at, status, lines, version, cleared, created_at, updated_at`

// Store implements order.Store on Postgres. Writes lock the row with
// SELECT ... FOR UPDATE so the guard sees the committed state.
type Store struct {
	db   *sql.DB
	opts order.Options
}

// Open connects to dsn and ensures the orders table exists.
func Open(ctx context.Context, dsn string, opts order.Options) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db, opts: opts.WithDefaults()}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// FetchOrders returns the orders with the given ids ordered by pickup date.
func (s *Store) FetchOrders(ctx context.Context, ids []string) ([]order.PlacedOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM pickup_orders WHERE tenant = $1 AND id = ANY($2) ORDER BY pickup_at, id`,
		s.opts.Tenant, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return collect(rows)
}

// PlaceOrder inserts a new order.
func (s *Store) PlaceOrder(ctx context.Context, o order.PlacedOrder) (order.PlacedOrder, error) {
	o = s.opts.PrepareNew(o)
	lines, err := marshalLines(o.Lines)
	if err != nil {
		return order.PlacedOrder{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pickup_orders (id, tenant, date_key, buyer_id, pickup_at, status, lines, version, cleared, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.Tenant, s.opts.DateKey(o.PickupAt), o.BuyerID, o.PickupAt, string(o.Status),
		lines, o.Version, o.Cleared, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return order.PlacedOrder{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

// UpdateOrder replaces the lines of an editable order.
func (s *Store) UpdateOrder(ctx context.Context, o order.PlacedOrder) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.lock(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		next, err := s.opts.ApplyUpdate(current, o)
		if err != nil {
			return fmt.Errorf("update order %s: %w", o.ID, err)
		}
		lines, err := marshalLines(next.Lines)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE pickup_orders SET lines = $1, cleared = $2, version = $3, updated_at = $4 WHERE tenant = $5 AND id = $6`,
			lines, next.Cleared, next.Version, next.UpdatedAt, s.opts.Tenant, o.ID,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
}

// CancelOrder marks an editable order cancelled.
func (s *Store) CancelOrder(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.lock(ctx, tx, id)
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

// ListByStatus returns all orders of the tenant in status.
func (s *Store) ListByStatus(ctx context.Context, status order.Status) ([]order.PlacedOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM pickup_orders WHERE tenant = $1 AND status = $2 ORDER BY pickup_at, id`,
		s.opts.Tenant, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return collect(rows)
}

// SetStatus transitions an order without touching its lines. Transitions
// the current status does not allow fail with order.ErrNotEditable.
func (s *Store) SetStatus(ctx context.Context, id string, status order.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.lock(ctx, tx, id)
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

func (s *Store) writeStatus(ctx context.Context, tx *sql.Tx, version int, next order.PlacedOrder) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE pickup_orders SET status = $1, version = $2, updated_at = $3 WHERE tenant = $4 AND id = $5 AND version = $6`,
		string(next.Status), next.Version, next.UpdatedAt, s.opts.Tenant, next.ID, version,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return order.ErrStale
	}
	return nil
}

func (s *Store) lock(ctx context.Context, tx *sql.Tx, id string) (order.PlacedOrder, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+columns+` FROM pickup_orders WHERE tenant = $1 AND id = $2 FOR UPDATE`, s.opts.Tenant, id)
	o, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return order.PlacedOrder{}, fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}
	if err != nil {
		return order.PlacedOrder{}, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (order.PlacedOrder, error) {
	var (
		o      order.PlacedOrder
		status string
		lines  []byte
	)
	if err := row.Scan(&o.ID, &o.Tenant, &o.BuyerID, &o.PickupAt, &status, &lines, &o.Version, &o.Cleared, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.PlacedOrder{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.PlacedOrder{}, fmt.Errorf("decode lines of %s: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	return o, nil
}

func collect(rows *sql.Rows) ([]order.PlacedOrder, error) {
	defer func() { _ = rows.Close() }()
	var out []order.PlacedOrder
	for rows.Next() {
		o, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func marshalLines(lines []order.Line) (string, error) {
	if lines == nil {
		lines = []order.Line{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode lines: %w", err)
	}
	return string(b), nil
}

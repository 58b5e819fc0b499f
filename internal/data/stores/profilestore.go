package stores

import (
	"context"
	"fmt"

	"github.com/hay-kot/pickup/internal/core/profile"
	"github.com/hay-kot/pickup/internal/data/db"
)

// ProfileStore implements profile.Store using SQLite.
type ProfileStore struct {
	db *db.DB
}

var _ profile.Store = (*ProfileStore)(nil)

// NewProfileStore creates a new SQLite-backed profile store.
func NewProfileStore(db *db.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// PickupOrders returns the date key to order id mapping of buyerID.
func (s *ProfileStore) PickupOrders(ctx context.Context, buyerID string) (map[string]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT date_key, order_id FROM pickup_orders WHERE buyer_id = ?`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pickup orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan pickup order: %w", err)
		}
		out[key] = id
	}
	return out, rows.Err()
}

// SetPickupOrder maps dateKey to orderID, replacing any previous order.
func (s *ProfileStore) SetPickupOrder(ctx context.Context, buyerID, dateKey, orderID string) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO pickup_orders (buyer_id, date_key, order_id) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id, date_key) DO UPDATE SET order_id = excluded.order_id`,
		buyerID, dateKey, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to set pickup order: %w", err)
	}
	return nil
}

// RemovePickupOrder removes the mapping for dateKey.
func (s *ProfileStore) RemovePickupOrder(ctx context.Context, buyerID, dateKey string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM pickup_orders WHERE buyer_id = ? AND date_key = ?`, buyerID, dateKey)
	if err != nil {
		return fmt.Errorf("failed to remove pickup order: %w", err)
	}
	return nil
}

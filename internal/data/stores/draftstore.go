package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/data/db"
)

// DraftStore implements basket.DraftStore using SQLite. The cart is stored
// as a JSON document keyed by buyer.
type DraftStore struct {
	db *db.DB
}

var _ basket.DraftStore = (*DraftStore)(nil)

// NewDraftStore creates a new SQLite-backed draft store.
func NewDraftStore(db *db.DB) *DraftStore {
	return &DraftStore{db: db}
}

// LoadDraft returns the persisted cart of buyerID.
func (s *DraftStore) LoadDraft(ctx context.Context, buyerID string) (basket.Cart, bool, error) {
	var payload string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT payload FROM drafts WHERE buyer_id = ?`, buyerID).Scan(&payload)
	if IsNotFoundError(err) {
		return basket.Cart{}, false, nil
	}
	if err != nil {
		return basket.Cart{}, false, fmt.Errorf("failed to load draft: %w", err)
	}

	var cart basket.Cart
	if err := json.Unmarshal([]byte(payload), &cart); err != nil {
		return basket.Cart{}, false, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return cart, true, nil
}

// SaveDraft replaces the persisted cart of buyerID.
func (s *DraftStore) SaveDraft(ctx context.Context, buyerID string, cart basket.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO drafts (buyer_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		buyerID, string(payload), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// ClearDraft removes the persisted cart of buyerID. Clearing a missing
// draft is not an error.
func (s *DraftStore) ClearDraft(ctx context.Context, buyerID string) error {
	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM drafts WHERE buyer_id = ?`, buyerID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

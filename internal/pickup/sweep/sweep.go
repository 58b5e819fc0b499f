// Package sweep locks placed orders once their edit deadline has passed.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/pickup/internal/core/order"
)

// Locker moves expired orders to locked.
type Locker interface {
	LockExpired(ctx context.Context) ([]order.PlacedOrder, error)
}

// Once runs a single pass and returns the number of orders locked.
func Once(ctx context.Context, l Locker) (int, error) {
	locked, err := l.LockExpired(ctx)
	if len(locked) > 0 {
		log.Info().Int("count", len(locked)).Msg("locked expired orders")
	}
	return len(locked), err
}

// Start runs a pass immediately and then on every tick. It blocks until the
// context is cancelled.
func Start(ctx context.Context, l Locker, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := Once(ctx, l); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("lock sweep failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

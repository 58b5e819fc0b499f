package pickup

import (
	"fmt"
	"time"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/deadline"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/schedule"
)

// DeadlineGuard returns the order.Guard stores run inside their writes. It
// rejects changes once the order's edit window has closed, using the
// persisted pickup instant rather than any cached copy.
func DeadlineGuard(calc *schedule.Calculator, clk clock.Clock) order.Guard {
	return func(current order.PlacedOrder) error {
		return checkWindow(calc, clk.Now(), current)
	}
}

func checkWindow(calc *schedule.Calculator, now time.Time, o order.PlacedOrder) error {
	dl, err := calc.EditDeadline(o.PickupAt)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if status := deadline.Status(now, dl, o.PickupAt); status != deadline.Open {
		return fmt.Errorf("%w: order %s closed at %s (%s)",
			basket.ErrDeadlinePassed, o.ID, dl.Format(time.RFC3339), status)
	}
	return nil
}

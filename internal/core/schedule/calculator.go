package schedule

import (
	"fmt"
	"iter"
	"slices"
	"time"
)

// DateKeyLayout is the yyyyMMdd layout used to key orders by pickup date.
const DateKeyLayout = "20060102"

// Calculator binds a cycle to a single zone so that one computation never
// mixes local-date interpretations.
type Calculator struct {
	cycle Cycle
	zone  *time.Location
}

// NewCalculator validates the cycle and returns a calculator for zone.
// A nil zone means UTC.
func NewCalculator(c Cycle, zone *time.Location) (*Calculator, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cycle: %w", err)
	}
	if zone == nil {
		zone = time.UTC
	}
	return &Calculator{cycle: c, zone: zone}, nil
}

// Cycle returns the configured cycle.
func (c *Calculator) Cycle() Cycle { return c.cycle }

// Zone returns the zone every computation is performed in.
func (c *Calculator) Zone() *time.Location { return c.zone }

// NextPickup is NextPickup bound to the calculator's cycle and zone.
func (c *Calculator) NextPickup(now time.Time) time.Time {
	return NextPickup(now, c.cycle, c.zone)
}

// EditDeadline is EditDeadline bound to the calculator's cycle and zone.
func (c *Calculator) EditDeadline(pickup time.Time) (time.Time, error) {
	return EditDeadline(pickup, c.cycle, c.zone)
}

// PickupCycle returns the pickup and deadline pair for pickup.
func (c *Calculator) PickupCycle(pickup time.Time) (PickupCycle, error) {
	deadline, err := c.EditDeadline(pickup)
	if err != nil {
		return PickupCycle{}, err
	}
	return PickupCycle{Pickup: pickup.In(c.zone), Deadline: deadline}, nil
}

// Available is AvailablePickupDates bound to the calculator's cycle and zone.
func (c *Calculator) Available(count int, now time.Time) iter.Seq[time.Time] {
	return AvailablePickupDates(count, now, c.cycle, c.zone)
}

// AvailableList collects Available into a slice.
func (c *Calculator) AvailableList(count int, now time.Time) []time.Time {
	return slices.Collect(c.Available(count, now))
}

// NextOrderable returns the first pickup that can still be ordered for.
// Unlike NextPickup it skips a pickup whose deadline has already passed.
func (c *Calculator) NextOrderable(now time.Time) PickupCycle {
	for pickup := range c.Available(1, now) {
		return PickupCycle{Pickup: pickup, Deadline: deadlineFor(pickup, c.cycle, c.zone)}
	}
	// Available(1) always yields: deadlines advance by a week per step.
	pickup := c.NextPickup(now)
	return PickupCycle{Pickup: pickup, Deadline: deadlineFor(pickup, c.cycle, c.zone)}
}

// DateKey formats t as a yyyyMMdd key in the calculator's zone.
func (c *Calculator) DateKey(t time.Time) string {
	return DateKey(t, c.zone)
}

// ParseDateKey parses a yyyyMMdd key to local midnight in the calculator's zone.
func (c *Calculator) ParseDateKey(key string) (time.Time, error) {
	return ParseDateKey(key, c.zone)
}

// DateKey formats t as a yyyyMMdd key in zone.
func DateKey(t time.Time, zone *time.Location) string {
	return t.In(zone).Format(DateKeyLayout)
}

// ParseDateKey parses a yyyyMMdd key to local midnight in zone.
func ParseDateKey(key string, zone *time.Location) (time.Time, error) {
	if len(key) != len(DateKeyLayout) {
		return time.Time{}, fmt.Errorf("date key %q: want 8 digits", key)
	}
	t, err := time.ParseInLocation(DateKeyLayout, key, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("date key %q: %w", key, err)
	}
	return t, nil
}

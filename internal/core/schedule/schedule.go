// Package schedule derives pickup dates and edit deadlines for a single
// recurring weekly cycle.
package schedule

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// ErrInvalidPickupDate is returned when a date calculation is handed an
// instant that does not fall on the configured pickup weekday.
var ErrInvalidPickupDate = errors.New("invalid pickup date")

// Error carries the instant that violated the calculation contract.
type Error struct {
	Pickup time.Time
	Want   time.Weekday
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s is a %s, want %s",
		ErrInvalidPickupDate, e.Pickup.Format(time.RFC3339), e.Pickup.Weekday(), e.Want)
}

func (e *Error) Unwrap() error { return ErrInvalidPickupDate }

// Cycle is the weekly cycle configuration: one pickup weekday and one edit
// cutoff weekday and time of day.
type Cycle struct {
	PickupWeekday   time.Weekday
	DeadlineWeekday time.Weekday
	DeadlineHour    int
	DeadlineMinute  int
}

// Validate checks that the cycle describes a real weekday and time of day.
func (c Cycle) Validate() error {
	if c.PickupWeekday < time.Sunday || c.PickupWeekday > time.Saturday {
		return fmt.Errorf("pickup weekday %d out of range", c.PickupWeekday)
	}
	if c.DeadlineWeekday < time.Sunday || c.DeadlineWeekday > time.Saturday {
		return fmt.Errorf("deadline weekday %d out of range", c.DeadlineWeekday)
	}
	if c.DeadlineHour < 0 || c.DeadlineHour > 23 {
		return fmt.Errorf("deadline hour %d out of range", c.DeadlineHour)
	}
	if c.DeadlineMinute < 0 || c.DeadlineMinute > 59 {
		return fmt.Errorf("deadline minute %d out of range", c.DeadlineMinute)
	}
	return nil
}

// deadlineOffset is the number of days between the deadline and the pickup
// it guards. A deadline on the pickup weekday belongs to the previous week,
// otherwise it would fall after the pickup's midnight.
func (c Cycle) deadlineOffset() int {
	offset := (int(c.PickupWeekday) - int(c.DeadlineWeekday) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return offset
}

// PickupCycle pairs a pickup instant with its edit deadline.
type PickupCycle struct {
	Pickup   time.Time `json:"pickup"`
	Deadline time.Time `json:"deadline"`
}

// NextPickup returns local midnight of the next pickup weekday strictly after
// now's local date. Landing on the pickup weekday rolls forward a full week.
// The result may already be past its edit deadline; callers after the first
// pickup that can still be ordered use Calculator.NextOrderable.
func NextPickup(now time.Time, c Cycle, zone *time.Location) time.Time {
	local := now.In(zone)
	days := (int(c.PickupWeekday) - int(local.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := local.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, zone)
}

// EditDeadline returns the last instant at which the order for pickup may be
// created or changed: HH:MM:59.999 on the deadline weekday preceding pickup.
func EditDeadline(pickup time.Time, c Cycle, zone *time.Location) (time.Time, error) {
	local := pickup.In(zone)
	if local.Weekday() != c.PickupWeekday {
		return time.Time{}, &Error{Pickup: local, Want: c.PickupWeekday}
	}
	return deadlineFor(local, c, zone), nil
}

func deadlineFor(pickup time.Time, c Cycle, zone *time.Location) time.Time {
	y, m, d := pickup.In(zone).Date()
	return time.Date(y, m, d-c.deadlineOffset(), c.DeadlineHour, c.DeadlineMinute, 59, int(999*time.Millisecond), zone)
}

// AvailablePickupDates yields up to count pickup dates whose deadlines have
// not passed relative to now, in increasing order. The sequence can be
// ranged over any number of times.
func AvailablePickupDates(count int, now time.Time, c Cycle, zone *time.Location) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		cursor := now
		for found := 0; found < count; {
			pickup := NextPickup(cursor, c, zone)
			if !now.After(deadlineFor(pickup, c, zone)) {
				found++
				if !yield(pickup) {
					return
				}
			}
			y, m, d := pickup.In(zone).Date()
			cursor = time.Date(y, m, d+1, 0, 0, 0, 0, zone)
		}
	}
}

// ParseWeekday accepts English weekday names or their three letter prefixes.
func ParseWeekday(s string) (time.Weekday, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	if len(needle) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if strings.HasPrefix(name, needle) {
				return d, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ParseClock parses a "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

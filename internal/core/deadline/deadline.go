// Package deadline classifies "now" against an order's edit deadline and
// pickup instant.
package deadline

import (
	"fmt"
	"time"
)

// WindowStatus describes whether an order can still be changed.
type WindowStatus int

const (
	Open WindowStatus = iota
	DeadlinePassed
	PickupPassed
)

var windowNames = [...]string{
	Open:           "open",
	DeadlinePassed: "deadline-passed",
	PickupPassed:   "pickup-passed",
}

func (s WindowStatus) String() string {
	if s < 0 || int(s) >= len(windowNames) {
		return fmt.Sprintf("WindowStatus(%d)", int(s))
	}
	return windowNames[s]
}

// MarshalText renders the status by name for JSON output.
func (s WindowStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Urgency is a coarse countdown bucket for the time left before the deadline.
type Urgency int

const (
	None Urgency = iota
	Info
	Warning
	Urgent
	Critical
	Expired
)

var urgencyNames = [...]string{
	None:     "none",
	Info:     "info",
	Warning:  "warning",
	Urgent:   "urgent",
	Critical: "critical",
	Expired:  "expired",
}

func (u Urgency) String() string {
	if u < 0 || int(u) >= len(urgencyNames) {
		return fmt.Sprintf("Urgency(%d)", int(u))
	}
	return urgencyNames[u]
}

// MarshalText renders the level by name for JSON output.
func (u Urgency) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// Status reports the window status of an order at now.
func Status(now, deadline, pickup time.Time) WindowStatus {
	switch {
	case !now.After(deadline):
		return Open
	case now.After(pickup):
		return PickupPassed
	default:
		return DeadlinePassed
	}
}

// Level buckets the time remaining until deadline.
func Level(now, deadline time.Time) Urgency {
	if now.After(deadline) {
		return Expired
	}
	remaining := deadline.Sub(now)
	switch {
	case remaining > 48*time.Hour:
		return None
	case remaining > 24*time.Hour:
		return Info
	case remaining > 6*time.Hour:
		return Warning
	case remaining > time.Hour:
		return Urgent
	default:
		return Critical
	}
}

// Remaining returns the time left until deadline, never negative.
func Remaining(now, deadline time.Time) time.Duration {
	if now.After(deadline) {
		return 0
	}
	return deadline.Sub(now)
}

package pickup

import (
	"errors"
	"fmt"

	"github.com/hay-kot/pickup/internal/core/merge"
)

var (
	// ErrIO matches every *IOError.
	ErrIO = errors.New("order store unavailable")

	// ErrPickupUnavailable is returned when checkout targets a date that is
	// not open for ordering.
	ErrPickupUnavailable = errors.New("pickup date not available")

	// ErrUnsavedDraft is returned when loading an order would discard a
	// draft that still has lines.
	ErrUnsavedDraft = errors.New("draft has unsaved lines")

	// ErrNoConflict is returned by ResolveConflict when nothing is pending.
	ErrNoConflict = errors.New("no pending conflict")

	// ErrWrongState is returned for actions the current cart state does not
	// offer, such as checking out an order edit.
	ErrWrongState = errors.New("action not available for this cart")
)

// IOError wraps a failed or timed out store call.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ConflictError reports that the persisted cart and the remote order
// diverged. The conflict stays pending on the session until resolved.
type ConflictError struct {
	Conflict *merge.Conflict
}

func (e *ConflictError) Error() string {
	return "cart conflicts with " + e.Conflict.String()
}

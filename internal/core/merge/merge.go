// Package merge detects divergence between a locally persisted cart and the
// authoritative remote order of the same lineage, and resolves it under an
// explicit policy.
package merge

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/order"
)

var (
	// ErrIncompleteResolution is returned when a manual resolution leaves a
	// conflicting product undecided.
	ErrIncompleteResolution = errors.New("incomplete conflict resolution")

	// ErrInvalidChoice is returned when a manual choice keeps a line for a
	// different product than the one it resolves.
	ErrInvalidChoice = errors.New("invalid conflict choice")
)

// DiffKind classifies how one product differs between the two sides.
type DiffKind string

const (
	LocalOnly        DiffKind = "local-only"
	RemoteOnly       DiffKind = "remote-only"
	QuantityMismatch DiffKind = "quantity-mismatch"
)

// Diff is the difference for one product. Local or Remote is nil when the
// product is missing on that side.
type Diff struct {
	ProductID string       `json:"product_id"`
	Kind      DiffKind     `json:"kind"`
	Local     *basket.Line `json:"local,omitempty"`
	Remote    *basket.Line `json:"remote,omitempty"`
}

func (d Diff) String() string {
	switch d.Kind {
	case QuantityMismatch:
		return fmt.Sprintf("%s: %g vs %g", d.ProductID, d.Local.Quantity, d.Remote.Quantity)
	default:
		return fmt.Sprintf("%s: %s", d.ProductID, d.Kind)
	}
}

// Conflict is a detected divergence between a local cart and a remote order.
type Conflict struct {
	Local  basket.Cart       `json:"local"`
	Remote order.PlacedOrder `json:"remote"`
	// Diffs are ordered by product id.
	Diffs []Diff `json:"diffs"`
}

// ProductIDs returns the conflicting product ids in diff order.
func (c *Conflict) ProductIDs() []string {
	ids := make([]string, len(c.Diffs))
	for i, d := range c.Diffs {
		ids[i] = d.ProductID
	}
	return ids
}

func (c *Conflict) String() string {
	parts := make([]string, len(c.Diffs))
	for i, d := range c.Diffs {
		parts[i] = d.String()
	}
	return fmt.Sprintf("order %s: %s", c.Remote.ID, strings.Join(parts, ", "))
}

// Detect compares local against remote. It returns nil when the cart does
// not edit remote or when both sides order the same products in the same
// quantities.
func Detect(local basket.Cart, remote order.PlacedOrder) *Conflict {
	if local.SourceOrderID == "" || local.SourceOrderID != remote.ID {
		return nil
	}

	remoteByID := make(map[string]order.Line, len(remote.Lines))
	for _, l := range remote.Lines {
		remoteByID[l.ProductID] = l
	}

	var diffs []Diff
	seen := make(map[string]struct{}, len(local.Lines))
	for _, l := range local.Lines {
		seen[l.ProductID] = struct{}{}
		r, ok := remoteByID[l.ProductID]
		switch {
		case !ok:
			diffs = append(diffs, Diff{ProductID: l.ProductID, Kind: LocalOnly, Local: ptr(l)})
		case !l.SameQuantity(r):
			diffs = append(diffs, Diff{ProductID: l.ProductID, Kind: QuantityMismatch, Local: ptr(l), Remote: ptr(r)})
		}
	}
	for _, r := range remote.Lines {
		if _, ok := seen[r.ProductID]; !ok {
			diffs = append(diffs, Diff{ProductID: r.ProductID, Kind: RemoteOnly, Remote: ptr(r)})
		}
	}

	if len(diffs) == 0 {
		return nil
	}

	slices.SortFunc(diffs, func(a, b Diff) int { return strings.Compare(a.ProductID, b.ProductID) })
	return &Conflict{Local: local.Clone(), Remote: remote.Clone(), Diffs: diffs}
}

// Policy decides each conflicting product. Implementations are PreferLocal,
// PreferRemote and Manual.
type Policy interface {
	decide(d Diff, remoteCleared bool) (line basket.Line, keep bool, err error)
}

// PreferLocal takes the local quantity for mismatches and keeps one-sided
// lines from both sides.
type PreferLocal struct{}

func (PreferLocal) decide(d Diff, _ bool) (basket.Line, bool, error) {
	if d.Local != nil {
		return *d.Local, true, nil
	}
	return *d.Remote, true, nil
}

// PreferRemote takes the remote quantity for mismatches and keeps one-sided
// lines from both sides. Local-only lines are dropped only when the remote
// order carries the cleared tombstone.
type PreferRemote struct{}

func (PreferRemote) decide(d Diff, remoteCleared bool) (basket.Line, bool, error) {
	if d.Remote != nil {
		return *d.Remote, true, nil
	}
	if remoteCleared {
		return basket.Line{}, false, nil
	}
	return *d.Local, true, nil
}

// Name returns the label used for p in logs and metrics.
func Name(p Policy) string {
	switch p.(type) {
	case PreferLocal, *PreferLocal:
		return "prefer-local"
	case PreferRemote, *PreferRemote:
		return "prefer-remote"
	case Manual, *Manual:
		return "manual"
	default:
		return fmt.Sprintf("%T", p)
	}
}

// ParsePolicy maps "local" and "remote" to the automatic policies.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "prefer-local":
		return PreferLocal{}, nil
	case "remote", "prefer-remote":
		return PreferRemote{}, nil
	default:
		return nil, fmt.Errorf("unknown merge policy %q: want local or remote", s)
	}
}

// Choice is the decision for one product in a manual resolution.
type Choice struct {
	line *basket.Line
}

// Keep resolves the product to line.
func Keep(line basket.Line) Choice { return Choice{line: &line} }

// Drop removes the product from the merged cart.
func Drop() Choice { return Choice{} }

// KeepLocal resolves d to its local side, or drops it if there is none.
func KeepLocal(d Diff) Choice {
	if d.Local == nil {
		return Drop()
	}
	return Keep(*d.Local)
}

// KeepRemote resolves d to its remote side, or drops it if there is none.
func KeepRemote(d Diff) Choice {
	if d.Remote == nil {
		return Drop()
	}
	return Keep(*d.Remote)
}

// Manual requires an explicit choice for every conflicting product.
type Manual struct {
	Choices map[string]Choice
}

func (m Manual) decide(d Diff, _ bool) (basket.Line, bool, error) {
	c, ok := m.Choices[d.ProductID]
	if !ok {
		return basket.Line{}, false, errMissing
	}
	if c.line == nil {
		return basket.Line{}, false, nil
	}
	if c.line.ProductID != d.ProductID {
		return basket.Line{}, false, fmt.Errorf("%w: %s resolved with line for %s", ErrInvalidChoice, d.ProductID, c.line.ProductID)
	}
	return *c.line, true, nil
}

var errMissing = errors.New("missing choice")

// Resolve merges the conflict under policy. Lines present on both sides
// with equal quantities are kept as they are. The result preserves the
// local line order and appends remote-only lines in remote order.
func Resolve(c *Conflict, policy Policy, now time.Time) (basket.Cart, error) {
	if c == nil {
		return basket.Cart{}, errors.New("resolve: no conflict")
	}
	if policy == nil {
		return basket.Cart{}, errors.New("resolve: policy is required")
	}

	decided := make(map[string]*basket.Line, len(c.Diffs))
	var missing []string
	for _, d := range c.Diffs {
		line, keep, err := policy.decide(d, c.Remote.Cleared)
		switch {
		case errors.Is(err, errMissing):
			missing = append(missing, d.ProductID)
			continue
		case err != nil:
			return basket.Cart{}, err
		}
		if keep {
			decided[d.ProductID] = &line
		} else {
			decided[d.ProductID] = nil
		}
	}
	if len(missing) > 0 {
		return basket.Cart{}, fmt.Errorf("%w: undecided %s", ErrIncompleteResolution, strings.Join(missing, ", "))
	}

	lines := make([]basket.Line, 0, len(c.Local.Lines)+len(c.Remote.Lines))
	placed := make(map[string]struct{}, len(c.Local.Lines))
	add := func(l basket.Line) {
		if d, ok := decided[l.ProductID]; ok {
			if d == nil {
				return
			}
			l = *d
		}
		placed[l.ProductID] = struct{}{}
		lines = append(lines, l)
	}

	for _, l := range c.Local.Lines {
		add(l)
	}
	for _, l := range c.Remote.Lines {
		if _, ok := placed[l.ProductID]; ok {
			continue
		}
		if _, local := c.Local.Line(l.ProductID); local {
			// local line was dropped by the policy
			continue
		}
		add(l)
	}

	return basket.Cart{
		Lines:               lines,
		SourceOrderID:       c.Remote.ID,
		SourcePickupDateKey: c.Local.SourcePickupDateKey,
		SourceVersion:       c.Remote.Version,
		LastModified:        now,
	}, nil
}

func ptr[T any](v T) *T { return &v }

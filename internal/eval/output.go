package eval

import (
	"slices"

	"github.com/jjedMoriAnktah/Eve/internal/binding"
	"github.com/jjedMoriAnktah/Eve/internal/factstore"
	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Change is a derived triple whose support differs between two rounds.
type Change struct {
	Triple ir.Triple
	Before int64
	After  int64
}

// Delta returns the change as a signed delta.
func (c Change) Delta() ir.Delta {
	return ir.Delta{Triple: c.Triple, Count: c.After - c.Before}
}

// Appeared reports whether the triple became visible.
func (c Change) Appeared() bool { return c.Before <= 0 && c.After > 0 }

// Disappeared reports whether the triple stopped being visible.
func (c Change) Disappeared() bool { return c.Before > 0 && c.After <= 0 }

// Output is the result of one committed round.
type Output struct {
	Round int64

	// Inputs are the net input deltas the round applied.
	Inputs []ir.Delta

	// Additions and Removals reconcile the derived view: applying both to
	// the previous round's supports yields this round's. Each is sorted by
	// triple; removal counts are negative.
	Additions []ir.Delta
	Removals  []ir.Delta

	// Changes lists every derived triple whose support moved.
	Changes []Change

	// Diagnostics lists rows dropped by group-local failures.
	Diagnostics []binding.Diagnostic
}

// Deltas returns removals followed by additions, so a retracted identity is
// always reported before the one replacing it.
func (o *Output) Deltas() []ir.Delta {
	return slices.Concat(o.Removals, o.Additions)
}

// Transitions reports visibility changes only: -1 for each triple that
// disappeared and +1 for each that appeared, removals first. Support moving
// between two positive values is not a transition.
func (o *Output) Transitions() []ir.Delta {
	var removed, added []ir.Delta
	for _, c := range o.Changes {
		switch {
		case c.Disappeared():
			removed = append(removed, ir.Delta{Triple: c.Triple, Count: -1})
		case c.Appeared():
			added = append(added, ir.Delta{Triple: c.Triple, Count: 1})
		}
	}
	return slices.Concat(removed, added)
}

// Empty reports whether the round changed no derived support.
func (o *Output) Empty() bool {
	return len(o.Changes) == 0
}

// diff compares two derived views triple by triple.
func diff(round int64, before, after *factstore.Index) *Output {
	out := &Output{Round: round}
	seen := make(map[string]bool)
	for t, now := range after.Supports() {
		seen[t.Key()] = true
		if prev := before.Support(t); prev != now {
			out.Changes = append(out.Changes, Change{Triple: t, Before: prev, After: now})
		}
	}
	for t, prev := range before.Supports() {
		if !seen[t.Key()] && prev != 0 {
			out.Changes = append(out.Changes, Change{Triple: t, Before: prev})
		}
	}

	slices.SortFunc(out.Changes, func(a, b Change) int {
		return ir.CompareTriples(a.Triple, b.Triple)
	})
	for _, c := range out.Changes {
		if d := c.Delta(); d.Count > 0 {
			out.Additions = append(out.Additions, d)
		} else {
			out.Removals = append(out.Removals, d)
		}
	}
	return out
}

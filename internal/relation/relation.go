// Package relation implements bags of variable bindings.
//
// A Relation is the unit of data flowing between clauses of a block. Each
// distinct binding appears once, with a Count of how many independent joins
// produced it. Projection and union are bag operations: counts add.
package relation

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Binding maps variable names to values.
type Binding map[string]ir.IRValue

// Vars returns the bound variable names, sorted.
func (b Binding) Vars() []string {
	return slices.Sorted(maps.Keys(b))
}

// With returns a copy of b with name bound to v.
func (b Binding) With(name string, v ir.IRValue) Binding {
	out := make(Binding, len(b)+1)
	maps.Copy(out, b)
	out[name] = v
	return out
}

// Project returns a copy of b restricted to vars. Variables b does not bind
// are left out.
func (b Binding) Project(vars []string) Binding {
	out := make(Binding, len(vars))
	for _, name := range vars {
		if v, ok := b[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Key encodes the projection of b onto vars. Bindings agree on every
// variable in vars iff their keys are equal. Each component is length
// prefixed so no value text can make two keys collide.
func (b Binding) Key(vars []string) string {
	var sb strings.Builder
	for _, name := range vars {
		writeComponent(&sb, name)
		if v, ok := b[name]; ok {
			writeComponent(&sb, v.Key())
		} else {
			sb.WriteString("-;")
		}
	}
	return sb.String()
}

// FullKey encodes the whole binding.
func (b Binding) FullKey() string {
	return b.Key(b.Vars())
}

func writeComponent(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}

// String renders the binding with sorted variables, e.g. {a=1 b="x"}.
func (b Binding) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range b.Vars() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(b[name].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Row is one distinct binding and its support count.
type Row struct {
	Binding Binding
	Count   int64
}

// Relation is a bag of bindings. Rows keep first-insertion order.
type Relation struct {
	rows  []Row
	index map[string]int
}

// New creates an empty relation.
func New() *Relation {
	return &Relation{index: make(map[string]int)}
}

// Unit returns the relation holding the single empty binding once. It is
// the seed every block is evaluated from.
func Unit() *Relation {
	r := New()
	r.Add(Binding{}, 1)
	return r
}

// Of builds a relation from bindings, each counted once.
func Of(bindings ...Binding) *Relation {
	r := New()
	for _, b := range bindings {
		r.Add(b, 1)
	}
	return r
}

// Add adds n to b's count, inserting b if it is new. A zero n is a no-op.
// The relation keeps its own reference to b; callers must not mutate it
// afterwards.
func (r *Relation) Add(b Binding, n int64) {
	if n == 0 {
		return
	}
	key := b.FullKey()
	if i, ok := r.index[key]; ok {
		r.rows[i].Count += n
		return
	}
	r.index[key] = len(r.rows)
	r.rows = append(r.rows, Row{Binding: b, Count: n})
}

// Len returns the number of distinct bindings.
func (r *Relation) Len() int {
	return len(r.rows)
}

// Empty reports whether the relation has no rows.
func (r *Relation) Empty() bool {
	return len(r.rows) == 0
}

// Rows returns the rows in insertion order. The slice must not be modified.
func (r *Relation) Rows() []Row {
	return r.rows
}

// Count returns b's count, 0 if absent.
func (r *Relation) Count(b Binding) int64 {
	if i, ok := r.index[b.FullKey()]; ok {
		return r.rows[i].Count
	}
	return 0
}

// Total returns the sum of all counts.
func (r *Relation) Total() int64 {
	var n int64
	for _, row := range r.rows {
		n += row.Count
	}
	return n
}

// Project returns the bag projection onto vars: bindings that agree on vars
// merge and their counts add.
func (r *Relation) Project(vars []string) *Relation {
	out := New()
	for _, row := range r.rows {
		out.Add(row.Binding.Project(vars), row.Count)
	}
	return out
}

// Union returns the bag union of r and others.
func (r *Relation) Union(others ...*Relation) *Relation {
	out := New()
	for _, rel := range append([]*Relation{r}, others...) {
		if rel == nil {
			continue
		}
		for _, row := range rel.rows {
			out.Add(row.Binding, row.Count)
		}
	}
	return out
}

// Filter returns the rows for which keep returns true.
func (r *Relation) Filter(keep func(Binding) bool) *Relation {
	out := New()
	for _, row := range r.rows {
		if keep(row.Binding) {
			out.Add(row.Binding, row.Count)
		}
	}
	return out
}

// Group is the set of rows sharing one projection onto a variable list.
type Group struct {
	Key   string
	Outer Binding
	Rows  *Relation
}

// GroupBy partitions r by projection onto vars. Groups are returned in order
// of first appearance.
func (r *Relation) GroupBy(vars []string) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, row := range r.rows {
		key := row.Binding.Key(vars)
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, Group{Key: key, Outer: row.Binding.Project(vars), Rows: New()})
		}
		groups[i].Rows.Add(row.Binding, row.Count)
	}
	return groups
}

// Sorted returns the rows ordered by their full key, for deterministic
// comparison.
func (r *Relation) Sorted() []Row {
	out := slices.Clone(r.rows)
	slices.SortFunc(out, func(a, b Row) int {
		return strings.Compare(a.Binding.FullKey(), b.Binding.FullKey())
	})
	return out
}

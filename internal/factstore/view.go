package factstore

import (
	"iter"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// View is a read-only window onto visible triples (support > 0).
//
// Every sequence is lazy and restartable: ranging over the same sequence
// twice re-reads the underlying data. Iteration order is unspecified.
type View interface {
	Triples() iter.Seq[ir.Triple]
	ByEntity(id ir.EntityID) iter.Seq[ir.Triple]
	ByAttribute(attribute string) iter.Seq[ir.Triple]
	ByAttributeValue(attribute string, v ir.IRValue) iter.Seq[ir.Triple]
	Has(t ir.Triple) bool
}

var (
	_ View = (*Index)(nil)
	_ View = (*stagedView)(nil)
	_ View = overlay(nil)
)

type selectKind int

const (
	selectAll selectKind = iota
	selectEntity
	selectAttr
	selectAttrVal
)

type selector struct {
	kind      selectKind
	entity    ir.EntityID
	attribute string
	value     ir.IRValue
}

// stagedView is committed support plus a round's pending deltas. A triple is
// visible when the sum is positive.
type stagedView struct {
	base    *Index
	pending *Index
}

func (v *stagedView) support(key string) (ir.Triple, int64, bool) {
	t, base, inBase := v.base.tripleFor(key)
	pt, pending, inPending := v.pending.tripleFor(key)
	if !inBase {
		t = pt
	}
	return t, base + pending, inBase || inPending
}

func (v *stagedView) scan(sel selector) iter.Seq[ir.Triple] {
	return func(yield func(ir.Triple) bool) {
		for key := range v.base.candidates(sel) {
			if t, n, _ := v.support(key); n > 0 && !yield(t) {
				return
			}
		}
		for key := range v.pending.candidates(sel) {
			if _, _, inBase := v.base.tripleFor(key); inBase {
				continue // already visited above
			}
			if t, n, _ := v.support(key); n > 0 && !yield(t) {
				return
			}
		}
	}
}

func (v *stagedView) Triples() iter.Seq[ir.Triple] {
	return v.scan(selector{kind: selectAll})
}

func (v *stagedView) ByEntity(id ir.EntityID) iter.Seq[ir.Triple] {
	return v.scan(selector{kind: selectEntity, entity: id})
}

func (v *stagedView) ByAttribute(attribute string) iter.Seq[ir.Triple] {
	return v.scan(selector{kind: selectAttr, attribute: attribute})
}

func (v *stagedView) ByAttributeValue(attribute string, val ir.IRValue) iter.Seq[ir.Triple] {
	return v.scan(selector{kind: selectAttrVal, attribute: attribute, value: val})
}

func (v *stagedView) Has(t ir.Triple) bool {
	return v.base.Support(t)+v.pending.Support(t) > 0
}

// Overlay combines views. A triple is visible if any view shows it, and it is
// reported once no matter how many views hold it.
func Overlay(views ...View) View {
	flat := make(overlay, 0, len(views))
	for _, v := range views {
		if v == nil {
			continue
		}
		if o, ok := v.(overlay); ok {
			flat = append(flat, o...)
			continue
		}
		flat = append(flat, v)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return flat
}

type overlay []View

func (o overlay) union(pick func(View) iter.Seq[ir.Triple]) iter.Seq[ir.Triple] {
	return func(yield func(ir.Triple) bool) {
		var seen map[string]struct{}
		if len(o) > 1 {
			seen = make(map[string]struct{})
		}
		for _, v := range o {
			for t := range pick(v) {
				if seen != nil {
					key := t.Key()
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

func (o overlay) Triples() iter.Seq[ir.Triple] {
	return o.union(func(v View) iter.Seq[ir.Triple] { return v.Triples() })
}

func (o overlay) ByEntity(id ir.EntityID) iter.Seq[ir.Triple] {
	return o.union(func(v View) iter.Seq[ir.Triple] { return v.ByEntity(id) })
}

func (o overlay) ByAttribute(attribute string) iter.Seq[ir.Triple] {
	return o.union(func(v View) iter.Seq[ir.Triple] { return v.ByAttribute(attribute) })
}

func (o overlay) ByAttributeValue(attribute string, val ir.IRValue) iter.Seq[ir.Triple] {
	return o.union(func(v View) iter.Seq[ir.Triple] { return v.ByAttributeValue(attribute, val) })
}

func (o overlay) Has(t ir.Triple) bool {
	for _, v := range o {
		if v.Has(t) {
			return true
		}
	}
	return false
}

// Collect drains a sequence into a slice. Convenience for callers and tests.
func Collect(seq iter.Seq[ir.Triple]) []ir.Triple {
	var out []ir.Triple
	for t := range seq {
		out = append(out, t)
	}
	return out
}

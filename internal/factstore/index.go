package factstore

import (
	"iter"
	"slices"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// entry is one triple's accounting record.
// support == 0 means the triple is tombstoned: no longer visible, but still
// known so the next diff can see that it existed.
type entry struct {
	triple  ir.Triple
	support int64
	round   int64 // round of the last change
}

// Index is a multiset of triples with secondary indexes by entity,
// attribute, and attribute/value. Support may be any integer; only triples
// with support > 0 are visible through the View methods.
//
// Index is not safe for concurrent mutation. Concurrent reads are safe once
// writes have stopped.
type Index struct {
	entries   map[string]*entry
	byEntity  map[ir.EntityID]map[string]struct{}
	byAttr    map[string]map[string]struct{}
	byAttrVal map[string]map[string]struct{}
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		entries:   make(map[string]*entry),
		byEntity:  make(map[ir.EntityID]map[string]struct{}),
		byAttr:    make(map[string]map[string]struct{}),
		byAttrVal: make(map[string]map[string]struct{}),
	}
}

func attrValKey(attribute string, v ir.IRValue) string {
	return attribute + "\x00" + v.Key()
}

// Add adjusts the support of t by n at the given round and returns the new
// support. A zero n is a no-op.
func (ix *Index) Add(t ir.Triple, n int64, round int64) int64 {
	key := t.Key()
	e, ok := ix.entries[key]
	if !ok {
		if n == 0 {
			return 0
		}
		e = &entry{triple: t}
		ix.entries[key] = e
		addKey(ix.byEntity, t.Entity, key)
		addKey(ix.byAttr, t.Attribute, key)
		addKey(ix.byAttrVal, attrValKey(t.Attribute, t.Value), key)
	}
	if n != 0 {
		e.support += n
		e.round = round
	}
	return e.support
}

func addKey[K comparable](m map[K]map[string]struct{}, k K, key string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[key] = struct{}{}
}

func dropKey[K comparable](m map[K]map[string]struct{}, k K, key string) {
	if set, ok := m[k]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(m, k)
		}
	}
}

// Support returns the current support of t (0 if unknown).
func (ix *Index) Support(t ir.Triple) int64 {
	if e, ok := ix.entries[t.Key()]; ok {
		return e.support
	}
	return 0
}

// Known reports whether t has an entry, visible or tombstoned.
func (ix *Index) Known(t ir.Triple) bool {
	_, ok := ix.entries[t.Key()]
	return ok
}

// LastChanged returns the round t's support last changed, or 0.
func (ix *Index) LastChanged(t ir.Triple) int64 {
	if e, ok := ix.entries[t.Key()]; ok {
		return e.round
	}
	return 0
}

// Len returns the number of visible triples.
func (ix *Index) Len() int {
	n := 0
	for _, e := range ix.entries {
		if e.support > 0 {
			n++
		}
	}
	return n
}

// Compact physically removes tombstones whose last change happened before
// the given round. Negative entries are kept: they are accounting errors the
// owner must see.
func (ix *Index) Compact(before int64) int {
	removed := 0
	for key, e := range ix.entries {
		if e.support != 0 || e.round >= before {
			continue
		}
		delete(ix.entries, key)
		dropKey(ix.byEntity, e.triple.Entity, key)
		dropKey(ix.byAttr, e.triple.Attribute, key)
		dropKey(ix.byAttrVal, attrValKey(e.triple.Attribute, e.triple.Value), key)
		removed++
	}
	return removed
}

// Supports iterates every known triple with its support, including
// tombstones and negative entries.
func (ix *Index) Supports() iter.Seq2[ir.Triple, int64] {
	return func(yield func(ir.Triple, int64) bool) {
		for _, e := range ix.entries {
			if !yield(e.triple, e.support) {
				return
			}
		}
	}
}

// Sorted returns the visible triples in CompareTriples order.
func (ix *Index) Sorted() []ir.Triple {
	out := make([]ir.Triple, 0, len(ix.entries))
	for t := range ix.Triples() {
		out = append(out, t)
	}
	slices.SortFunc(out, ir.CompareTriples)
	return out
}

// Clone returns a deep copy of the index.
func (ix *Index) Clone() *Index {
	c := NewIndex()
	for key, e := range ix.entries {
		cp := *e
		c.entries[key] = &cp
		addKey(c.byEntity, e.triple.Entity, key)
		addKey(c.byAttr, e.triple.Attribute, key)
		addKey(c.byAttrVal, attrValKey(e.triple.Attribute, e.triple.Value), key)
	}
	return c
}

// Merge adds every entry of other into ix at the given round.
func (ix *Index) Merge(other *Index, round int64) {
	for _, e := range other.entries {
		ix.Add(e.triple, e.support, round)
	}
}

// View methods.

func (ix *Index) Triples() iter.Seq[ir.Triple] {
	return func(yield func(ir.Triple) bool) {
		for _, e := range ix.entries {
			if e.support > 0 && !yield(e.triple) {
				return
			}
		}
	}
}

func (ix *Index) ByEntity(id ir.EntityID) iter.Seq[ir.Triple] {
	return ix.visible(ix.byEntity[id])
}

func (ix *Index) ByAttribute(attribute string) iter.Seq[ir.Triple] {
	return ix.visible(ix.byAttr[attribute])
}

func (ix *Index) ByAttributeValue(attribute string, v ir.IRValue) iter.Seq[ir.Triple] {
	return ix.visible(ix.byAttrVal[attrValKey(attribute, v)])
}

func (ix *Index) Has(t ir.Triple) bool {
	return ix.Support(t) > 0
}

func (ix *Index) visible(keys map[string]struct{}) iter.Seq[ir.Triple] {
	return func(yield func(ir.Triple) bool) {
		for key := range keys {
			e := ix.entries[key]
			if e.support > 0 && !yield(e.triple) {
				return
			}
		}
	}
}

// candidates iterates the keys an index holds for a lookup, regardless of
// support. Used by views that combine several indexes.
func (ix *Index) candidates(sel selector) iter.Seq[string] {
	return func(yield func(string) bool) {
		var keys map[string]struct{}
		switch sel.kind {
		case selectAll:
			for key := range ix.entries {
				if !yield(key) {
					return
				}
			}
			return
		case selectEntity:
			keys = ix.byEntity[sel.entity]
		case selectAttr:
			keys = ix.byAttr[sel.attribute]
		case selectAttrVal:
			keys = ix.byAttrVal[attrValKey(sel.attribute, sel.value)]
		}
		for key := range keys {
			if !yield(key) {
				return
			}
		}
	}
}

func (ix *Index) tripleFor(key string) (ir.Triple, int64, bool) {
	e, ok := ix.entries[key]
	if !ok {
		return ir.Triple{}, 0, false
	}
	return e.triple, e.support, true
}

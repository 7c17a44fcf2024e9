package ir

import (
	"cmp"
	"fmt"
	"strings"
)

// EntityID is an opaque entity identifier. It is either supplied by the
// caller with input facts or assigned by the identity assigner for derived
// records.
type EntityID string

// TagAttribute is the attribute find(tag) selects on.
const TagAttribute = "tag"

// Triple is one entity-attribute-value fact, without multiplicity.
type Triple struct {
	Entity    EntityID
	Attribute string
	Value     IRValue
}

// T constructs a Triple.
func T(entity EntityID, attribute string, value IRValue) Triple {
	return Triple{Entity: entity, Attribute: attribute, Value: value}
}

// Key returns a string that uniquely identifies the triple.
// Components are separated by NUL so no entity or attribute text can
// produce an ambiguous key.
func (t Triple) Key() string {
	var b strings.Builder
	b.Grow(len(t.Entity) + len(t.Attribute) + 16)
	b.WriteString(string(t.Entity))
	b.WriteByte(0)
	b.WriteString(t.Attribute)
	b.WriteByte(0)
	b.WriteString(t.Value.Key())
	return b.String()
}

func (t Triple) String() string {
	return fmt.Sprintf("(%s %s %s)", t.Entity, t.Attribute, t.Value)
}

// Validate reports why a triple cannot be stored, or nil.
func (t Triple) Validate() error {
	if t.Entity == "" {
		return fmt.Errorf("triple: empty entity")
	}
	if t.Attribute == "" {
		return fmt.Errorf("triple %s: empty attribute", t.Entity)
	}
	if !IsStorable(t.Value) {
		return fmt.Errorf("triple %s.%s: value must not be null", t.Entity, t.Attribute)
	}
	return nil
}

// CompareTriples orders triples by entity, attribute, then value.
func CompareTriples(a, b Triple) int {
	if c := cmp.Compare(a.Entity, b.Entity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Attribute, b.Attribute); c != 0 {
		return c
	}
	return Compare(a.Value, b.Value)
}

// Delta is a signed change to a triple's support.
type Delta struct {
	Triple
	Count int64
}

// Add returns a delta adding one unit of support.
func Add(entity EntityID, attribute string, value IRValue) Delta {
	return Delta{Triple: T(entity, attribute, value), Count: 1}
}

// Remove returns a delta retracting one unit of support.
func Remove(entity EntityID, attribute string, value IRValue) Delta {
	return Delta{Triple: T(entity, attribute, value), Count: -1}
}

func (d Delta) String() string {
	return fmt.Sprintf("%+d %s", d.Count, d.Triple)
}

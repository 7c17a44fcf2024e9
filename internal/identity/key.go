package identity

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// Field is one attribute of a derived record.
type Field struct {
	Attribute string
	Value     ir.IRValue
}

// Key is the identity-bearing part of a record: its tag and the declared key
// fields. Two records are the same entity iff their keys are equal.
//
// Key and Payload are separate types so that payload values cannot reach
// Assign.
type Key struct {
	tag    string
	fields []Field
}

// NewKey builds a key from a record tag and its key fields. Fields are
// ordered by attribute. A missing or null value is a KeyViolation.
func NewKey(tag string, fields ...Field) (Key, error) {
	if tag == "" {
		return Key{}, &KeyViolation{Reason: "empty tag"}
	}
	if len(fields) == 0 {
		return Key{}, &KeyViolation{Tag: tag, Reason: "no key fields"}
	}

	sorted := slices.Clone(fields)
	slices.SortFunc(sorted, func(a, b Field) int { return cmp.Compare(a.Attribute, b.Attribute) })
	for i, f := range sorted {
		switch {
		case f.Attribute == "" || f.Attribute == ir.TagAttribute:
			return Key{}, &KeyViolation{Tag: tag, Attribute: f.Attribute, Reason: "invalid attribute"}
		case !ir.IsStorable(f.Value):
			return Key{}, &KeyViolation{Tag: tag, Attribute: f.Attribute, Reason: "value is missing"}
		case i > 0 && sorted[i-1].Attribute == f.Attribute:
			return Key{}, &KeyViolation{Tag: tag, Attribute: f.Attribute, Reason: "attribute appears twice"}
		}
	}
	return Key{tag: tag, fields: sorted}, nil
}

// Tag returns the record tag.
func (k Key) Tag() string { return k.tag }

// Fields returns the key fields ordered by attribute.
func (k Key) Fields() []Field { return slices.Clone(k.fields) }

// canonical is the value hashed into the identifier.
func (k Key) canonical() ([]byte, error) {
	fields := make(map[string]any, len(k.fields))
	for _, f := range k.fields {
		fields[f.Attribute] = f.Value
	}
	return ir.MarshalCanonical(map[string]any{"tag": k.tag, "key": fields})
}

// fingerprint is a cheap unambiguous encoding used as a cache key.
func (k Key) fingerprint() string {
	var sb strings.Builder
	write := func(s string) {
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteByte(':')
		sb.WriteString(s)
	}
	write(k.tag)
	for _, f := range k.fields {
		write(f.Attribute)
		write(f.Value.Key())
	}
	return sb.String()
}

// String renders the key as tag{attr=value ...}.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(k.tag)
	sb.WriteByte('{')
	for i, f := range k.fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Attribute)
		sb.WriteByte('=')
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Triples returns the identity facts of the record: its tag and key fields.
func (k Key) Triples(id ir.EntityID) []ir.Triple {
	out := make([]ir.Triple, 0, len(k.fields)+1)
	out = append(out, ir.T(id, ir.TagAttribute, ir.IRString(k.tag)))
	for _, f := range k.fields {
		out = append(out, ir.T(id, f.Attribute, f.Value))
	}
	return out
}

// Payload is the non-identity part of a record. It is attached to an
// entity after its identifier is known and never influences it.
type Payload []Field

// Triples returns the payload facts for id. Fields with a null value are
// skipped; a record may leave payload attributes unset.
func (p Payload) Triples(id ir.EntityID) []ir.Triple {
	out := make([]ir.Triple, 0, len(p))
	for _, f := range p {
		if ir.IsStorable(f.Value) {
			out = append(out, ir.T(id, f.Attribute, f.Value))
		}
	}
	return out
}

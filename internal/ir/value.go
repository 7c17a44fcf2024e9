package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IRValue is a sealed interface representing the atomic values an EAV fact
// or a variable binding may carry.
// Only IRNull, IRString, IRInt, IRBool, and IRRef implement this.
// NO IRFloat - floats are forbidden (breaks determinism of keys and hashes).
type IRValue interface {
	irValue() // Sealed - only these types implement it

	// Kind reports the value's type tag.
	Kind() Kind

	// Key returns a type-tagged string that is equal for equal values and
	// distinct for distinct values. Used as a map key.
	Key() string

	// String renders the value for diagnostics and golden output.
	String() string
}

// Kind tags the concrete type of an IRValue.
// The numeric order is the cross-kind sort order used by Compare.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IRNull is the absent value. It can appear in a binding (an expression may
// yield null) but never as the value of a stored fact.
type IRNull struct{}

func (IRNull) irValue() {}
func (IRNull) Kind() Kind { return KindNull }
func (IRNull) Key() string { return "n:" }
func (IRNull) String() string { return "null" }

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}
func (IRString) Kind() Kind { return KindString }
func (s IRString) Key() string { return "s:" + string(s) }
func (s IRString) String() string { return strconv.Quote(string(s)) }

// IRInt represents an integer value.
// Always int64, never float64.
type IRInt int64

func (IRInt) irValue() {}
func (IRInt) Kind() Kind { return KindInt }
func (n IRInt) Key() string { return "i:" + strconv.FormatInt(int64(n), 10) }
func (n IRInt) String() string { return strconv.FormatInt(int64(n), 10) }

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}
func (IRBool) Kind() Kind { return KindBool }

func (b IRBool) Key() string {
	if b {
		return "b:1"
	}
	return "b:0"
}

func (b IRBool) String() string { return strconv.FormatBool(bool(b)) }

// IRRef is a reference to an entity. Entity-valued variables (the results of
// find, or attributes pointing at another entity) carry IRRef.
type IRRef EntityID

func (IRRef) irValue() {}
func (IRRef) Kind() Kind { return KindRef }
func (r IRRef) Key() string { return "r:" + string(r) }
func (r IRRef) String() string { return "#" + string(r) }

// Entity returns the referenced entity ID.
func (r IRRef) Entity() EntityID { return EntityID(r) }

// Compare orders values: first by Kind, then by value within a kind.
// Returns -1, 0 or 1.
func Compare(a, b IRValue) int {
	if a.Kind() != b.Kind() {
		if a.Kind() < b.Kind() {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case IRNull:
		return 0
	case IRBool:
		bv := b.(IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case IRInt:
		bv := b.(IRInt)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case IRString:
		return strings.Compare(string(av), string(b.(IRString)))
	case IRRef:
		return strings.Compare(string(av), string(b.(IRRef)))
	default:
		panic(fmt.Sprintf("ir: unknown IRValue type %T", a))
	}
}

// Equal reports whether two values are identical (same kind and value).
func Equal(a, b IRValue) bool {
	return a.Key() == b.Key()
}

// IsStorable reports whether v may be the value of a stored fact.
func IsStorable(v IRValue) bool {
	if v == nil {
		return false
	}
	_, isNull := v.(IRNull)
	return !isNull
}

// MarshalIRValue marshals an IRValue to JSON bytes.
// Refs are encoded as {"ref":"<id>"} so they survive a round trip.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRRef:
		return json.Marshal(map[string]string{"ref": string(val)})
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue deserializes JSON into an IRValue with strict validation.
// CRITICAL: Rejects floats, arrays and objects other than {"ref": "<id>"}.
// JSON null decodes to IRNull; callers storing facts must check IsStorable.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	// Use json.Decoder with UseNumber() to detect floats
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return FromNative(raw)
}

// FromNative converts a decoded JSON/YAML/CUE value into an IRValue.
// Accepts nil, bool, string, json.Number, Go integer kinds, and a
// single-key map {"ref": "<id>"}. Floats are rejected.
func FromNative(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	case map[string]any:
		return refFromMap(val)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func refFromMap(m map[string]any) (IRValue, error) {
	if len(m) != 1 {
		return nil, fmt.Errorf("object values must be {\"ref\": id}, got %d keys", len(m))
	}
	id, ok := m["ref"]
	if !ok {
		return nil, fmt.Errorf("object values must be {\"ref\": id}")
	}
	s, ok := id.(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("ref must be a non-empty string, got %T", id)
	}
	return IRRef(s), nil
}

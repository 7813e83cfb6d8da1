// Package node defines the value and node types that make up a store's
// materialised state: a typed Value variant, and the Node record that
// carries a type tag, a field map of Values, and a tombstone flag.
package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// NodeID is a monotonically allocated, non-zero node identifier.
type NodeID = uint64

// Value is a tagged variant over the value kinds a field can hold. The
// concrete types below are the only implementations; callers type-switch
// on Value the way mt-trie's node interface is switched on in trie.go.
type Value interface {
	isValue()
}

// IntValue is a signed 64-bit integer value.
type IntValue int64

// FloatValue is a 64-bit IEEE-754 binary floating point value. Equality
// and hashing operate on the raw bit pattern: distinct NaN payloads are
// distinct values, and +0 != -0 for hashing purposes.
type FloatValue float64

// BoolValue is a boolean value.
type BoolValue bool

// StrValue is a UTF-8 string value.
type StrValue string

// RefValue is a lookup key into a state's node table. It is not an
// ownership edge — see the Value & Node model notes in SPEC_FULL.md.
type RefValue NodeID

// ListValue is an ordered list of values. Order is significant for both
// equality and canonical encoding.
type ListValue []Value

// MapValue is a logical, key-order-insensitive map from string key to
// value. Canonical encoding imposes ascending key-byte order; equality
// ignores iteration order entirely.
type MapValue map[string]Value

func (IntValue) isValue()   {}
func (FloatValue) isValue() {}
func (BoolValue) isValue()  {}
func (StrValue) isValue()   {}
func (RefValue) isValue()   {}
func (ListValue) isValue()  {}
func (MapValue) isValue()   {}

// ValuesEqual reports whether two values are structurally equal. Ref equality
// is plain integer equality; Float equality compares raw bit patterns so
// it agrees with the canonical encoder and the state hash.
func ValuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case IntValue:
		bv, ok := b.(IntValue)
		return ok && av == bv
	case FloatValue:
		bv, ok := b.(FloatValue)
		return ok && math.Float64bits(float64(av)) == math.Float64bits(float64(bv))
	case BoolValue:
		bv, ok := b.(BoolValue)
		return ok && av == bv
	case StrValue:
		bv, ok := b.(StrValue)
		return ok && av == bv
	case RefValue:
		bv, ok := b.(RefValue)
		return ok && av == bv
	case ListValue:
		bv, ok := b.(ListValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case MapValue:
		bv, ok := b.(MapValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, present := bv[k]
			if !present || !ValuesEqual(v, ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch vv := v.(type) {
	case ListValue:
		out := make(ListValue, len(vv))
		for i, e := range vv {
			out[i] = Clone(e)
		}
		return out
	case MapValue:
		out := make(MapValue, len(vv))
		for k, e := range vv {
			out[k] = Clone(e)
		}
		return out
	default:
		// Int/Float/Bool/Str/Ref are immutable value types.
		return v
	}
}

// CollectRefs appends every RefValue reachable within v (recursing into
// List and Map) to out and returns the extended slice.
func CollectRefs(v Value, out []NodeID) []NodeID {
	switch vv := v.(type) {
	case RefValue:
		return append(out, NodeID(vv))
	case ListValue:
		for _, e := range vv {
			out = CollectRefs(e, out)
		}
		return out
	case MapValue:
		for _, e := range vv {
			out = CollectRefs(e, out)
		}
		return out
	default:
		return out
	}
}

// wire tags used by the JSON encoding of Value. These are internal to
// this Go implementation's on-disk representation, not a port of any
// other language's serde output.
const (
	tagInt   = "int"
	tagFloat = "float"
	tagBool  = "bool"
	tagStr   = "str"
	tagRef   = "ref"
	tagList  = "list"
	tagMap   = "map"
)

type valueWire struct {
	Kind string           `json:"kind"`
	Int  int64            `json:"int,omitempty"`
	Bool bool             `json:"bool,omitempty"`
	Str  string           `json:"str,omitempty"`
	Ref  NodeID           `json:"ref,omitempty"`
	List []Value          `json:"list,omitempty"`
	Map  map[string]Value `json:"map,omitempty"`
}

// MarshalValueJSON encodes v as its tagged-object wire form.
func MarshalValueJSON(v Value) ([]byte, error) {
	switch vv := v.(type) {
	case IntValue:
		return json.Marshal(valueWire{Kind: tagInt, Int: int64(vv)})
	case FloatValue:
		return marshalFloatValue(float64(vv))
	case BoolValue:
		return json.Marshal(valueWire{Kind: tagBool, Bool: bool(vv)})
	case StrValue:
		return json.Marshal(valueWire{Kind: tagStr, Str: string(vv)})
	case RefValue:
		return json.Marshal(valueWire{Kind: tagRef, Ref: NodeID(vv)})
	case ListValue:
		return json.Marshal(valueWire{Kind: tagList, List: []Value(vv)})
	case MapValue:
		return json.Marshal(valueWire{Kind: tagMap, Map: map[string]Value(vv)})
	default:
		return nil, fmt.Errorf("node: unknown value type %T", v)
	}
}

// marshalFloatValue encodes a float by its raw bit pattern so NaN
// payloads and signed zero survive a save/load round trip exactly.
func marshalFloatValue(f float64) ([]byte, error) {
	bits := math.Float64bits(f)
	var buf bytes.Buffer
	buf.WriteString(`{"kind":"float","float_bits":`)
	fmt.Fprintf(&buf, "%d", bits)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalValueJSON decodes a Value from its tagged-object wire form.
func UnmarshalValueJSON(data []byte) (Value, error) {
	var probe struct {
		Kind      string          `json:"kind"`
		Int       int64           `json:"int"`
		Float     float64         `json:"float"`
		FloatBits *uint64         `json:"float_bits"`
		Bool      bool            `json:"bool"`
		Str       string          `json:"str"`
		Ref       NodeID          `json:"ref"`
		List      []json.RawMessage `json:"list"`
		Map       map[string]json.RawMessage `json:"map"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("node: decode value: %w", err)
	}
	switch probe.Kind {
	case tagInt:
		return IntValue(probe.Int), nil
	case tagFloat:
		if probe.FloatBits != nil {
			return FloatValue(math.Float64frombits(*probe.FloatBits)), nil
		}
		return FloatValue(probe.Float), nil
	case tagBool:
		return BoolValue(probe.Bool), nil
	case tagStr:
		return StrValue(probe.Str), nil
	case tagRef:
		return RefValue(probe.Ref), nil
	case tagList:
		out := make(ListValue, len(probe.List))
		for i, raw := range probe.List {
			v, err := UnmarshalValueJSON(raw)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case tagMap:
		out := make(MapValue, len(probe.Map))
		for k, raw := range probe.Map {
			v, err := UnmarshalValueJSON(raw)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("node: unknown value kind %q", probe.Kind)
	}
}

// MarshalJSON implements json.Marshaler for every concrete Value type by
// delegating to MarshalValueJSON, so a List/Map holding mixed Values
// marshals correctly via the standard encoding/json recursion.
func (v IntValue) MarshalJSON() ([]byte, error)   { return MarshalValueJSON(v) }
func (v FloatValue) MarshalJSON() ([]byte, error) { return MarshalValueJSON(v) }
func (v BoolValue) MarshalJSON() ([]byte, error)  { return MarshalValueJSON(v) }
func (v StrValue) MarshalJSON() ([]byte, error)   { return MarshalValueJSON(v) }
func (v RefValue) MarshalJSON() ([]byte, error)   { return MarshalValueJSON(v) }
func (v ListValue) MarshalJSON() ([]byte, error)  { return MarshalValueJSON(v) }
func (v MapValue) MarshalJSON() ([]byte, error)   { return MarshalValueJSON(v) }

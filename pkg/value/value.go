// Package value implements the dynamic structured value the engine passes
// between the script loader, the template layer, the variable context, and
// modules. A Value is a tagged union over null, bool, integer, floating,
// string, byte buffer, ordered sequence, and ordered mapping, plus the
// distinguished omit sentinel. Mappings preserve insertion order because
// templates observe it.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// OmitMarker is the string the template engine produces when an expression
// resolves to the omit sentinel. The render pipeline translates it into the
// Omit variant; it never reaches a module.
const OmitMarker = "OMIT_THIS_VARIABLE"

// Kind is the variant tag of a Value.
type Kind int

const (
	// KindInvalid is the zero Value, distinct from an explicit null.
	KindInvalid Kind = iota
	// KindNull is the explicit null value.
	KindNull
	// KindBool is a boolean.
	KindBool
	// KindInt is a 64-bit signed integer.
	KindInt
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is a UTF-8 string.
	KindString
	// KindBytes is a raw byte buffer.
	KindBytes
	// KindSeq is an ordered sequence of values.
	KindSeq
	// KindMap is a mapping from string to value, insertion ordered.
	KindMap
	// KindOmit is the omission sentinel. It compares unequal to null.
	KindOmit
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindSeq:
		return "seq"
	case KindMap:
		return "map"
	case KindOmit:
		return "omit"
	default:
		return "invalid"
	}
}

type mapEntry struct {
	key string
	val Value
}

type orderedMap struct {
	entries []mapEntry
	index   map[string]int
}

func newOrderedMap() *orderedMap {
	return &orderedMap{index: make(map[string]int)}
}

// Value is a dynamic structured value. The zero Value is invalid; use Null
// for an explicit null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bs   []byte
	seq  []Value
	m    *orderedMap
}

// Null returns the explicit null value.
func Null() Value { return Value{kind: KindNull} }

// Omit returns the omission sentinel.
func Omit() Value { return Value{kind: KindOmit} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue returns an integer value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue returns a floating value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// BytesValue returns a byte buffer value.
func BytesValue(b []byte) Value { return Value{kind: KindBytes, bs: b} }

// SeqValue returns a sequence value over the given items.
func SeqValue(items ...Value) Value {
	return Value{kind: KindSeq, seq: items}
}

// NewMap returns an empty mapping value.
func NewMap() Value {
	return Value{kind: KindMap, m: newOrderedMap()}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is the zero Value (no variant at all).
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// IsNull reports whether v is the explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsOmit reports whether v is the omission sentinel.
func (v Value) IsOmit() bool { return v.kind == KindOmit }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the float payload, converting from an integer if needed.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBytes returns the byte buffer payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bs, true
}

// AsSeq returns the sequence items. Callers must not mutate the slice.
func (v Value) AsSeq() ([]Value, bool) {
	if v.kind != KindSeq {
		return nil, false
	}
	return v.seq, true
}

// MapGet returns the value bound to key in a mapping.
func (v Value) MapGet(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	idx, ok := v.m.index[key]
	if !ok {
		return Value{}, false
	}
	return v.m.entries[idx].val, true
}

// MapSet binds key to val, appending to the insertion order on first use.
func (v Value) MapSet(key string, val Value) {
	if v.kind != KindMap {
		panic(fmt.Sprintf("MapSet on %s value", v.kind))
	}
	if idx, ok := v.m.index[key]; ok {
		v.m.entries[idx].val = val
		return
	}
	v.m.index[key] = len(v.m.entries)
	v.m.entries = append(v.m.entries, mapEntry{key: key, val: val})
}

// MapDelete removes key from a mapping, preserving the order of the rest.
func (v Value) MapDelete(key string) bool {
	if v.kind != KindMap {
		return false
	}
	idx, ok := v.m.index[key]
	if !ok {
		return false
	}
	v.m.entries = append(v.m.entries[:idx], v.m.entries[idx+1:]...)
	delete(v.m.index, key)
	for i := idx; i < len(v.m.entries); i++ {
		v.m.index[v.m.entries[i].key] = i
	}
	return true
}

// MapKeys returns the mapping keys in insertion order.
func (v Value) MapKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, len(v.m.entries))
	for i, e := range v.m.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of items in a sequence, mapping, string, or byte
// buffer, and 0 for everything else.
func (v Value) Len() int {
	switch v.kind {
	case KindSeq:
		return len(v.seq)
	case KindMap:
		return len(v.m.entries)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.bs)
	default:
		return 0
	}
}

// Truthy applies the engine's boolean coercion rule: true, non-empty string,
// non-zero number, non-empty sequence or mapping are true; everything else
// (null, omit, false, zero, empty) is false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindBytes:
		return len(v.bs) > 0
	case KindSeq:
		return len(v.seq) > 0
	case KindMap:
		return len(v.m.entries) > 0
	default:
		return false
	}
}

// Equal reports deep equality. Integers and floats compare numerically;
// Omit equals only Omit, never null.
func (v Value) Equal(o Value) bool {
	if (v.kind == KindInt || v.kind == KindFloat) &&
		(o.kind == KindInt || o.kind == KindFloat) {
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInvalid, KindNull, KindOmit:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindBytes:
		return string(v.bs) == string(o.bs)
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m.entries) != len(o.m.entries) {
			return false
		}
		for _, e := range v.m.entries {
			ov, ok := o.MapGet(e.key)
			if !ok || !e.val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Stringify converts v to the string a force-string render would produce.
func (v Value) Stringify() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBytes:
		return string(v.bs)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindOmit:
		return OmitMarker
	case KindInvalid, KindNull:
		return ""
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	}
}

// String implements fmt.Stringer for diagnostics.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.Stringify()
}

// Summary renders a one-line redacted description of a mapping's keys, used
// when a module failure is reported without leaking parameter values.
func (v Value) Summary() string {
	if v.kind != KindMap {
		return v.kind.String()
	}
	return "{" + strings.Join(v.MapKeys(), ", ") + "}"
}

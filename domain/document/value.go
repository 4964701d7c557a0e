package document

import (
	"sort"
	"strings"
)

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	// KindUndefined marks an absent value. Undefined values are stripped
	// before persistence and never written to the store.
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "undefined"
	}
}

// Value is a tagged union over the field types a document may hold.
// The zero Value is Undefined, which models field absence: diffing and
// cleaning treat Undefined as "not there", while Null is a real value
// that persists as null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
}

// Undefined returns the absent value
func Undefined() Value { return Value{} }

// Null returns the null value
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps an ordered list of values
func List(items ...Value) Value { return Value{kind: KindList, l: items} }

// Map wraps a keyed map of values
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind returns the value's kind
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is absent
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload (false for other kinds)
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the numeric payload (0 for other kinds)
func (v Value) AsNumber() float64 { return v.n }

// AsString returns the string payload ("" for other kinds)
func (v Value) AsString() string { return v.s }

// AsList returns the list payload (nil for other kinds)
func (v Value) AsList() []Value { return v.l }

// AsMap returns the map payload (nil for other kinds)
func (v Value) AsMap() map[string]Value { return v.m }

// Equal reports deep structural equality between two values
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := o.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare defines a total order over values, used by sort clauses and
// range filters. Values of different kinds order by kind rank
// (Undefined < Null < Bool < Number < String < List < Map).
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		default:
			return 0
		}
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindList:
		for i := 0; i < len(a.l) && i < len(b.l); i++ {
			if c := Compare(a.l[i], b.l[i]); c != 0 {
				return c
			}
		}
		return len(a.l) - len(b.l)
	case KindMap:
		if c := len(a.m) - len(b.m); c != 0 {
			return c
		}
		keys := make([]string, 0, len(a.m))
		for k := range a.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if c := Compare(a.m[k], b.m[k]); c != 0 {
				return c
			}
		}
		return 0
	default:
		return 0
	}
}

// Contains reports whether v contains needle: substring match for
// strings, element match for lists.
func (v Value) Contains(needle Value) bool {
	switch v.kind {
	case KindString:
		return needle.kind == KindString && strings.Contains(v.s, needle.s)
	case KindList:
		for _, item := range v.l {
			if item.Equal(needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// clean returns a copy of v with Undefined entries stripped from maps
// and lists, recursively. The second return is false when v itself is
// Undefined and must be dropped by the caller.
func (v Value) clean() (Value, bool) {
	switch v.kind {
	case KindUndefined:
		return Value{}, false
	case KindList:
		items := make([]Value, 0, len(v.l))
		for _, item := range v.l {
			if cleaned, ok := item.clean(); ok {
				items = append(items, cleaned)
			}
		}
		return Value{kind: KindList, l: items}, true
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			if cleaned, ok := item.clean(); ok {
				m[k] = cleaned
			}
		}
		return Value{kind: KindMap, m: m}, true
	default:
		return v, true
	}
}

// CleanFields strips Undefined values from a field map, recursing into
// nested maps and lists. Null values are preserved.
func CleanFields(fields map[string]Value) map[string]Value {
	cleaned := make(map[string]Value, len(fields))
	for name, v := range fields {
		if cv, ok := v.clean(); ok {
			cleaned[name] = cv
		}
	}
	return cleaned
}

// FromAny converts a dynamically typed value (as produced by JSON or
// attributevalue unmarshalling) into a Value. Unknown types map to
// Undefined.
func FromAny(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case string:
		return String(t)
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return Value{kind: KindList, l: items}
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return Value{kind: KindMap, m: m}
	case Value:
		return t
	default:
		return Undefined()
	}
}

// ToAny converts a Value back to a dynamically typed representation.
// Undefined and Null both map to nil; callers persisting values must
// clean Undefined entries first.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		items := make([]interface{}, 0, len(v.l))
		for _, item := range v.l {
			items = append(items, item.ToAny())
		}
		return items
	case KindMap:
		m := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			m[k] = item.ToAny()
		}
		return m
	default:
		return nil
	}
}

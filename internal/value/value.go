// Package value provides a tagged dynamic value used for record payloads.
//
// Record data arrives as open JSON maps. Instead of passing interface{}
// around, every dynamic datum is wrapped in a Value carrying an explicit
// Kind tag. Store adapters and the ingestion pipeline switch on the tag,
// which keeps conversion failures local and typed.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

// String returns the lower-case name of the kind.
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
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged union over the JSON-compatible scalar and container
// types. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes wraps a byte slice. The slice is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// List wraps a slice of values. The slice is not copied.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Map wraps a map of values. The map is not copied.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolVal returns the boolean payload. The second result is false when the
// value is not a bool.
func (v Value) BoolVal() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// IntVal returns the integer payload.
func (v Value) IntVal() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// FloatVal returns the float payload. Integers are widened so numeric
// callers need a single path.
func (v Value) FloatVal() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// StringVal returns the string payload.
func (v Value) StringVal() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// BytesVal returns the byte payload.
func (v Value) BytesVal() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.raw, true
}

// ListVal returns the list payload.
func (v Value) ListVal() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// MapVal returns the map payload.
func (v Value) MapVal() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Text renders the value as the string fed to the chunker when a scalar
// field is vectorised.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.raw)
	default:
		b, err := json.Marshal(v.ToJSON())
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// FromJSON converts a decoded encoding/json value (any of nil, bool,
// float64, json.Number, string, []any, map[string]any) into a Value.
// json.Number is preferred when the decoder ran with UseNumber: whole
// numbers become Int, everything else Float.
func FromJSON(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Float(f)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []any:
		vs := make([]Value, len(t))
		for i, item := range t {
			vs[i] = FromJSON(item)
		}
		return List(vs)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromJSON(item)
		}
		return Map(m)
	case Value:
		return t
	default:
		// Last resort: round-trip through JSON text.
		b, err := json.Marshal(raw)
		if err != nil {
			return Null()
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return Null()
		}
		return FromJSON(decoded)
	}
}

// ToJSON converts the value back into the shape encoding/json marshals
// naturally. Bytes become base64 strings.
func (v Value) ToJSON() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.raw)
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToJSON()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToJSON()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToJSON())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromJSON(raw)
	return nil
}

// Equal reports deep equality of two values. Int and Float compare equal
// when they represent the same number.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		af, aok := a.FloatVal()
		bf, bok := b.FloatVal()
		return aok && bok && af == bf
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		return string(a.raw) == string(b.raw)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Keys returns the sorted key set of a map value, or nil for other kinds.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

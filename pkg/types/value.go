package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Value is a semi-structured attribute value: String, Number, Bool, List or Map.
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// Attributes is the open attribute bag carried by nodes and edges.
type Attributes map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map returns a map value.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Time renders t as a UTC RFC3339 string value so that serialised
// attributes are deterministic.
func Time(t time.Time) Value {
	return String(FormatTimestamp(t))
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsList returns the list held by v.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map held by v.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Text renders scalars as plain text and composites as canonical JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNull:
		return ""
	default:
		b, err := encodeJSON(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, x := range v.m {
			y, ok := o.m[k]
			if !ok || !x.Equal(y) {
				return false
			}
		}
		return true
	}
	return true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, list: out}
	case KindMap:
		out := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			out[k] = item.Clone()
		}
		return Value{kind: KindMap, m: out}
	}
	return v
}

// Any converts v into plain Go values (string, float64, bool, []any, map[string]any, nil).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Any()
		}
		return out
	}
	return nil
}

// FromAny converts a plain Go value into a Value. Times become UTC
// RFC3339 strings; unsupported types produce an error.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("types: invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case time.Time:
		return Time(t), nil
	case *time.Time:
		if t == nil {
			return Null(), nil
		}
		return Time(*t), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return List(items...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, s := range t {
			m[k] = String(s)
		}
		return Map(m), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("types: key %q: %w", k, err)
			}
			m[k] = v
		}
		return Map(m), nil
	case Attributes:
		return Map(map[string]Value(t)), nil
	case map[string]Value:
		return Map(t), nil
	}
	return Null(), fmt.Errorf("types: unsupported attribute type %T", x)
}

// MustFromAny is FromAny for literals known to be convertible.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// MarshalJSON implements json.Marshaler. Map keys are emitted in sorted
// order and strings are not HTML-escaped, so stored text matches its value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return encodeJSON(v.str)
	case KindNumber:
		return encodeJSON(v.num)
	case KindBool:
		return encodeJSON(v.b)
	case KindList:
		return encodeJSON(v.list)
	case KindMap:
		return encodeJSON(v.m)
	}
	return nil, fmt.Errorf("types: unknown value kind %d", v.kind)
}

// encodeJSON is json.Marshal without HTML escaping of <, > and &.
func encodeJSON(x any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(x); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (Value, bool) {
	v, ok := a[key]
	return v, ok
}

// GetString returns the string stored under key, or "".
func (a Attributes) GetString(key string) string {
	s, _ := a[key].AsString()
	return s
}

// Clone returns a deep copy of a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the attribute keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical serialises a to deterministic JSON text (sorted keys, UTC times).
func (a Attributes) Canonical() (string, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := encodeJSON(map[string]Value(a))
	if err != nil {
		return "", fmt.Errorf("types: failed to serialise attributes: %w", err)
	}
	return string(b), nil
}

// ParseAttributes parses canonical JSON text back into attributes.
func ParseAttributes(text string) (Attributes, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return Attributes{}, nil
	}
	var out map[string]Value
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("types: failed to parse attributes: %w", err)
	}
	if out == nil {
		out = map[string]Value{}
	}
	return Attributes(out), nil
}

// MergeAttributes deep-merges next over prev. Keys present in next win;
// keys only in prev survive; nested maps merge recursively. Neither input
// is modified.
func MergeAttributes(prev, next Attributes) Attributes {
	out := prev.Clone()
	if out == nil {
		out = Attributes{}
	}
	for k, nv := range next {
		pv, ok := out[k]
		if ok && pv.kind == KindMap && nv.kind == KindMap {
			out[k] = Map(map[string]Value(MergeAttributes(Attributes(pv.m), Attributes(nv.m))))
			continue
		}
		out[k] = nv.Clone()
	}
	return out
}

package token

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed JSON value taken from a token header or
// payload. Numbers keep the literal text they had in the token so no
// precision is lost before they are displayed or compared.
type Value struct {
	kind Kind
	str  string // string contents or number literal
	b    bool
	arr  []Value
	obj  *Object
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Number returns the number literal held by v, exactly as it appeared.
func (v Value) Number() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return json.Number(v.str), true
}

// Float64 returns the number held by v as a float64.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Int64 returns the number held by v as an int64. Fractional values are
// truncated toward negative infinity, which is how NumericDate claims with a
// fraction are compared.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := strconv.ParseInt(v.str, 10, 64); err == nil {
		return i, true
	}
	f, ok := v.Float64()
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

// Array returns the elements held by v.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Object returns the nested object held by v.
func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Interface converts v into plain Go values: string, json.Number, bool,
// []any, map[string]any or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return json.Number(v.str)
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, el := range v.arr {
			out[i] = el.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(name string, el Value) bool {
			out[name] = el.Interface()
			return true
		})
		return out
	default:
		return nil
	}
}

// String renders v for display: strings are returned unquoted, everything
// else as compact JSON.
func (v Value) String() string {
	if v.kind == KindString {
		return v.str
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, el := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := el.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// Object is a JSON object that remembers the order its members appeared in.
// A member repeated in the source keeps its first position and takes the
// last value, which is how JSON decoders resolve duplicates.
type Object struct {
	names  []string
	index  map[string]int
	values []Value
}

func newObject(capacity int) *Object {
	return &Object{
		names:  make([]string, 0, capacity),
		index:  make(map[string]int, capacity),
		values: make([]Value, 0, capacity),
	}
}

func (o *Object) set(name string, v Value) {
	if i, ok := o.index[name]; ok {
		o.values[i] = v
		return
	}
	o.index[name] = len(o.names)
	o.names = append(o.names, name)
	o.values = append(o.values, v)
}

// Get returns the member called name.
func (o *Object) Get(name string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	i, ok := o.index[name]
	if !ok {
		return Value{}, false
	}
	return o.values[i], true
}

// Has reports whether the object has a member called name.
func (o *Object) Has(name string) bool {
	_, ok := o.Get(name)
	return ok
}

// Len returns the number of distinct members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.names)
}

// Keys returns the member names in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.names...)
}

// Range calls fn for each member in order until fn returns false.
func (o *Object) Range(fn func(name string, v Value) bool) {
	if o == nil {
		return
	}
	for i, name := range o.names {
		if !fn(name, o.values[i]) {
			return
		}
	}
}

// MarshalJSON implements json.Marshaler, preserving member order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	o.Range(func(name string, v Value) bool {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		var b []byte
		if b, err = json.Marshal(name); err != nil {
			return false
		}
		buf.Write(b)
		buf.WriteByte(':')
		if b, err = v.MarshalJSON(); err != nil {
			return false
		}
		buf.Write(b)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

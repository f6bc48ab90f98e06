package agentbus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged union over the JSON data model
// (null/bool/number/string/array/object). The bus treats payload contents
// as opaque; Value exists so the codec stays statically checkable while
// still accepting arbitrary business data. Numbers are carried as
// json.Number, preserving the producer's exact rendering across a
// round trip.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  map[string]Value
}

// Payload is the open-ended business mapping carried by a StandardMessage.
type Payload map[string]Value

// Null returns the null Value. The zero Value is also null.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer as a JSON number.
func Int(i int64) Value { return Value{kind: KindNumber, num: json.Number(fmt.Sprintf("%d", i))} }

// Float wraps a float as a JSON number.
func Float(f float64) Value {
	n, _ := json.Marshal(f)
	return Value{kind: KindNumber, num: json.Number(n)}
}

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Array wraps a list of values.
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// Object wraps a mapping of values.
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// ValueOf converts any JSON-marshalable Go value into a Value.
func ValueOf(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	var out Value
	if err := out.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return out, nil
}

// Kind reports the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean and true when the value holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns the raw JSON number and true when the value holds one.
func (v Value) Number() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Int64 returns the number as int64 when it holds an integral number.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.num.Int64()
	return i, err == nil
}

// Float64 returns the number as float64 when the value holds a number.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// Str returns the string and true when the value holds one.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Array returns the element slice and true when the value holds an array.
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Object returns the member map and true when the value holds an object.
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Interface converts the value back into the generic Go representation
// (nil, bool, json.Number, string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i := range v.arr {
			out[i] = v.arr[i].Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// Equal reports deep equality. Numbers compare by their exact wire
// rendering, so 1 and 1.0 are distinct.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			el, err := v.arr[i].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(el)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			el, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(el)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("agentbus: cannot marshal %s value", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{}
	case bool:
		return Bool(t)
	case json.Number:
		return Value{kind: KindNumber, num: t}
	case float64:
		// Only reached when decoded without UseNumber.
		return Float(t)
	case string:
		return Str(t)
	case []any:
		arr := make([]Value, len(t))
		for i := range t {
			arr[i] = fromAny(t[i])
		}
		return Value{kind: KindArray, arr: arr}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			obj[k] = fromAny(e)
		}
		return Value{kind: KindObject, obj: obj}
	}
	return Value{}
}

// Equal reports deep equality of two payloads.
func (p Payload) Equal(o Payload) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is the unit the interpreter operates on: a scalar or an array of scalars.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	arr  []Value
}

// Env maps tag names to their current values
type Env map[string]Value

// Lookup finds a binding by exact name first, then by its lower-cased form
func (e Env) Lookup(name string) (Value, bool) {
	if v, ok := e[name]; ok {
		return v, true
	}
	v, ok := e[strings.ToLower(name)]
	return v, ok
}

// Clone returns a shallow copy of the environment
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// GoValues converts every binding to plain Go values
func (e Env) GoValues() map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = v.GoValue()
	}
	return out
}

func Null() Value            { return Value{} }
func Int(v int64) Value      { return Value{kind: KindInt, i: v} }
func Float(v float64) Value  { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }
func String(v string) Value  { return Value{kind: KindString, s: v} }
func Array(v ...Value) Value { return Value{kind: KindArray, arr: v} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsArray() bool  { return v.kind == KindArray }
func (v Value) Len() int       { return len(v.arr) }
func (v Value) Elems() []Value { return v.arr }

// IsNumeric reports whether v takes part in arithmetic. Booleans count as 0/1.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindBool
}

// AsInt returns the integer payload; bools convert to 0/1
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsFloat returns the numeric payload as float64
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt, KindBool:
		i, _ := v.AsInt()
		return float64(i), true
	}
	return 0, false
}

// AsString returns the string payload
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsBool returns the bool payload
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Truthy reports the truth value used by conditions and boolean operators
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
	case KindArray:
		return len(v.arr) > 0
	default:
		return false
	}
}

// Equal compares two values. Numbers compare numerically across int, float and bool.
func (v Value) Equal(other Value) bool {
	switch {
	case v.kind == KindInt && other.kind == KindInt:
		return v.i == other.i
	case v.IsNumeric() && other.IsNumeric():
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		return a == b
	case v.kind == KindString && other.kind == KindString:
		return v.s == other.s
	case v.kind == KindArray && other.kind == KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case v.kind == KindNull && other.kind == KindNull:
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "null"
	}
}

// GoValue converts v to a plain Go value (int64, float64, bool, string, []any or nil)
func (v Value) GoValue() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.GoValue()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the Go form of the value
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.GoValue())
}

// FromGo converts a decoded JSON value (or any plain Go scalar) into a Value.
// Unsupported types fall back to their fmt representation.
func FromGo(x any) Value {
	switch val := x.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case bool:
		return Bool(val)
	case int:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case float32:
		return Float(float64(val))
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			// JSON numbers decode as float64; keep whole numbers integral
			return Int(int64(val))
		}
		return Float(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i)
		}
		if f, err := val.Float64(); err == nil {
			return Float(f)
		}
		return String(val.String())
	case string:
		return String(val)
	case []any:
		elems := make([]Value, len(val))
		for i, e := range val {
			ev := FromGo(e)
			if ev.kind == KindArray {
				ev = String(ev.String())
			}
			elems[i] = ev
		}
		return Array(elems...)
	case []string:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = String(e)
		}
		return Array(elems...)
	case []float64:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = Float(e)
		}
		return Array(elems...)
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// Package document models index documents whose field set and field types are
// only known at run time. A Document is an ordered set of named Values; a Value
// is a closed tagged union over the types a search index field can hold.
package document

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindGeoPoint
	KindArray
)

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
	case KindTimestamp:
		return "timestamp"
	case KindGeoPoint:
		return "geo_point"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Value is one field value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	geo  GeoPoint
	arr  []Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// textTimestamp is a timestamp decoded from a JSON string. It keeps the text
// so the field still reads and re-encodes as the string it arrived as.
func textTimestamp(t time.Time, text string) Value {
	return Value{kind: KindTimestamp, t: t, s: text}
}

// Geo builds a geographic point value.
func Geo(lat, lon float64) Value {
	return Value{kind: KindGeoPoint, geo: GeoPoint{Latitude: lat, Longitude: lon}}
}

// Array builds a sequence value. The elements are copied. Homogeneity is
// checked by Validate, not here.
func Array(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

func Strings(ss ...string) Value {
	arr := make([]Value, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return Value{kind: KindArray, arr: arr}
}

func Ints(is ...int64) Value {
	arr := make([]Value, len(is))
	for i, n := range is {
		arr[i] = Int(n)
	}
	return Value{kind: KindArray, arr: arr}
}

func Floats(fs ...float64) Value {
	arr := make([]Value, len(fs))
	for i, f := range fs {
		arr[i] = Float(f)
	}
	return Value{kind: KindArray, arr: arr}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
// AsString also succeeds for a timestamp decoded from a string, returning the
// text exactly as received.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString || v.textual()
}

func (v Value) AsTimestamp() (time.Time, bool) { return v.t, v.kind == KindTimestamp }
func (v Value) AsGeoPoint() (GeoPoint, bool) { return v.geo, v.kind == KindGeoPoint }

func (v Value) textual() bool { return v.kind == KindTimestamp && v.s != "" }

// AsArray returns a copy of the elements.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out, true
}

// Len returns the number of elements of an array value and 0 otherwise.
func (v Value) Len() int {
	return len(v.arr)
}

// Equal compares two values exhaustively. NaN equals NaN, timestamps compare by
// instant, and Int(1) is not equal to Float(1). A timestamp decoded from a
// string equals a String value with the same text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		if (v.kind == KindString && o.textual()) || (o.kind == KindString && v.textual()) {
			return v.s == o.s
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		if math.IsNaN(v.f) {
			return math.IsNaN(o.f)
		}
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindGeoPoint:
		return v.geo == o.geo
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
	}
	return false
}

// Validate rejects nested arrays and arrays mixing element kinds. Null
// elements are allowed in any array. Strings and timestamps decoded from
// strings may share an array, since both arrived as JSON strings.
func (v Value) Validate() error {
	if v.kind != KindArray {
		return nil
	}
	elemKind := KindNull
	allText := true
	for i, e := range v.arr {
		if e.kind == KindArray {
			return fmt.Errorf("element %d: nested arrays are not supported", i)
		}
		if e.kind == KindNull {
			continue
		}
		text := e.kind == KindString || e.textual()
		switch {
		case elemKind == KindNull:
			elemKind = e.kind
			allText = text
		case allText && text:
			if e.kind == KindString {
				elemKind = KindString
			}
		case e.kind != elemKind:
			return fmt.Errorf("element %d: %s in array of %s", i, e.kind, elemKind)
		default:
			allText = false
		}
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	case KindTimestamp:
		if v.textual() {
			return v.s
		}
		return v.t.Format(time.RFC3339Nano)
	case KindGeoPoint:
		return fmt.Sprintf("POINT(%g %g)", v.geo.Longitude, v.geo.Latitude)
	case KindArray:
		s := "["
		for i, e := range v.arr {
			if i > 0 {
				s += ","
			}
			s += e.String()
		}
		return s + "]"
	}
	return ""
}

func (v Value) clone() Value {
	if v.kind == KindArray {
		return Array(v.arr...)
	}
	return v
}

package document

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// TagName is the struct tag read by NewAdapter. The tag format is
// `search:"name[,key][,nullable]"`; `search:"-"` skips the field.
const TagName = "search"

var (
	timeType     = reflect.TypeFor[time.Time]()
	geoPointType = reflect.TypeFor[GeoPoint]()
)

type recordField struct {
	name     string
	goName   string
	index    []int
	nullable bool
}

// Adapter converts values of the struct type T to and from Documents.
//
// On write, nil pointers and nil slices are omitted unless the field is tagged
// nullable, in which case they are written as explicit nulls. On read, field
// names match case-insensitively, unknown document fields are dropped, and
// timestamps are returned in UTC.
type Adapter[T any] struct {
	typ     reflect.Type
	fields  []recordField
	byLower map[string]int
	key     int
}

// NewAdapter inspects T and returns an adapter for it. T must be a struct with
// exactly one string field tagged as key.
func NewAdapter[T any]() (*Adapter[T], error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record type %s must be a struct", typ)
	}
	a := &Adapter[T]{
		typ:     typ,
		byLower: make(map[string]int),
		key:     -1,
	}
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		f := recordField{name: name, goName: sf.Name, index: sf.Index}
		isKey := false
		for opt := range strings.SplitSeq(opts, ",") {
			switch opt {
			case "":
			case "key":
				isKey = true
			case "nullable":
				f.nullable = true
			default:
				return nil, fmt.Errorf("field %s: unknown tag option %q", sf.Name, opt)
			}
		}
		if err := checkFieldType(sf.Type); err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		lower := strings.ToLower(name)
		if _, dup := a.byLower[lower]; dup {
			return nil, fmt.Errorf("field %s: name %q collides case-insensitively", sf.Name, name)
		}
		if isKey {
			if a.key >= 0 {
				return nil, fmt.Errorf("field %s: record has more than one key field", sf.Name)
			}
			if sf.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("field %s: key field must be a string", sf.Name)
			}
			a.key = len(a.fields)
		}
		a.byLower[lower] = len(a.fields)
		a.fields = append(a.fields, f)
	}
	if a.key < 0 {
		return nil, fmt.Errorf("record type %s declares no key field", typ)
	}
	return a, nil
}

// MustAdapter is like NewAdapter but panics on error. It is meant for
// package-level variables.
func MustAdapter[T any]() *Adapter[T] {
	a, err := NewAdapter[T]()
	if err != nil {
		panic(err)
	}
	return a
}

// KeyField returns the wire name of the key field.
func (a *Adapter[T]) KeyField() string {
	return a.fields[a.key].name
}

// Key returns the key value of rec.
func (a *Adapter[T]) Key(rec T) string {
	return reflect.ValueOf(rec).FieldByIndex(a.fields[a.key].index).String()
}

// ToDocument converts rec, preserving the declared field names and order.
func (a *Adapter[T]) ToDocument(rec T) (*Document, error) {
	rv := reflect.ValueOf(rec)
	doc := New()
	for _, f := range a.fields {
		v, present, err := toValue(rv.FieldByIndex(f.index))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.goName, err)
		}
		switch {
		case present:
			doc.Set(f.name, v)
		case f.nullable:
			doc.Set(f.name, Null())
		}
	}
	return doc, nil
}

// FromDocument builds a record from doc.
func (a *Adapter[T]) FromDocument(doc *Document) (T, error) {
	var rec T
	rv := reflect.ValueOf(&rec).Elem()
	for name, v := range doc.All() {
		idx, ok := a.byLower[strings.ToLower(name)]
		if !ok {
			continue
		}
		f := a.fields[idx]
		if err := fromValue(v, rv.FieldByIndex(f.index)); err != nil {
			return rec, fmt.Errorf("field %s: %w", f.goName, err)
		}
	}
	return rec, nil
}

func checkFieldType(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Pointer || t.Elem().Kind() == reflect.Slice {
			return fmt.Errorf("unsupported field type %s", t)
		}
		return checkFieldType(t.Elem())
	case reflect.Slice:
		elem := t.Elem()
		if elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Slice || elem.Kind() == reflect.Pointer {
			return fmt.Errorf("unsupported field type %s", t)
		}
		return checkFieldType(elem)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Struct:
		if t == timeType || t == geoPointType {
			return nil
		}
	}
	return fmt.Errorf("unsupported field type %s", t)
}

// toValue reports present=false for nil pointers and slices.
func toValue(rv reflect.Value) (Value, bool, error) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, false, nil
		}
		return toValue(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return Value{}, false, nil
		}
		arr := make([]Value, rv.Len())
		for i := range arr {
			ev, present, err := toValue(rv.Index(i))
			if err != nil {
				return Value{}, false, fmt.Errorf("element %d: %w", i, err)
			}
			if present {
				arr[i] = ev
			}
		}
		return Value{kind: KindArray, arr: arr}, true, nil
	case reflect.Bool:
		return Bool(rv.Bool()), true, nil
	case reflect.String:
		return String(rv.String()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, false, fmt.Errorf("value %d overflows int64", u)
		}
		return Int(int64(u)), true, nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), true, nil
	case reflect.Struct:
		switch rv.Type() {
		case timeType:
			return Timestamp(rv.Interface().(time.Time)), true, nil
		case geoPointType:
			p := rv.Interface().(GeoPoint)
			return Geo(p.Latitude, p.Longitude), true, nil
		}
	}
	return Value{}, false, fmt.Errorf("unsupported type %s", rv.Type())
}

var errKindMismatch = errors.New("value kind does not match field type")

func fromValue(v Value, rv reflect.Value) error {
	if v.IsNull() {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer:
		elem := reflect.New(rv.Type().Elem())
		if err := fromValue(v, elem.Elem()); err != nil {
			return err
		}
		rv.Set(elem)
		return nil
	case reflect.Slice:
		arr, ok := v.AsArray()
		if !ok {
			return fmt.Errorf("%w: %s into %s", errKindMismatch, v.Kind(), rv.Type())
		}
		out := reflect.MakeSlice(rv.Type(), len(arr), len(arr))
		for i, ev := range arr {
			if err := fromValue(ev, out.Index(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		rv.Set(out)
		return nil
	case reflect.Bool:
		if b, ok := v.AsBool(); ok {
			rv.SetBool(b)
			return nil
		}
	case reflect.String:
		if s, ok := v.AsString(); ok {
			rv.SetString(s)
			return nil
		}
		// A Timestamp built in code has no text of its own.
		if t, ok := v.AsTimestamp(); ok {
			rv.SetString(t.Format(time.RFC3339Nano))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.AsInt(); ok {
			if rv.OverflowInt(i) {
				return fmt.Errorf("value %d overflows %s", i, rv.Type())
			}
			rv.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, ok := v.AsInt(); ok {
			if i < 0 || rv.OverflowUint(uint64(i)) {
				return fmt.Errorf("value %d overflows %s", i, rv.Type())
			}
			rv.SetUint(uint64(i))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.AsFloat(); ok {
			rv.SetFloat(f)
			return nil
		}
		if i, ok := v.AsInt(); ok {
			rv.SetFloat(float64(i))
			return nil
		}
		if s, ok := v.AsString(); ok {
			if f, ok := ParseFloatLiteral(s); ok {
				rv.SetFloat(f)
				return nil
			}
		}
	case reflect.Struct:
		switch rv.Type() {
		case timeType:
			if t, ok := v.AsTimestamp(); ok {
				rv.Set(reflect.ValueOf(t.UTC()))
				return nil
			}
			if s, ok := v.AsString(); ok {
				if t, ok := ParseTimestamp(s); ok {
					rv.Set(reflect.ValueOf(t.UTC()))
					return nil
				}
			}
		case geoPointType:
			if p, ok := v.AsGeoPoint(); ok {
				rv.Set(reflect.ValueOf(p))
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s into %s", errKindMismatch, v.Kind(), rv.Type())
}

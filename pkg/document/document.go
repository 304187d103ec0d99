package document

import (
	"fmt"
	"iter"
	"slices"
)

// Document is an ordered mapping from field name to Value. Field names are
// case-sensitive and unique. Insertion order is kept for encoding only and is
// ignored by Equal.
//
// A Document is not safe for concurrent mutation.
type Document struct {
	names  []string
	fields map[string]Value
}

// New returns an empty document.
func New() *Document {
	return &Document{fields: make(map[string]Value)}
}

// Set stores v under name. Re-setting an existing name keeps its position.
// Set returns d so calls can be chained.
func (d *Document) Set(name string, v Value) *Document {
	if d.fields == nil {
		d.fields = make(map[string]Value)
	}
	if _, ok := d.fields[name]; !ok {
		d.names = append(d.names, name)
	}
	d.fields[name] = v.clone()
	return d
}

// Get returns the value stored under name. The second result is false when the
// field is absent; a field explicitly set to null is present.
func (d *Document) Get(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.fields[name]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

// Has reports whether name is present, including when its value is null.
func (d *Document) Has(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.fields[name]
	return ok
}

// Remove deletes name, making it absent. It reports whether the field existed.
func (d *Document) Remove(name string) bool {
	if !d.Has(name) {
		return false
	}
	delete(d.fields, name)
	d.names = slices.DeleteFunc(d.names, func(n string) bool { return n == name })
	return true
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// Fields returns the field names in insertion order.
func (d *Document) Fields() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.names)
}

// All iterates fields in insertion order.
func (d *Document) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if d == nil {
			return
		}
		for _, name := range d.names {
			if !yield(name, d.fields[name].clone()) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{
		names:  make([]string, 0, d.Len()),
		fields: make(map[string]Value, d.Len()),
	}
	for name, v := range d.All() {
		out.names = append(out.names, name)
		out.fields[name] = v
	}
	return out
}

// Equal reports whether both documents hold the same field names with equal
// values, regardless of order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	for name, v := range d.All() {
		ov, ok := o.Get(name)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Validate checks every field name and value.
func (d *Document) Validate() error {
	for name, v := range d.All() {
		if name == "" {
			return fmt.Errorf("field name must not be empty")
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func (d *Document) String() string {
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid document: %v>", err)
	}
	return string(data)
}

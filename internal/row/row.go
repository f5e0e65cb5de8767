package row

import (
	"fmt"
	"strings"
)

// Field is a single named column value.
type Field struct {
	Name  string
	Value any
}

// Row is a key-ordered mapping from column name to value.
// Lookups are linear; rows are narrow and order matters more than speed.
type Row []Field

// New builds a row from alternating name/value pairs.
//
// Panics if pairs has odd length or a name is not a string. Intended for
// fixtures and tests.
func New(pairs ...any) Row {
	if len(pairs)%2 != 0 {
		panic("row.New: odd number of arguments")
	}
	r := make(Row, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("row.New: argument %d is %T, want string", i, pairs[i]))
		}
		r = append(r, Field{Name: name, Value: pairs[i+1]})
	}
	return r
}

// FromColumns zips column names and values into a row.
// Returns an error if the lengths differ.
func FromColumns(names []string, values []any) (Row, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("row: %d columns but %d values", len(names), len(values))
	}
	r := make(Row, len(names))
	for i, name := range names {
		r[i] = Field{Name: name, Value: values[i]}
	}
	return r, nil
}

// Get returns the value of the named field.
// The second result reports whether the field exists; a present NULL
// column returns (nil, true).
func (r Row) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether the row carries the named field.
func (r Row) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the field names in row order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Values returns the field values in row order.
func (r Row) Values() []any {
	values := make([]any, len(r))
	for i, f := range r {
		values[i] = f.Value
	}
	return values
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// With returns a copy of the row with the named field set.
// An existing field keeps its position; a new field is appended.
func (r Row) With(name string, value any) Row {
	out := r.Clone()
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Name: name, Value: value})
}

// String renders the row for debugging as {a=1, b="x"}.
func (r Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		if s, ok := f.Value.(string); ok {
			fmt.Fprintf(&b, "%q", s)
		} else {
			fmt.Fprintf(&b, "%v", f.Value)
		}
	}
	b.WriteByte('}')
	return b.String()
}

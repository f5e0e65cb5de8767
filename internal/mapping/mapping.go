// Package mapping projects source rows onto destination rows.
//
// A Mapping is an ordered list of entries, each naming a destination field,
// the source field it is copied from, and whether it is part of the natural
// key used to find an existing destination row. Values are copied verbatim;
// there is no type coercion.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/row"
)

// Entry maps one source field to one destination field.
type Entry struct {
	Dest       string `yaml:"dest" json:"dest"`
	Src        string `yaml:"src" json:"src"`
	NaturalKey bool   `yaml:"natural_key,omitempty" json:"natural_key,omitempty"`
}

// MissingFieldError reports a mapped source field absent from a row.
type MissingFieldError struct {
	Field string
	Dest  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("mapping error: source field %q (for %q) is missing from row", e.Field, e.Dest)
}

// ErrNoNaturalKey is returned by New when no entry is flagged as natural key.
var ErrNoNaturalKey = errors.New("mapping has no natural key entry")

// Mapping is an immutable, validated list of entries.
type Mapping struct {
	entries []Entry
	keys    []Entry
}

// New validates entries and returns a Mapping.
//
// Destination field names must be unique and valid identifiers, every entry
// needs a source field, and at least one entry must be a natural key.
func New(entries []Entry) (*Mapping, error) {
	if len(entries) == 0 {
		return nil, errors.New("mapping is empty")
	}

	var problems []string
	seen := make(map[string]bool, len(entries))
	m := &Mapping{entries: make([]Entry, len(entries))}
	copy(m.entries, entries)

	for i, e := range m.entries {
		if err := ident.Validate(e.Dest); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: dest: %v", i, err))
		}
		if err := ident.Validate(e.Src); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: src: %v", i, err))
		}
		if seen[e.Dest] {
			problems = append(problems, fmt.Sprintf("entry %d: duplicate dest %q", i, e.Dest))
		}
		seen[e.Dest] = true
		if e.NaturalKey {
			m.keys = append(m.keys, e)
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid mapping: %s", strings.Join(problems, "; "))
	}
	if len(m.keys) == 0 {
		return nil, ErrNoNaturalKey
	}
	return m, nil
}

// Entries returns a copy of the entries in declaration order.
func (m *Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// NaturalKeys returns the natural-key entries in declaration order.
func (m *Mapping) NaturalKeys() []Entry {
	out := make([]Entry, len(m.keys))
	copy(out, m.keys)
	return out
}

// Project builds the destination field set for a source row.
// The result contains exactly the mapped destination fields, in entry order,
// regardless of extra source columns.
func (m *Mapping) Project(src row.Row) (row.Row, error) {
	return project(m.entries, src)
}

// NaturalKeyOf returns the destination natural-key fields for a source row,
// in entry order.
func (m *Mapping) NaturalKeyOf(src row.Row) (row.Row, error) {
	return project(m.keys, src)
}

// Check reports every mapped source field missing from columns.
// Used to validate a mapping against a table before the first pass.
func (m *Mapping) Check(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var errs []error
	for _, e := range m.entries {
		if !have[e.Src] {
			errs = append(errs, &MissingFieldError{Field: e.Src, Dest: e.Dest})
		}
	}
	return errors.Join(errs...)
}

// CheckDest reports every destination field missing from columns.
func (m *Mapping) CheckDest(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var missing []string
	for _, e := range m.entries {
		if !have[e.Dest] {
			missing = append(missing, e.Dest)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("destination is missing mapped fields %v", missing)
	}
	return nil
}

func project(entries []Entry, src row.Row) (row.Row, error) {
	out := make(row.Row, 0, len(entries))
	for _, e := range entries {
		v, ok := src.Get(e.Src)
		if !ok {
			return nil, &MissingFieldError{Field: e.Src, Dest: e.Dest}
		}
		out = append(out, row.Field{Name: e.Dest, Value: v})
	}
	return out, nil
}

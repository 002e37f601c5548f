package table

import (
	"fmt"
	"strings"
)

// SchemaColumn is one named, typed column
type SchemaColumn struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Schema is the ordered column contract of a group's tables. All files
// in one group must produce the same column names.
type Schema struct {
	Columns []SchemaColumn `json:"columns"`
}

// NewSchema builds a schema from parallel name order and a type map
func NewSchema(names []string, types map[string]ValueType) Schema {
	cols := make([]SchemaColumn, len(names))
	for i, n := range names {
		vt, ok := types[n]
		if !ok {
			vt = TypeString
		}
		cols[i] = SchemaColumn{Name: n, Type: vt}
	}
	return Schema{Columns: cols}
}

// Names returns the column names in order
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Types returns a name-to-type map
func (s Schema) Types() map[string]ValueType {
	out := make(map[string]ValueType, len(s.Columns))
	for _, c := range s.Columns {
		out[c.Name] = c.Type
	}
	return out
}

// Has reports whether the schema contains the named column
func (s Schema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type, defaulting to string
func (s Schema) TypeOf(name string) ValueType {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return TypeString
}

// Clone returns a copy safe to mutate
func (s Schema) Clone() Schema {
	return Schema{Columns: append([]SchemaColumn(nil), s.Columns...)}
}

// SameNames checks that another header set carries exactly the same
// column names, order-insensitive. Returns a description of the first
// difference found.
func (s Schema) SameNames(headers []string) error {
	want := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		want[c.Name] = true
	}
	got := make(map[string]bool, len(headers))
	for _, h := range headers {
		got[h] = true
	}
	for _, h := range headers {
		if !want[h] {
			return fmt.Errorf("unexpected column %q (expected %s)", h, strings.Join(s.Names(), ", "))
		}
	}
	for _, c := range s.Columns {
		if !got[c.Name] {
			return fmt.Errorf("missing column %q", c.Name)
		}
	}
	return nil
}

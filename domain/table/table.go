package table

import (
	"fmt"
)

// Row maps column names to cell values
type Row map[string]Value

// Clone returns a copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an in-memory tabular value: an ordered column list, a
// declared type per column, and rows of typed cells. Actions never
// mutate a table in place, they produce a new one.
type Table struct {
	Columns []string             `json:"columns"`
	Types   map[string]ValueType `json:"types"`
	Rows    []Row                `json:"rows"`
}

// New creates an empty table with the given column order and types
func New(columns []string, types map[string]ValueType) *Table {
	copied := make(map[string]ValueType, len(types))
	for k, v := range types {
		copied[k] = v
	}
	return &Table{
		Columns: append([]string(nil), columns...),
		Types:   copied,
	}
}

// RowCount returns the number of data rows
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// HasColumn reports whether the named column exists
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type of a column, defaulting to string
func (t *Table) TypeOf(name string) ValueType {
	if vt, ok := t.Types[name]; ok {
		return vt
	}
	return TypeString
}

// Cell returns the value at the named column, missing if absent
func (r Row) Cell(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return NewMissingValue()
}

// AppendRow adds a row. Cells for unknown columns are dropped.
func (t *Table) AppendRow(row Row) {
	kept := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		kept[c] = row.Cell(c)
	}
	t.Rows = append(t.Rows, kept)
}

// Clone returns a deep-enough copy: column order, types and row maps
// are fresh, cell values are shared (they are immutable)
func (t *Table) Clone() *Table {
	out := New(t.Columns, t.Types)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Project returns a table restricted to the named columns, in the
// given order. Fails if any column is unknown.
func (t *Table) Project(columns []string) (*Table, error) {
	types := make(map[string]ValueType, len(columns))
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("project: column %q not found", c)
		}
		types[c] = t.TypeOf(c)
	}
	out := New(columns, types)
	for _, r := range t.Rows {
		out.AppendRow(r)
	}
	return out, nil
}

// RenderRows returns all rows as strings in column order, header first.
// This is the handoff format for the export collaborator.
func (t *Table) RenderRows() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, r := range t.Rows {
		rendered := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rendered[i] = r.Cell(c).Render()
		}
		out = append(out, rendered)
	}
	return out
}

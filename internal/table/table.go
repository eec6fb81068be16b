// Package table provides the in-memory tabular value passed between
// query, interpolation, and pipeline stages: ordered columns and rows
// of loosely-typed values, matching what a database scan produces.
package table

import (
	"fmt"
	"math/big"
	"time"
)

// Table is an ordered set of named columns and rows.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has a column with the name.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// AppendRow adds a row, which must match the column count.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values for %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// At returns the value at a row and column, or nil when the column
// does not exist.
func (t *Table) At(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][idx]
}

// Float64At returns the value at a row and column coerced to float64.
func (t *Table) Float64At(row int, column string) (float64, bool) {
	return AsFloat64(t.At(row, column))
}

// Float64Column returns a whole column coerced to float64.
func (t *Table) Float64Column(column string) ([]float64, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %s does not exist", column)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, ok := AsFloat64(row[idx])
		if !ok {
			return nil, fmt.Errorf("non-numeric value %v in column %s row %d", row[idx], column, i)
		}
		out[i] = v
	}
	return out, nil
}

// AddColumn returns a copy of the table with one more column, computed
// per row. Fails if the column already exists.
func (t *Table) AddColumn(name string, fn func(row []any) any) (*Table, error) {
	if t.HasColumn(name) {
		return nil, fmt.Errorf("column %s already exists", name)
	}
	out := New(append(append([]string{}, t.Columns...), name)...)
	for _, row := range t.Rows {
		newRow := append(append([]any{}, row...), fn(row))
		out.Rows = append(out.Rows, newRow)
	}
	return out, nil
}

// Select returns a copy with only the named columns, in the given
// order.
func (t *Table) Select(columns ...string) (*Table, error) {
	indices := make([]int, len(columns))
	for i, c := range columns {
		idx := t.ColumnIndex(c)
		if idx < 0 {
			return nil, fmt.Errorf("column %s does not exist", c)
		}
		indices[i] = idx
	}
	out := New(columns...)
	for _, row := range t.Rows {
		newRow := make([]any, len(indices))
		for i, idx := range indices {
			newRow[i] = row[idx]
		}
		out.Rows = append(out.Rows, newRow)
	}
	return out, nil
}

// Filter returns a copy keeping only the rows the predicate accepts.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := New(t.Columns...)
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// AsFloat64 coerces the numeric types a database driver may hand back
// into a float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case time.Duration:
		return float64(n), true
	default:
		return 0, false
	}
}

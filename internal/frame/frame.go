// Package frame holds the in-memory tabular snapshot type passed between
// sources, compute functions, and targets.
package frame

import (
	"fmt"
	"slices"
)

// Frame is an ordered sequence of rows with a uniform column set.
// An empty frame (zero rows) is a valid snapshot and is distinct from
// "no snapshot": targets return an empty frame when nothing has been
// persisted yet.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty frame with the given column order.
func New(columns ...string) Frame {
	return Frame{Columns: slices.Clone(columns)}
}

// NumRows returns the number of rows in the frame.
func (f Frame) NumRows() int {
	return len(f.Rows)
}

// Empty reports whether the frame holds no rows.
func (f Frame) Empty() bool {
	return len(f.Rows) == 0
}

// AppendRow adds a row to the frame. The cell count must match the
// column count.
func (f *Frame) AppendRow(cells ...any) error {
	if len(cells) != len(f.Columns) {
		return fmt.Errorf("row has %d cells, frame has %d columns", len(cells), len(f.Columns))
	}
	f.Rows = append(f.Rows, cells)
	return nil
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (f Frame) ColumnIndex(name string) int {
	return slices.Index(f.Columns, name)
}

// HasColumn reports whether the frame carries the named column.
func (f Frame) HasColumn(name string) bool {
	return f.ColumnIndex(name) >= 0
}

// MissingColumns returns the required columns the frame does not carry,
// in the order they were required. An empty result means the frame's
// column set is a superset of required.
func (f Frame) MissingColumns(required []string) []string {
	var missing []string
	for _, col := range required {
		if !f.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Value returns the cell at (row, column). The second result is false
// when the column does not exist or the row index is out of range.
func (f Frame) Value(row int, column string) (any, bool) {
	idx := f.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(f.Rows) {
		return nil, false
	}
	return f.Rows[row][idx], true
}

// Records materializes each row as a column-keyed map. Intended for
// serialization boundaries, not hot paths.
func (f Frame) Records() []map[string]any {
	records := make([]map[string]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		record := make(map[string]any, len(f.Columns))
		for i, col := range f.Columns {
			record[col] = row[i]
		}
		records = append(records, record)
	}
	return records
}

// FromRecords builds a frame from column-keyed maps using the given
// column order. Missing keys become nil cells.
func FromRecords(columns []string, records []map[string]any) Frame {
	f := New(columns...)
	for _, record := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = record[col]
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// Float coerces a cell to float64. Integers widen; strings and other
// types do not coerce.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

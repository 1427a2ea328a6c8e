// =============================================================================
// depivot - Tabular Frame
// =============================================================================
//
// This package contains the shared tabular data structure used across the
// pipeline to avoid import cycles. A Frame is an in-memory table with ordered,
// named columns and row-major cells, loaded from a worksheet and consumed by:
//   - quality (data-quality rule engine)
//   - template (frame-level structural checks)
//   - depivot (melt transform, reconciliation, output writer)
//
// MISSING VALUES:
//   A cell is "missing" when it is nil or a NaN float. Aggregations
//   (SumColumn, NullCount) treat both the same way, so totals computed before
//   and after the numeric normalizer runs remain comparable.
//
// =============================================================================

package frame

import (
	"fmt"
	"math"
	"strings"
)

// Frame is an ordered-column, row-major table. Rows always have exactly
// len(Columns()) cells; AppendRow pads or truncates to enforce this.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty Frame with the given column names.
func New(columns []string) *Frame {
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range f.columns {
		f.index[c] = i
	}
	return f
}

// Columns returns the column names in order. The caller must not mutate the
// returned slice.
func (f *Frame) Columns() []string {
	return f.columns
}

// NumRows returns the number of data rows.
func (f *Frame) NumRows() int {
	return len(f.rows)
}

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int {
	return len(f.columns)
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// ColumnIndex returns the position of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// AppendRow adds a row, padding short rows with nil and dropping extra cells.
func (f *Frame) AppendRow(row []any) {
	cells := make([]any, len(f.columns))
	for i := range cells {
		if i < len(row) {
			cells[i] = row[i]
		}
	}
	f.rows = append(f.rows, cells)
}

// Row returns the cells of row i. The caller must not mutate the result.
func (f *Frame) Row(i int) []any {
	return f.rows[i]
}

// Value returns the cell at row i in the named column, or nil when the
// column does not exist.
func (f *Frame) Value(i int, column string) any {
	idx, ok := f.index[column]
	if !ok {
		return nil
	}
	return f.rows[i][idx]
}

// SetValue sets the cell at row i in the named column. Unknown columns are
// ignored.
func (f *Frame) SetValue(i int, column string, v any) {
	if idx, ok := f.index[column]; ok {
		f.rows[i][idx] = v
	}
}

// Column returns a copy of the named column's cells, or nil if absent.
func (f *Frame) Column(name string) []any {
	idx, ok := f.index[name]
	if !ok {
		return nil
	}
	out := make([]any, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[idx]
	}
	return out
}

// InsertColumn adds a column at position pos filled per-row by fill.
func (f *Frame) InsertColumn(pos int, name string, fill func(row int) any) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(f.columns) {
		pos = len(f.columns)
	}
	f.columns = append(f.columns[:pos], append([]string{name}, f.columns[pos:]...)...)
	for i := range f.rows {
		row := f.rows[i]
		cell := fill(i)
		f.rows[i] = append(row[:pos], append([]any{cell}, row[pos:]...)...)
	}
	f.reindex()
}

// AppendColumn adds a column at the end filled per-row by fill.
func (f *Frame) AppendColumn(name string, fill func(row int) any) {
	f.InsertColumn(len(f.columns), name, fill)
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.columns))
	for i, c := range f.columns {
		f.index[c] = i
	}
}

// Filter returns a new Frame containing only rows for which keep is true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	out := New(f.columns)
	for i := range f.rows {
		if keep(i) {
			out.AppendRow(f.rows[i])
		}
	}
	return out
}

// Copy returns a deep copy of the frame (cells are copied shallowly; cell
// values themselves are treated as immutable scalars).
func (f *Frame) Copy() *Frame {
	out := New(f.columns)
	for _, row := range f.rows {
		out.AppendRow(row)
	}
	return out
}

// =============================================================================
// MISSING VALUES AND AGGREGATES
// =============================================================================

// IsMissing reports whether a cell value counts as missing: nil, a NaN
// float, or an empty/whitespace-only string.
func IsMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// NullCount returns the number of missing cells in the named column.
func (f *Frame) NullCount(column string) int {
	idx, ok := f.index[column]
	if !ok {
		return 0
	}
	n := 0
	for _, row := range f.rows {
		if IsMissing(row[idx]) {
			n++
		}
	}
	return n
}

// SumColumn sums the named column using the supplied conversion, skipping
// cells the conversion maps to NaN. Mirrors a NaN-skipping columnar sum so
// that totals stay comparable no matter how dirty the source cells are.
func (f *Frame) SumColumn(column string, toFloat func(any) float64) float64 {
	idx, ok := f.index[column]
	if !ok {
		return 0
	}
	var sum float64
	for _, row := range f.rows {
		v := toFloat(row[idx])
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// =============================================================================
// ROW KEYS
// =============================================================================

// RowKey builds a composite string key from the given columns of row i,
// used for duplicate detection and group-by operations. Missing columns
// contribute an empty segment.
func (f *Frame) RowKey(i int, columns []string) string {
	parts := make([]string, len(columns))
	for j, col := range columns {
		parts[j] = CellString(f.Value(i, col))
	}
	return strings.Join(parts, "\x1f")
}

// FullRowKey builds a composite key across every column of row i.
func (f *Frame) FullRowKey(i int) string {
	return f.RowKey(i, f.columns)
}

// CellString renders a cell for keys and messages. Missing cells render as
// the empty string; floats drop a trailing ".000000"-style mantissa.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// RowMap renders row i as a column->string map, used for diagnostic samples
// in validation details.
func (f *Frame) RowMap(i int) map[string]string {
	out := make(map[string]string, len(f.columns))
	for j, col := range f.columns {
		out[col] = CellString(f.rows[i][j])
	}
	return out
}

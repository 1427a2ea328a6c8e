// =============================================================================
// depivot - Wide-to-Long Transform
// =============================================================================
//
// The melt operation: identifier columns repeat on every output row while
// each wide value column contributes one (variable, value) pair. Output rows
// are blocked by value column, so all rows for the first value column come
// before any row of the second.
//
// =============================================================================

package depivot

import (
	"strings"

	"github.com/depivot-tools/depivot/internal/frame"
)

// MeltOptions are the knobs of one melt call.
type MeltOptions struct {
	IDVars       []string
	ValueVars    []string
	VarName      string
	ValueName    string
	IncludeCols  []string
	ExcludeCols  []string
	DropNA       bool
	IndexColName string
}

// ResolveColumns determines the final identifier and value columns for a
// frame. When no value columns are configured, every non-identifier column
// that survives the include/exclude filters is unpivoted, in the frame's
// column order.
func ResolveColumns(df *frame.Frame, idVars, valueVars, includeCols, excludeCols []string) ([]string, []string, error) {
	available := make(map[string]bool, df.NumColumns())
	for _, col := range df.Columns() {
		available[col] = true
	}
	if len(includeCols) > 0 {
		included := make(map[string]bool, len(includeCols))
		for _, col := range includeCols {
			included[col] = true
		}
		for col := range available {
			if !included[col] {
				delete(available, col)
			}
		}
	}
	for _, col := range excludeCols {
		delete(available, col)
	}

	var finalValueVars []string
	if len(valueVars) == 0 {
		idSet := make(map[string]bool, len(idVars))
		for _, col := range idVars {
			idSet[col] = true
		}
		for _, col := range df.Columns() {
			if available[col] && !idSet[col] {
				finalValueVars = append(finalValueVars, col)
			}
		}
	} else {
		for _, col := range valueVars {
			if available[col] {
				finalValueVars = append(finalValueVars, col)
			}
		}
	}

	if len(finalValueVars) == 0 {
		return nil, nil, columnErrorf("no value columns to unpivot, check your column specifications")
	}

	if err := ValidateIDValueVars(idVars, finalValueVars); err != nil {
		return nil, nil, err
	}
	return idVars, finalValueVars, nil
}

// ValidateColumnsExist returns a ColumnError naming every missing column.
func ValidateColumnsExist(df *frame.Frame, columns []string, sheetName string) error {
	var missing []string
	for _, col := range columns {
		if !df.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sheetInfo := ""
	if sheetName != "" {
		sheetInfo = " in sheet '" + sheetName + "'"
	}
	return columnErrorf("column(s) not found%s: %s. Available columns: %s",
		sheetInfo, strings.Join(missing, ", "), strings.Join(df.Columns(), ", "))
}

// ValidateIDValueVars rejects columns configured as both identifier and
// value.
func ValidateIDValueVars(idVars, valueVars []string) error {
	valueSet := make(map[string]bool, len(valueVars))
	for _, col := range valueVars {
		valueSet[col] = true
	}
	var overlap []string
	for _, col := range idVars {
		if valueSet[col] {
			overlap = append(overlap, col)
		}
	}
	if len(overlap) > 0 {
		return columnErrorf("columns cannot be both id_vars and value_vars: %s",
			strings.Join(overlap, ", "))
	}
	return nil
}

// Melt unpivots a frame. With no identifier columns configured, a synthetic
// 1-based index column is prepended first so every long row stays traceable
// to its source row.
func Melt(df *frame.Frame, opts MeltOptions) (*frame.Frame, error) {
	idVars := opts.IDVars
	if len(idVars) == 0 {
		df = df.Copy()
		df.InsertColumn(0, opts.IndexColName, func(row int) any { return row + 1 })
		idVars = []string{opts.IndexColName}
	}

	finalIDVars, finalValueVars, err := ResolveColumns(
		df, idVars, opts.ValueVars, opts.IncludeCols, opts.ExcludeCols)
	if err != nil {
		return nil, err
	}

	outColumns := make([]string, 0, len(finalIDVars)+2)
	outColumns = append(outColumns, finalIDVars...)
	outColumns = append(outColumns, opts.VarName, opts.ValueName)
	long := frame.New(outColumns)

	for _, valueVar := range finalValueVars {
		for i := 0; i < df.NumRows(); i++ {
			row := make([]any, 0, len(outColumns))
			for _, col := range finalIDVars {
				row = append(row, df.Value(i, col))
			}
			row = append(row, valueVar, df.Value(i, valueVar))
			long.AppendRow(row)
		}
	}

	if opts.DropNA {
		long = long.Filter(func(row int) bool {
			for _, v := range long.Row(row) {
				if frame.IsMissing(v) {
					return false
				}
			}
			return true
		})
	}
	return long, nil
}

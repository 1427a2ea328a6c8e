// =============================================================================
// depivot - Workbook Reading
// =============================================================================
//
// Reads Excel sheets into frames and resolves which sheets a run should
// process. Cells arrive as strings from the workbook layer; empty cells
// become nil so missing-value accounting works uniformly downstream.
//
// =============================================================================

package depivot

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/frame"
)

// SelectSheets resolves the sheet list for one workbook. An explicit
// sheetNames list must exist in full; otherwise skipSheets is subtracted
// from the workbook's sheets. An empty final selection is an error.
func SelectSheets(f *excelize.File, sheetNames, skipSheets []string) ([]string, error) {
	allSheets := f.GetSheetList()

	var selected []string
	switch {
	case len(sheetNames) > 0:
		var missing []string
		for _, s := range sheetNames {
			if !containsString(allSheets, s) {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			return nil, sheetErrorf("sheet(s) not found: %s. Available sheets: %s",
				strings.Join(missing, ", "), strings.Join(allSheets, ", "))
		}
		selected = sheetNames
	case len(skipSheets) > 0:
		for _, s := range allSheets {
			if !containsString(skipSheets, s) {
				selected = append(selected, s)
			}
		}
	default:
		selected = allSheets
	}

	if len(selected) == 0 {
		return nil, sheetErrorf("no sheets to process after filtering")
	}
	return selected, nil
}

// ReadSheet loads one sheet into a frame. headerRow is 0-indexed; rows above
// it are ignored. Blank header cells get positional names, and duplicate
// header names get a numeric suffix so column lookup stays unambiguous.
func ReadSheet(f *excelize.File, sheetName string, headerRow int) (*frame.Frame, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet '%s': %w", sheetName, err)
	}
	if headerRow >= len(rows) {
		return nil, sheetErrorf("header row %d is beyond sheet '%s' (%d rows)",
			headerRow, sheetName, len(rows))
	}

	header := buildHeader(rows[headerRow])
	df := frame.New(header)

	for _, raw := range rows[headerRow+1:] {
		row := make([]any, len(header))
		for i := range header {
			if i < len(raw) && strings.TrimSpace(raw[i]) != "" {
				row[i] = raw[i]
			}
		}
		df.AppendRow(row)
	}
	return df, nil
}

func buildHeader(raw []string) []string {
	seen := make(map[string]int)
	header := make([]string, len(raw))
	for i, cell := range raw {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		header[i] = name
	}
	return header
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

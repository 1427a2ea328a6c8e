// =============================================================================
// depivot - Output Workbook Writer
// =============================================================================
//
// Writes long frames and the reconciliation report into an output workbook.
// NaN values become empty cells because Excel has no NaN literal.
//
// =============================================================================

package depivot

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/frame"
)

// OutputSheet names a frame destined for the output workbook.
type OutputSheet struct {
	Name  string
	Frame *frame.Frame
}

// WriteWorkbook writes the given sheets to outputFile in order. The first
// sheet replaces the workbook's default sheet so no empty "Sheet1" survives.
func WriteWorkbook(outputFile string, sheets []OutputSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet '%s': %w", sheet.Name, err)
			}
		} else {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return fmt.Errorf("failed to create sheet '%s': %w", sheet.Name, err)
			}
		}
		if err := writeFrame(f, sheet.Name, sheet.Frame); err != nil {
			return fmt.Errorf("failed to write sheet '%s': %w", sheet.Name, err)
		}
	}

	if err := f.SaveAs(outputFile); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", outputFile, err)
	}
	return nil
}

func writeFrame(f *excelize.File, sheetName string, df *frame.Frame) error {
	header := make([]any, df.NumColumns())
	for i, col := range df.Columns() {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for i := 0; i < df.NumRows(); i++ {
		row := make([]any, df.NumColumns())
		for j, v := range df.Row(i) {
			row[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// cellValue maps frame values to writable cell values.
func cellValue(v any) any {
	if x, ok := v.(float64); ok && math.IsNaN(x) {
		return nil
	}
	return v
}

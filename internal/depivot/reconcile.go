// =============================================================================
// depivot - Reconciliation Engine
// =============================================================================
//
// Builds the reconciliation report proving the transform preserved value
// totals. Three levels:
//
//   per-row:     one line per source row, its identifier values carried over
//   SHEET_TOTAL: one line per sheet
//   GRAND_TOTAL: one line across all sheets, summed from the sheet totals
//
// Both sides of every comparison go through the same numeric normalizer, so
// a match failure always means real value drift, never formatting noise.
//
// =============================================================================

package depivot

import (
	"math"

	"github.com/depivot-tools/depivot/internal/frame"
	"github.com/depivot-tools/depivot/internal/numeric"
)

// matchTolerance is the absolute difference below which totals count as equal.
const matchTolerance = 0.01

const (
	categorySheetTotal = "SHEET_TOTAL"
	categoryGrandTotal = "GRAND_TOTAL"
	sheetAll           = "ALL_SHEETS"

	matchOK       = "OK"
	matchMismatch = "MISMATCH"
)

// ReconRow is one line of the reconciliation report.
type ReconRow struct {
	SourceFile string
	Sheet      string

	// IDValues align with the report's IDVars; empty on total lines.
	IDValues []any

	// Category is empty for per-row lines, SHEET_TOTAL or GRAND_TOTAL
	// otherwise.
	Category string

	SourceTotal    float64
	ProcessedTotal float64
	Difference     float64
	Match          string
}

// ReconReport is the full reconciliation result for one input file.
type ReconReport struct {
	IDVars []string
	Rows   []ReconRow
}

// SheetRecon pairs one sheet's source frame with its long result.
type SheetRecon struct {
	SheetName string
	Source    *frame.Frame
	Processed *frame.Frame
	ValueVars []string
}

// BuildReconciliation compares source and processed totals for every sheet
// of one input file.
//
// Per-row source totals accumulate normalized values directly, so a cell
// that fails to normalize poisons its row total to NaN and the row reports
// MISMATCH. Sheet and grand totals skip unparseable cells on both sides,
// matching how the long side's sums behave.
func BuildReconciliation(inputFile string, sheets []SheetRecon, idVars []string, valueName string) *ReconReport {
	report := &ReconReport{IDVars: idVars}

	var grandSource, grandProcessed float64
	for _, sheet := range sheets {
		if len(idVars) > 0 {
			report.Rows = append(report.Rows, perRowLines(inputFile, sheet, idVars, valueName)...)
		}

		sourceTotal := 0.0
		for _, col := range sheet.ValueVars {
			if sheet.Source.HasColumn(col) {
				sourceTotal += sheet.Source.SumColumn(col, numeric.Normalize)
			}
		}
		processedTotal := sheet.Processed.SumColumn(valueName, numeric.Normalize)

		report.Rows = append(report.Rows, totalLine(
			inputFile, sheet.SheetName, categorySheetTotal, sourceTotal, processedTotal))

		grandSource += sourceTotal
		grandProcessed += processedTotal
	}

	report.Rows = append(report.Rows, totalLine(
		inputFile, sheetAll, categoryGrandTotal, grandSource, grandProcessed))
	return report
}

func perRowLines(inputFile string, sheet SheetRecon, idVars []string, valueName string) []ReconRow {
	// Group the long rows by identifier key once instead of scanning the
	// whole long frame per source row.
	processedByKey := make(map[string]float64)
	for i := 0; i < sheet.Processed.NumRows(); i++ {
		key := sheet.Processed.RowKey(i, idVars)
		v := numeric.Normalize(sheet.Processed.Value(i, valueName))
		if !math.IsNaN(v) {
			processedByKey[key] += v
		} else if _, ok := processedByKey[key]; !ok {
			processedByKey[key] = 0
		}
	}

	rows := make([]ReconRow, 0, sheet.Source.NumRows())
	for i := 0; i < sheet.Source.NumRows(); i++ {
		idValues := make([]any, len(idVars))
		for j, col := range idVars {
			if sheet.Source.HasColumn(col) {
				idValues[j] = sheet.Source.Value(i, col)
			}
		}

		sourceTotal := 0.0
		for _, col := range sheet.ValueVars {
			if sheet.Source.HasColumn(col) {
				sourceTotal += numeric.Normalize(sheet.Source.Value(i, col))
			}
		}

		processedTotal := processedByKey[sheet.Source.RowKey(i, idVars)]
		diff := processedTotal - sourceTotal

		rows = append(rows, ReconRow{
			SourceFile:     inputFile,
			Sheet:          sheet.SheetName,
			IDValues:       idValues,
			SourceTotal:    sourceTotal,
			ProcessedTotal: processedTotal,
			Difference:     diff,
			Match:          matchLabel(diff),
		})
	}
	return rows
}

func totalLine(inputFile, sheetName, category string, source, processed float64) ReconRow {
	diff := processed - source
	return ReconRow{
		SourceFile:     inputFile,
		Sheet:          sheetName,
		Category:       category,
		SourceTotal:    source,
		ProcessedTotal: processed,
		Difference:     diff,
		Match:          matchLabel(diff),
	}
}

// matchLabel treats NaN differences as mismatches: a poisoned total can
// never assert equality.
func matchLabel(diff float64) string {
	if math.Abs(diff) < matchTolerance {
		return matchOK
	}
	return matchMismatch
}

// HasMismatches reports whether any line failed to reconcile.
func (r *ReconReport) HasMismatches() bool {
	for _, row := range r.Rows {
		if row.Match == matchMismatch {
			return true
		}
	}
	return false
}

// Mismatches returns the failing lines.
func (r *ReconReport) Mismatches() []ReconRow {
	var out []ReconRow
	for _, row := range r.Rows {
		if row.Match == matchMismatch {
			out = append(out, row)
		}
	}
	return out
}

// ToFrame renders the report as a frame for the output workbook's
// Validation sheet.
func (r *ReconReport) ToFrame() *frame.Frame {
	columns := []string{"SourceFile", "Sheet"}
	columns = append(columns, r.IDVars...)
	columns = append(columns, "Category", "Source_Total", "Processed_Total", "Difference", "Match")

	df := frame.New(columns)
	for _, row := range r.Rows {
		out := make([]any, 0, len(columns))
		out = append(out, row.SourceFile, row.Sheet)
		for j := range r.IDVars {
			if j < len(row.IDValues) {
				out = append(out, row.IDValues[j])
			} else {
				out = append(out, nil)
			}
		}
		out = append(out, row.Category, row.SourceTotal, row.ProcessedTotal, row.Difference, row.Match)
		df.AppendRow(out)
	}
	return df
}

// Merge appends another report's rows, keeping this report's identifier
// columns. Used by multi-file runs to emit one combined Validation sheet.
func (r *ReconReport) Merge(other *ReconReport) {
	r.Rows = append(r.Rows, other.Rows...)
}

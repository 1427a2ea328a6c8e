package depivot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depivot-tools/depivot/internal/frame"
)

func reconSheet(t *testing.T) SheetRecon {
	t.Helper()
	source := frame.New([]string{"Site", "Jan", "Feb"})
	source.AppendRow([]any{"Alpha", 100.0, 200.0})
	source.AppendRow([]any{"Beta", 10.0, 20.0})

	long, err := Melt(source, MeltOptions{
		IDVars:    []string{"Site"},
		VarName:   "variable",
		ValueName: "value",
	})
	require.NoError(t, err)

	return SheetRecon{
		SheetName: "Data",
		Source:    source,
		Processed: long,
		ValueVars: []string{"Jan", "Feb"},
	}
}

func TestReconciliationCleanRun(t *testing.T) {
	report := BuildReconciliation("in.xlsx", []SheetRecon{reconSheet(t)}, []string{"Site"}, "value")

	// 2 per-row lines + SHEET_TOTAL + GRAND_TOTAL.
	require.Len(t, report.Rows, 4)
	assert.False(t, report.HasMismatches())
	for _, row := range report.Rows {
		assert.Equal(t, "OK", row.Match)
	}

	sheetTotal := report.Rows[2]
	assert.Equal(t, "SHEET_TOTAL", sheetTotal.Category)
	assert.InDelta(t, 330.0, sheetTotal.SourceTotal, 1e-9)

	grand := report.Rows[3]
	assert.Equal(t, "GRAND_TOTAL", grand.Category)
	assert.Equal(t, "ALL_SHEETS", grand.Sheet)
	assert.InDelta(t, 330.0, grand.ProcessedTotal, 1e-9)
}

func TestReconciliationDetectsDrift(t *testing.T) {
	sheet := reconSheet(t)
	sheet.Processed.SetValue(0, "value", 150.0)

	report := BuildReconciliation("in.xlsx", []SheetRecon{sheet}, []string{"Site"}, "value")
	require.True(t, report.HasMismatches())

	mismatches := report.Mismatches()
	// The Alpha row, its sheet total, and the grand total all drift by 50.
	require.Len(t, mismatches, 3)
	assert.Equal(t, []any{"Alpha"}, mismatches[0].IDValues)
	assert.InDelta(t, 50.0, mismatches[0].Difference, 1e-9)
}

func TestReconciliationUnparseableCellPoisonsRow(t *testing.T) {
	sheet := reconSheet(t)
	sheet.Source.SetValue(1, "Jan", "n/a")
	sheet.Processed.SetValue(1, "value", "n/a")

	report := BuildReconciliation("in.xlsx", []SheetRecon{sheet}, []string{"Site"}, "value")

	betaRow := report.Rows[1]
	assert.True(t, math.IsNaN(betaRow.SourceTotal))
	assert.Equal(t, "MISMATCH", betaRow.Match)

	// Sheet totals skip the bad cell on both sides and still reconcile.
	sheetTotal := report.Rows[2]
	assert.Equal(t, "OK", sheetTotal.Match)
	assert.InDelta(t, 320.0, sheetTotal.SourceTotal, 1e-9)
}

func TestGrandTotalEqualsSumOfSheetTotals(t *testing.T) {
	first := reconSheet(t)
	second := reconSheet(t)
	second.SheetName = "More"
	// Drift the second sheet's source so the two sides disagree; the grand
	// total must still be the sum of the sheet-total rows, not a recompute.
	second.Source.SetValue(0, "Jan", 999.5)

	report := BuildReconciliation("in.xlsx",
		[]SheetRecon{first, second}, []string{"Site"}, "value")

	var sumSource, sumProcessed float64
	var grand *ReconRow
	for i, row := range report.Rows {
		switch row.Category {
		case "SHEET_TOTAL":
			sumSource += row.SourceTotal
			sumProcessed += row.ProcessedTotal
		case "GRAND_TOTAL":
			grand = &report.Rows[i]
		}
	}
	require.NotNil(t, grand)

	// Exact equality, not tolerance-bounded.
	assert.Equal(t, sumSource, grand.SourceTotal)
	assert.Equal(t, sumProcessed, grand.ProcessedTotal)
	assert.Equal(t, "MISMATCH", grand.Match)
}

func TestReconciliationWithoutIDVars(t *testing.T) {
	report := BuildReconciliation("in.xlsx", []SheetRecon{reconSheet(t)}, nil, "value")

	// Totals only: SHEET_TOTAL + GRAND_TOTAL.
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "SHEET_TOTAL", report.Rows[0].Category)
	assert.Equal(t, "GRAND_TOTAL", report.Rows[1].Category)
}

func TestReconReportToFrame(t *testing.T) {
	report := BuildReconciliation("in.xlsx", []SheetRecon{reconSheet(t)}, []string{"Site"}, "value")
	df := report.ToFrame()

	assert.Equal(t, []string{
		"SourceFile", "Sheet", "Site", "Category",
		"Source_Total", "Processed_Total", "Difference", "Match",
	}, df.Columns())
	require.Equal(t, 4, df.NumRows())
	assert.Equal(t, "Alpha", df.Value(0, "Site"))
	assert.Equal(t, "in.xlsx", df.Value(0, "SourceFile"))
	assert.Nil(t, df.Value(3, "Site"))
}

func TestReconReportMerge(t *testing.T) {
	a := BuildReconciliation("a.xlsx", []SheetRecon{reconSheet(t)}, []string{"Site"}, "value")
	b := BuildReconciliation("b.xlsx", []SheetRecon{reconSheet(t)}, []string{"Site"}, "value")

	a.Merge(b)
	assert.Len(t, a.Rows, 8)
	assert.Equal(t, "b.xlsx", a.Rows[7].SourceFile)
}

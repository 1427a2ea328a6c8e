package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/frame"
)

// testWorkbook builds an in-memory workbook with the given sheets, each
// carrying the same header row.
func testWorkbook(t *testing.T, sheets []string, header []string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	for i, name := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		if len(header) > 0 {
			row := make([]any, len(header))
			for j, h := range header {
				row[j] = h
			}
			require.NoError(t, f.SetSheetRow(name, "A1", &row))
		}
	}
	return f
}

func fileValidator(checks ...config.CheckConfig) *Validator {
	return NewValidator(&config.TemplateConfig{FileStructure: checks}, nil)
}

func sheetValidator(checks ...config.CheckConfig) *Validator {
	return NewValidator(&config.TemplateConfig{SheetTemplate: checks}, nil)
}

func frameValidator(checks ...config.CheckConfig) *Validator {
	return NewValidator(&config.TemplateConfig{DataframeTemplate: checks}, nil)
}

func TestMissingSheetAlwaysRaises(t *testing.T) {
	f := testWorkbook(t, []string{"Alpha"}, nil)
	v := fileValidator(config.CheckConfig{
		Check:    "expected_sheets",
		Severity: "warning",
		Params:   map[string]any{"required_sheets": []any{"Alpha", "Beta"}},
	})

	err := v.ValidateFileStructure(f, "book.xlsx")
	require.Error(t, err)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "Beta")
}

func TestExtraSheetsFollowSeverity(t *testing.T) {
	f := testWorkbook(t, []string{"Alpha", "Scratch"}, nil)
	params := map[string]any{
		"required_sheets":    []any{"Alpha"},
		"allow_extra_sheets": false,
	}

	v := fileValidator(config.CheckConfig{Check: "expected_sheets", Severity: "warning", Params: params})
	assert.NoError(t, v.ValidateFileStructure(f, "book.xlsx"))

	v = fileValidator(config.CheckConfig{Check: "expected_sheets", Severity: "error", Params: params})
	err := v.ValidateFileStructure(f, "book.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Scratch")

	// Extra sheets are allowed by default.
	v = fileValidator(config.CheckConfig{
		Check:    "expected_sheets",
		Severity: "error",
		Params:   map[string]any{"required_sheets": []any{"Alpha"}},
	})
	assert.NoError(t, v.ValidateFileStructure(f, "book.xlsx"))
}

func TestSheetCountBounds(t *testing.T) {
	f := testWorkbook(t, []string{"One", "Two"}, nil)

	// Minimum violations raise regardless of severity.
	v := fileValidator(config.CheckConfig{
		Check:    "sheet_count",
		Severity: "warning",
		Params:   map[string]any{"min_sheets": 3},
	})
	assert.Error(t, v.ValidateFileStructure(f, "book.xlsx"))

	// Maximum violations follow severity.
	v = fileValidator(config.CheckConfig{
		Check:    "sheet_count",
		Severity: "warning",
		Params:   map[string]any{"max_sheets": 1},
	})
	assert.NoError(t, v.ValidateFileStructure(f, "book.xlsx"))

	v = fileValidator(config.CheckConfig{
		Check:    "sheet_count",
		Severity: "error",
		Params:   map[string]any{"max_sheets": 1},
	})
	assert.Error(t, v.ValidateFileStructure(f, "book.xlsx"))
}

func TestHeaderRowMissingColumnsAlwaysRaise(t *testing.T) {
	f := testWorkbook(t, []string{"Data"}, []string{"Site", "Category", "Jan"})

	v := sheetValidator(config.CheckConfig{
		Check:    "header_row",
		Severity: "warning",
		Params:   map[string]any{"expected_columns": []any{"Site", "Category", "Jan"}},
	})
	assert.NoError(t, v.ValidateSheetTemplate(f, "Data"))

	v = sheetValidator(config.CheckConfig{
		Check:    "header_row",
		Severity: "warning",
		Params:   map[string]any{"expected_columns": []any{"Site", "FiscalYear"}},
	})
	err := v.ValidateSheetTemplate(f, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FiscalYear")

	// Sheet existence belongs to phase 1; absent sheets are skipped here.
	assert.NoError(t, v.ValidateSheetTemplate(f, "NoSuchSheet"))
}

func TestHeaderRowExactOrder(t *testing.T) {
	f := testWorkbook(t, []string{"Data"}, []string{"Category", "Site", "Jan"})

	v := sheetValidator(config.CheckConfig{
		Check:    "header_row",
		Severity: "warning",
		Params: map[string]any{
			"expected_columns": []any{"Site", "Category", "Jan"},
			"exact_order":      true,
		},
	})
	err := v.ValidateSheetTemplate(f, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order mismatch")
}

func TestHeaderRowExtraColumns(t *testing.T) {
	f := testWorkbook(t, []string{"Data"}, []string{"Site", "Jan", "Notes"})
	params := map[string]any{
		"expected_columns":    []any{"Site", "Jan"},
		"allow_extra_columns": false,
	}

	v := sheetValidator(config.CheckConfig{Check: "header_row", Severity: "warning", Params: params})
	assert.NoError(t, v.ValidateSheetTemplate(f, "Data"))

	v = sheetValidator(config.CheckConfig{Check: "header_row", Severity: "error", Params: params})
	err := v.ValidateSheetTemplate(f, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Notes")
}

func TestMergedCells(t *testing.T) {
	f := testWorkbook(t, []string{"Data"}, []string{"Site", "Jan"})
	require.NoError(t, f.MergeCell("Data", "A2", "B2"))

	v := sheetValidator(config.CheckConfig{
		Check:    "merged_cells",
		Severity: "error",
	})
	err := v.ValidateSheetTemplate(f, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2:B2")

	v = sheetValidator(config.CheckConfig{
		Check:    "merged_cells",
		Severity: "error",
		Params:   map[string]any{"allowed": true},
	})
	assert.NoError(t, v.ValidateSheetTemplate(f, "Data"))

	v = sheetValidator(config.CheckConfig{
		Check:    "merged_cells",
		Severity: "error",
		Params:   map[string]any{"allowed_ranges": []any{"A2:B2"}},
	})
	assert.NoError(t, v.ValidateSheetTemplate(f, "Data"))
}

func TestFrameRequiredColumnsAlwaysRaise(t *testing.T) {
	df := frame.New([]string{"Site", "Jan"})

	v := frameValidator(config.CheckConfig{
		Check:    "required_columns",
		Severity: "warning",
		Params:   map[string]any{"columns": []any{"Site", "Category"}},
	})
	err := v.ValidateFrameTemplate(df, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Category")
}

func TestFrameColumnOrder(t *testing.T) {
	df := frame.New([]string{"Site", "Category", "Jan", "Feb"})

	// Strict mode demands the full column list in order.
	v := frameValidator(config.CheckConfig{
		Check:    "column_order",
		Severity: "error",
		Params: map[string]any{
			"expected_order": []any{"Site", "Category"},
			"strict":         true,
		},
	})
	assert.Error(t, v.ValidateFrameTemplate(df, "Data"))

	v = frameValidator(config.CheckConfig{
		Check:    "column_order",
		Severity: "error",
		Params: map[string]any{
			"expected_order": []any{"Site", "Category", "Jan", "Feb"},
			"strict":         true,
		},
	})
	assert.NoError(t, v.ValidateFrameTemplate(df, "Data"))

	// Relaxed mode checks relative order of the named columns only.
	v = frameValidator(config.CheckConfig{
		Check:    "column_order",
		Severity: "error",
		Params:   map[string]any{"expected_order": []any{"Site", "Jan"}},
	})
	assert.NoError(t, v.ValidateFrameTemplate(df, "Data"))

	v = frameValidator(config.CheckConfig{
		Check:    "column_order",
		Severity: "error",
		Params:   map[string]any{"expected_order": []any{"Jan", "Site"}},
	})
	assert.Error(t, v.ValidateFrameTemplate(df, "Data"))
}

func TestStopOnErrorOffCollectsEveryFailure(t *testing.T) {
	df := frame.New([]string{"Site", "Jan"})
	stop := false

	v := NewValidator(&config.TemplateConfig{
		DataframeTemplate: []config.CheckConfig{
			{
				Check:  "required_columns",
				Params: map[string]any{"columns": []any{"Category"}},
			},
			{
				Check:    "column_order",
				Severity: "error",
				Params:   map[string]any{"expected_order": []any{"Jan", "Site"}},
			},
		},
		Settings: config.TemplateSettings{StopOnError: &stop},
	}, nil)

	err := v.ValidateFrameTemplate(df, "Data")
	require.Error(t, err)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "Category")
	assert.Contains(t, te.Message, "order mismatch")
}

func TestValidatorDisabled(t *testing.T) {
	enabled := false
	v := NewValidator(&config.TemplateConfig{
		Enabled: &enabled,
		FileStructure: []config.CheckConfig{{
			Check:  "sheet_count",
			Params: map[string]any{"min_sheets": 99},
		}},
	}, nil)
	f := testWorkbook(t, []string{"Only"}, nil)
	assert.NoError(t, v.ValidateFileStructure(f, "book.xlsx"))
	assert.NoError(t, NewValidator(nil, nil).ValidateFileStructure(f, "book.xlsx"))
}

// =============================================================================
// depivot - Excel Template Validation
// =============================================================================
//
// Validates workbooks against a configured template in three phases:
//
//   Phase 1 - file structure: sheet names and counts, checked from the
//             workbook index without touching cell data.
//   Phase 2 - sheet template: header row, merged cells, and cell formats,
//             checked per sheet before the data is loaded into a frame.
//   Phase 3 - frame template: column order and required columns, checked
//             after the sheet has been read.
//
// Structural failures (missing sheets, missing header columns, order
// mismatches under exact_order, missing required columns) always raise a
// TemplateError because downstream processing cannot proceed without them.
// Cosmetic findings (extra sheets, extra columns, merged cells, format
// issues) raise only at error severity and are logged as warnings otherwise.
//
// With stop_on_error off, a phase runs every configured check and raises one
// TemplateError carrying all the failures instead of stopping at the first.
//
// =============================================================================

package template

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/frame"
	"github.com/depivot-tools/depivot/internal/numeric"
)

// TemplateError reports a workbook that does not match the configured
// template.
type TemplateError struct {
	Message string
}

func (e *TemplateError) Error() string { return e.Message }

func templateErrorf(format string, args ...any) *TemplateError {
	return &TemplateError{Message: fmt.Sprintf(format, args...)}
}

// Validator runs configured template checks against Excel workbooks.
type Validator struct {
	enabled     bool
	verbose     bool
	stopOnError bool

	fileChecks  []config.CheckConfig
	sheetChecks []config.CheckConfig
	frameChecks []config.CheckConfig

	log *slog.Logger
}

// NewValidator builds a validator from a template config block. A nil config
// yields a disabled validator whose phases are no-ops.
func NewValidator(cfg *config.TemplateConfig, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}

	v := &Validator{enabled: true, stopOnError: true, log: log}
	if cfg == nil {
		v.enabled = false
		return v
	}
	if cfg.Enabled != nil {
		v.enabled = *cfg.Enabled
	}
	if cfg.Settings.StopOnError != nil {
		v.stopOnError = *cfg.Settings.StopOnError
	}
	v.verbose = cfg.Settings.Verbose
	v.fileChecks = cfg.FileStructure
	v.sheetChecks = cfg.SheetTemplate
	v.frameChecks = cfg.DataframeTemplate
	return v
}

// =============================================================================
// PHASE 1 - FILE STRUCTURE
// =============================================================================

// ValidateFileStructure checks workbook-level structure against the
// configured file_structure checks.
func (v *Validator) ValidateFileStructure(f *excelize.File, inputFile string) error {
	if !v.enabled {
		return nil
	}

	sheets := f.GetSheetList()

	var failures []error
	for _, check := range v.fileChecks {
		if !check.IsEnabled() {
			continue
		}
		p := checkParams(check.Params)

		var err error
		switch check.Check {
		case "expected_sheets":
			err = v.checkExpectedSheets(sheets, check, p)
		case "sheet_count":
			err = v.checkSheetCount(sheets, check, p)
		default:
			v.log.Warn("unknown file structure check, skipping",
				"check", check.Check, "file", inputFile)
		}
		if err != nil {
			if v.stopOnError {
				return err
			}
			failures = append(failures, err)
		}
	}
	if v.verbose && len(failures) == 0 {
		v.log.Debug("file structure checks passed", "file", inputFile)
	}
	return combineFailures(failures)
}

func (v *Validator) checkExpectedSheets(found []string, check config.CheckConfig, p checkParams) error {
	required := p.stringSlice("required_sheets")
	allowExtra := p.boolVal("allow_extra_sheets", true)

	var missing []string
	for _, s := range required {
		if !contains(found, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		msg := messageOr(check, "Missing sheets: {sheets}")
		msg = strings.ReplaceAll(msg, "{sheets}", strings.Join(missing, ", "))
		return templateErrorf("%s\n  Expected: %s\n  Found: %s",
			msg, strings.Join(required, ", "), strings.Join(found, ", "))
	}

	if !allowExtra {
		var extra []string
		for _, s := range found {
			if !contains(required, s) {
				extra = append(extra, s)
			}
		}
		if len(extra) > 0 {
			msg := fmt.Sprintf("Extra sheets found: %s", strings.Join(extra, ", "))
			return v.raiseOrWarn(check, msg)
		}
	}
	return nil
}

func (v *Validator) checkSheetCount(found []string, check config.CheckConfig, p checkParams) error {
	minSheets := p.intVal("min_sheets", 1)
	maxSheets, hasMax := p.intOpt("max_sheets")
	count := len(found)

	if count < minSheets {
		msg := messageOr(check, "Sheet count too low: {count}")
		msg = strings.ReplaceAll(msg, "{count}", fmt.Sprintf("%d", count))
		return templateErrorf("%s (minimum: %d)", msg, minSheets)
	}

	if hasMax && count > maxSheets {
		msg := messageOr(check, "Sheet count too high: {count}")
		msg = strings.ReplaceAll(msg, "{count}", fmt.Sprintf("%d", count))
		return v.raiseOrWarn(check, fmt.Sprintf("%s (maximum: %d)", msg, maxSheets))
	}
	return nil
}

// =============================================================================
// PHASE 2 - SHEET TEMPLATE
// =============================================================================

// ValidateSheetTemplate checks one sheet's header row, merge regions, and
// cell formats. A sheet absent from the workbook is skipped silently; phase 1
// owns sheet existence.
func (v *Validator) ValidateSheetTemplate(f *excelize.File, sheetName string) error {
	if !v.enabled {
		return nil
	}
	if !contains(f.GetSheetList(), sheetName) {
		return nil
	}

	var failures []error
	for _, check := range v.sheetChecks {
		if !check.IsEnabled() {
			continue
		}
		p := checkParams(check.Params)

		var err error
		switch check.Check {
		case "header_row":
			err = v.checkHeaderRow(f, sheetName, check, p)
		case "merged_cells":
			err = v.checkMergedCells(f, sheetName, check, p)
		case "cell_formats":
			err = v.checkCellFormats(f, sheetName, check, p)
		default:
			v.log.Warn("unknown sheet template check, skipping",
				"check", check.Check, "sheet", sheetName)
		}
		if err != nil {
			if v.stopOnError {
				return err
			}
			failures = append(failures, err)
		}
	}
	if v.verbose && len(failures) == 0 {
		v.log.Debug("sheet template checks passed", "sheet", sheetName)
	}
	return combineFailures(failures)
}

func (v *Validator) checkHeaderRow(f *excelize.File, sheetName string, check config.CheckConfig, p checkParams) error {
	rowNum := p.intVal("row_number", 1)
	expected := p.stringSlice("expected_columns")
	exactOrder := p.boolVal("exact_order", false)
	allowExtra := p.boolVal("allow_extra_columns", true)

	actual, err := headerCells(f, sheetName, rowNum)
	if err != nil {
		return templateErrorf("cannot read header row %d of sheet '%s': %v", rowNum, sheetName, err)
	}

	var missing []string
	for _, col := range expected {
		if !contains(actual, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		msg := messageOr(check, "Header row mismatch in sheet '{sheet}'")
		msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
		return templateErrorf("%s\n  Missing columns: %s\n  Expected: %s\n  Found at row %d: %s",
			msg, strings.Join(missing, ", "), strings.Join(expected, ", "),
			rowNum, strings.Join(actual, ", "))
	}

	if !allowExtra {
		var extra []string
		for _, col := range actual {
			if !contains(expected, col) {
				extra = append(extra, col)
			}
		}
		if len(extra) > 0 {
			msg := fmt.Sprintf("Extra columns in sheet '%s': %s", sheetName, strings.Join(extra, ", "))
			if err := v.raiseOrWarn(check, msg); err != nil {
				return err
			}
		}
	}

	if exactOrder {
		var expectedInActual []string
		for _, col := range actual {
			if contains(expected, col) {
				expectedInActual = append(expectedInActual, col)
			}
		}
		if !equalSlices(expectedInActual, expected) {
			return templateErrorf("Column order mismatch in sheet '%s'\n  Expected order: %s\n  Found order: %s",
				sheetName, strings.Join(expected, ", "), strings.Join(expectedInActual, ", "))
		}
	}
	return nil
}

func (v *Validator) checkMergedCells(f *excelize.File, sheetName string, check config.CheckConfig, p checkParams) error {
	allowed := p.boolVal("allowed", false)
	allowedRanges := p.stringSlice("allowed_ranges")

	if allowed {
		return nil
	}

	merged, err := f.GetMergeCells(sheetName)
	if err != nil {
		return templateErrorf("cannot inspect merged cells in sheet '%s': %v", sheetName, err)
	}
	if len(merged) == 0 {
		return nil
	}

	var offending []string
	for _, mc := range merged {
		ref := mc.GetStartAxis() + ":" + mc.GetEndAxis()
		if len(allowedRanges) > 0 && contains(allowedRanges, ref) {
			continue
		}
		offending = append(offending, ref)
	}
	if len(offending) == 0 {
		return nil
	}

	rangesStr := strings.Join(head(offending, 5), ", ")
	if len(offending) > 5 {
		rangesStr += fmt.Sprintf(", ... and %d more", len(offending)-5)
	}

	msg := messageOr(check, "Merged cells detected in '{sheet}': {ranges}")
	msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
	msg = strings.ReplaceAll(msg, "{ranges}", rangesStr)
	return v.raiseOrWarn(check, msg)
}

func (v *Validator) checkCellFormats(f *excelize.File, sheetName string, check config.CheckConfig, p checkParams) error {
	checkTypes := p.boolVal("check_types", true)
	numericColumns := p.stringSlice("numeric_columns")
	maxRows := p.intVal("max_rows_to_check", 100)

	if !checkTypes || len(numericColumns) == 0 {
		return nil
	}

	headers, err := headerCells(f, sheetName, 1)
	if err != nil {
		return templateErrorf("cannot read header row of sheet '%s': %v", sheetName, err)
	}
	headerIdx := make(map[string]int, len(headers))
	for i, h := range headers {
		headerIdx[h] = i + 1
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return templateErrorf("cannot read rows of sheet '%s': %v", sheetName, err)
	}

	var issues []string
	for _, colName := range numericColumns {
		colIdx, ok := headerIdx[colName]
		if !ok {
			continue
		}

		limit := len(rows)
		if limit > maxRows+1 {
			limit = maxRows + 1
		}
		for rowIdx := 2; rowIdx <= limit; rowIdx++ {
			row := rows[rowIdx-1]
			if colIdx > len(row) {
				continue
			}
			raw := strings.TrimSpace(row[colIdx-1])
			if raw == "" {
				continue
			}
			if !numeric.LooksLikeNumber(raw) {
				cell, _ := excelize.CoordinatesToCellName(colIdx, rowIdx)
				if !v.cellHasNumericFormat(f, sheetName, cell) {
					issues = append(issues, fmt.Sprintf("%s (row %d)", colName, rowIdx))
					break
				}
			}
		}
	}

	if len(issues) > 0 {
		msg := messageOr(check, "Cell format issues in '{sheet}'")
		msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
		msg = fmt.Sprintf("%s\n  Non-numeric formats in: %s", msg, strings.Join(head(issues, 5), ", "))
		return v.raiseOrWarn(check, msg)
	}
	return nil
}

// cellHasNumericFormat reports whether the cell carries a number format
// capable of rendering digits. Format id 0 is General and id 49 is the text
// format; custom formats qualify when they contain a digit placeholder.
func (v *Validator) cellHasNumericFormat(f *excelize.File, sheetName, cell string) bool {
	styleID, err := f.GetCellStyle(sheetName, cell)
	if err != nil {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return strings.Contains(*style.CustomNumFmt, "0")
	}
	return style.NumFmt != 0 && style.NumFmt != 49
}

// =============================================================================
// PHASE 3 - FRAME TEMPLATE
// =============================================================================

// ValidateFrameTemplate checks the loaded frame's column set and order.
func (v *Validator) ValidateFrameTemplate(df *frame.Frame, sheetName string) error {
	if !v.enabled {
		return nil
	}

	var failures []error
	for _, check := range v.frameChecks {
		if !check.IsEnabled() {
			continue
		}
		p := checkParams(check.Params)

		var err error
		switch check.Check {
		case "column_order":
			err = v.checkColumnOrder(df, sheetName, check, p)
		case "required_columns":
			err = v.checkFrameRequiredColumns(df, sheetName, check, p)
		default:
			v.log.Warn("unknown frame template check, skipping",
				"check", check.Check, "sheet", sheetName)
		}
		if err != nil {
			if v.stopOnError {
				return err
			}
			failures = append(failures, err)
		}
	}
	if v.verbose && len(failures) == 0 {
		v.log.Debug("frame template checks passed", "sheet", sheetName)
	}
	return combineFailures(failures)
}

func (v *Validator) checkColumnOrder(df *frame.Frame, sheetName string, check config.CheckConfig, p checkParams) error {
	expectedOrder := p.stringSlice("expected_order")
	strict := p.boolVal("strict", false)
	actual := df.Columns()

	if strict {
		if !equalSlices(actual, expectedOrder) {
			msg := messageOr(check, "Column order mismatch in '{sheet}'")
			msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
			msg = fmt.Sprintf("%s\n  Expected: %s\n  Found: %s",
				msg, strings.Join(expectedOrder, ", "), strings.Join(actual, ", "))
			return v.raiseOrWarn(check, msg)
		}
		return nil
	}

	// Relaxed mode requires only the expected columns to appear in the given
	// relative order; other columns may sit anywhere.
	var expectedInActual []string
	for _, col := range actual {
		if contains(expectedOrder, col) {
			expectedInActual = append(expectedInActual, col)
		}
	}
	if !equalSlices(expectedInActual, expectedOrder) {
		msg := messageOr(check, "Column order mismatch in '{sheet}'")
		msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
		msg = fmt.Sprintf("%s\n  Expected order: %s\n  Found order: %s",
			msg, strings.Join(expectedOrder, ", "), strings.Join(expectedInActual, ", "))
		return v.raiseOrWarn(check, msg)
	}
	return nil
}

func (v *Validator) checkFrameRequiredColumns(df *frame.Frame, sheetName string, check config.CheckConfig, p checkParams) error {
	required := p.stringSlice("columns")
	actual := df.Columns()

	var missing []string
	for _, col := range required {
		if !contains(actual, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		msg := messageOr(check, "Required columns missing in '{sheet}': {missing}")
		msg = strings.ReplaceAll(msg, "{sheet}", sheetName)
		msg = strings.ReplaceAll(msg, "{missing}", strings.Join(missing, ", "))
		return templateErrorf("%s\n  Required: %s\n  Found: %s",
			msg, strings.Join(required, ", "), strings.Join(actual, ", "))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// combineFailures folds the failures collected by a phase running with
// stop_on_error off into one TemplateError carrying every message.
func combineFailures(failures []error) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	}
	msgs := make([]string, len(failures))
	for i, err := range failures {
		msgs[i] = err.Error()
	}
	return &TemplateError{Message: strings.Join(msgs, "\n")}
}

// raiseOrWarn escalates a finding to a TemplateError at error severity and
// logs it otherwise.
func (v *Validator) raiseOrWarn(check config.CheckConfig, msg string) error {
	if strings.EqualFold(check.Severity, "error") {
		return &TemplateError{Message: msg}
	}
	v.log.Warn("template warning", "message", msg)
	return nil
}

func messageOr(check config.CheckConfig, def string) string {
	if check.Message != "" {
		return check.Message
	}
	return def
}

// headerCells returns the trimmed non-empty cells of a 1-indexed row.
func headerCells(f *excelize.File, sheetName string, rowNum int) ([]string, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, err
	}
	if rowNum < 1 || rowNum > len(rows) {
		return nil, nil
	}
	var out []string
	for _, cell := range rows[rowNum-1] {
		if s := strings.TrimSpace(cell); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// checkParams gives typed access to a check's params map.
type checkParams map[string]any

func (p checkParams) stringSlice(key string) []string {
	switch t := p[key].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

func (p checkParams) boolVal(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p checkParams) intVal(key string, def int) int {
	if v, ok := p.intOpt(key); ok {
		return v
	}
	return def
}

func (p checkParams) intOpt(key string) (int, bool) {
	switch t := p[key].(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

// =============================================================================
// depivot - Pre-Processing Rules
// =============================================================================
//
// Rules that inspect the raw frame before the depivot transform runs. Each
// rule reports structured details: counts, offending columns, sample rows.
//
// =============================================================================

package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/frame"
	"github.com/depivot-tools/depivot/internal/numeric"
)

// =============================================================================
// NULL-RATIO CHECK
// =============================================================================

// checkNullValues flags columns whose missing-value ratio exceeds a
// threshold.
//
// Params:
//   - columns: list of column names, or "all" (default) for every column
//   - threshold: maximum allowed ratio of missing values (default 0.05)
type checkNullValues struct {
	baseRule
}

func newCheckNullValues(cfg config.RuleConfig) Rule {
	return &checkNullValues{newBaseRule(cfg)}
}

func (r *checkNullValues) Name() string { return "check_null_values" }

func (r *checkNullValues) Validate(ctx *Context) Result {
	if ctx.Pre == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Pre
	threshold := r.floatParam("threshold", 0.05)

	columns := r.stringSliceParam("columns")
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "all") {
		columns = df.Columns()
	}

	var issues []map[string]any
	for _, col := range columns {
		if !df.HasColumn(col) {
			continue
		}

		nullCount := df.NullCount(col)
		ratio := 0.0
		if df.NumRows() > 0 {
			ratio = float64(nullCount) / float64(df.NumRows())
		}

		// Boundary equality passes: only a strictly greater ratio fails.
		if ratio > threshold {
			issues = append(issues, map[string]any{
				"column":     col,
				"null_count": nullCount,
				"null_ratio": ratio,
				"threshold":  threshold,
			})
		}
	}

	if len(issues) > 0 {
		first := issues[0]
		message := r.formatMessage(map[string]any{
			"column":    first["column"],
			"percent":   fmt.Sprintf("%.2f", first["null_ratio"].(float64)*100),
			"threshold": fmt.Sprintf("%.0f", threshold*100),
		})
		return r.fail(r.Name(), message, map[string]any{
			"issues":       issues,
			"total_issues": len(issues),
		})
	}

	return r.pass(r.Name(), "No excessive NULL values detected", nil)
}

// =============================================================================
// DUPLICATE-ROW CHECK
// =============================================================================

// checkDuplicates flags rows duplicated on the full row or on a configured
// key-column subset. Every row participating in a duplicate group counts.
//
// Params:
//   - key_columns: columns defining uniqueness (empty = full row)
type checkDuplicates struct {
	baseRule
}

func newCheckDuplicates(cfg config.RuleConfig) Rule {
	return &checkDuplicates{newBaseRule(cfg)}
}

func (r *checkDuplicates) Name() string { return "check_duplicates" }

func (r *checkDuplicates) Validate(ctx *Context) Result {
	if ctx.Pre == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Pre
	keyColumns := r.stringSliceParam("key_columns")

	keyOf := func(i int) string {
		if len(keyColumns) > 0 {
			return df.RowKey(i, keyColumns)
		}
		return df.FullRowKey(i)
	}

	counts := make(map[string]int)
	for i := 0; i < df.NumRows(); i++ {
		counts[keyOf(i)]++
	}

	dupCount := 0
	var samples []map[string]string
	for i := 0; i < df.NumRows(); i++ {
		if counts[keyOf(i)] > 1 {
			dupCount++
			if len(samples) < 5 {
				samples = append(samples, df.RowMap(i))
			}
		}
	}

	if dupCount > 0 {
		message := r.formatMessage(map[string]any{"count": dupCount})
		return r.fail(r.Name(), message, map[string]any{
			"duplicate_count":   dupCount,
			"key_columns":       keyColumns,
			"sample_duplicates": samples,
		})
	}

	return r.pass(r.Name(), "No duplicates detected", nil)
}

// =============================================================================
// COLUMN-TYPE CHECK
// =============================================================================

// checkColumnTypes infers each column's semantic type (numeric, datetime or
// string) and compares against an expectation map. Missing columns are
// reported as issues too.
//
// Params:
//   - type_specs: map of column name -> expected type
type checkColumnTypes struct {
	baseRule
}

func newCheckColumnTypes(cfg config.RuleConfig) Rule {
	return &checkColumnTypes{newBaseRule(cfg)}
}

func (r *checkColumnTypes) Name() string { return "check_column_types" }

func (r *checkColumnTypes) Validate(ctx *Context) Result {
	if ctx.Pre == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Pre
	specs := r.mapParam("type_specs")

	// Deterministic issue ordering for stable messages.
	cols := make([]string, 0, len(specs))
	for col := range specs {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var issues []map[string]any
	for _, col := range cols {
		expected := fmt.Sprintf("%v", specs[col])

		if !df.HasColumn(col) {
			issues = append(issues, map[string]any{
				"column":   col,
				"issue":    "missing",
				"expected": expected,
				"actual":   nil,
			})
			continue
		}

		actual := inferColumnType(df, col)
		if actual != expected {
			issues = append(issues, map[string]any{
				"column":   col,
				"issue":    "type_mismatch",
				"expected": expected,
				"actual":   actual,
			})
		}
	}

	if len(issues) > 0 {
		first := issues[0]
		actual := first["actual"]
		if actual == nil {
			actual = "missing"
		}
		message := r.formatMessage(map[string]any{
			"column":   first["column"],
			"expected": first["expected"],
			"actual":   actual,
		})
		return r.fail(r.Name(), message, map[string]any{
			"issues":       issues,
			"total_issues": len(issues),
		})
	}

	return r.pass(r.Name(), "All column types match expected", nil)
}

// inferColumnType tries numeric coercion across every non-missing cell, then
// date/time coercion, falling back to string. An all-missing column counts
// as numeric (vacuously coercible).
func inferColumnType(df *frame.Frame, col string) string {
	values := df.Column(col)

	allNumeric := true
	for _, v := range values {
		if frame.IsMissing(v) {
			continue
		}
		if math.IsNaN(numeric.Parse(v)) {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		return "numeric"
	}

	allDates := true
	for _, v := range values {
		if frame.IsMissing(v) {
			continue
		}
		if !numeric.LooksLikeTime(v) {
			allDates = false
			break
		}
	}
	if allDates {
		return "datetime"
	}

	return "string"
}

// =============================================================================
// VALUE-RANGE CHECK
// =============================================================================

// checkValueRanges flags numeric values outside configured bounds, reporting
// the observed min/max alongside the configured ones.
//
// Params:
//   - ranges: map of column name -> {min, max} (either bound optional)
type checkValueRanges struct {
	baseRule
}

func newCheckValueRanges(cfg config.RuleConfig) Rule {
	return &checkValueRanges{newBaseRule(cfg)}
}

func (r *checkValueRanges) Name() string { return "check_value_ranges" }

func (r *checkValueRanges) Validate(ctx *Context) Result {
	if ctx.Pre == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Pre
	ranges := r.mapParam("ranges")

	cols := make([]string, 0, len(ranges))
	for col := range ranges {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var issues []map[string]any
	for _, col := range cols {
		if !df.HasColumn(col) {
			continue
		}
		spec, ok := ranges[col].(map[string]any)
		if !ok {
			continue
		}

		minVal, hasMin := rangeBound(spec, "min")
		maxVal, hasMax := rangeBound(spec, "max")

		outlierCount := 0
		observedMin := math.NaN()
		observedMax := math.NaN()
		for _, v := range df.Column(col) {
			x := numeric.Parse(v)
			if math.IsNaN(x) {
				continue
			}
			if math.IsNaN(observedMin) || x < observedMin {
				observedMin = x
			}
			if math.IsNaN(observedMax) || x > observedMax {
				observedMax = x
			}
			if (hasMin && x < minVal) || (hasMax && x > maxVal) {
				outlierCount++
			}
		}

		if outlierCount > 0 {
			issue := map[string]any{
				"column":        col,
				"outlier_count": outlierCount,
				"actual_min":    observedMin,
				"actual_max":    observedMax,
			}
			if hasMin {
				issue["min"] = minVal
			}
			if hasMax {
				issue["max"] = maxVal
			}
			issues = append(issues, issue)
		}
	}

	if len(issues) > 0 {
		first := issues[0]
		message := r.formatMessage(map[string]any{
			"column": first["column"],
			"count":  first["outlier_count"],
		})
		return r.fail(r.Name(), message, map[string]any{
			"issues":       issues,
			"total_issues": len(issues),
		})
	}

	return r.pass(r.Name(), "All values within expected ranges", nil)
}

func rangeBound(spec map[string]any, key string) (float64, bool) {
	v, ok := spec[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// =============================================================================
// REQUIRED-COLUMNS CHECK
// =============================================================================

// checkRequiredColumns flags columns absent entirely or, unless explicitly
// allowed, present but 100% null.
//
// Params:
//   - columns: required column names
//   - allow_all_null: permit present-but-empty columns (default false)
type checkRequiredColumns struct {
	baseRule
}

func newCheckRequiredColumns(cfg config.RuleConfig) Rule {
	return &checkRequiredColumns{newBaseRule(cfg)}
}

func (r *checkRequiredColumns) Name() string { return "check_required_columns" }

func (r *checkRequiredColumns) Validate(ctx *Context) Result {
	if ctx.Pre == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Pre
	required := r.stringSliceParam("columns")
	allowAllNull := r.boolParam("allow_all_null", false)

	var issues []map[string]any
	for _, col := range required {
		switch {
		case !df.HasColumn(col):
			issues = append(issues, map[string]any{
				"column": col,
				"issue":  "missing",
			})
		case !allowAllNull && df.NumRows() > 0 && df.NullCount(col) == df.NumRows():
			issues = append(issues, map[string]any{
				"column": col,
				"issue":  "all_null",
			})
		}
	}

	if len(issues) > 0 {
		message := r.formatMessage(map[string]any{"column": issues[0]["column"]})
		return r.fail(r.Name(), message, map[string]any{
			"issues":       issues,
			"total_issues": len(issues),
		})
	}

	return r.pass(r.Name(), "All required columns present", nil)
}

// =============================================================================
// depivot - Post-Processing Rules
// =============================================================================
//
// Rules that run against the long-format frame after the depivot transform,
// with the original wide frame still available for cross checks.
//
// =============================================================================

package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/frame"
	"github.com/depivot-tools/depivot/internal/numeric"
)

// =============================================================================
// ROW-COUNT CHECK
// =============================================================================

// checkRowCount verifies the long frame holds source_rows x value_columns
// rows, within a ratio window.
//
// Params:
//   - min_ratio: minimum actual/expected ratio (default 0.9)
//   - max_ratio: maximum actual/expected ratio (default 1.1)
type checkRowCount struct {
	baseRule
}

func newCheckRowCount(cfg config.RuleConfig) Rule {
	return &checkRowCount{newBaseRule(cfg)}
}

func (r *checkRowCount) Name() string { return "check_row_count" }

func (r *checkRowCount) Validate(ctx *Context) Result {
	if ctx.Pre == nil || ctx.Post == nil {
		return skipped(r.Name(), "missing context")
	}

	expected := ctx.Pre.NumRows() * len(ctx.ValueVars)
	actual := ctx.Post.NumRows()
	ratio := 0.0
	if expected > 0 {
		ratio = float64(actual) / float64(expected)
	}

	minRatio := r.floatParam("min_ratio", 0.9)
	maxRatio := r.floatParam("max_ratio", 1.1)

	if ratio < minRatio || ratio > maxRatio {
		message := r.formatMessage(map[string]any{
			"expected": expected,
			"actual":   actual,
			"ratio":    fmt.Sprintf("%.2f", ratio),
		})
		return r.fail(r.Name(), message, map[string]any{
			"expected":  expected,
			"actual":    actual,
			"ratio":     ratio,
			"min_ratio": minRatio,
			"max_ratio": maxRatio,
		})
	}

	message := fmt.Sprintf("Row count valid: %d rows (%.2fx expected)", actual, ratio)
	return r.pass(r.Name(), message, map[string]any{
		"actual":   actual,
		"expected": expected,
		"ratio":    ratio,
	})
}

// =============================================================================
// NUMERIC-CONVERSION CHECK
// =============================================================================

// checkNumericConversion tracks how many values failed numeric coercion,
// which surface as missing entries in the value column.
//
// Params:
//   - value_column: column to inspect (defaults to the configured value name)
//   - max_null_ratio: maximum acceptable missing ratio (default 0.1)
type checkNumericConversion struct {
	baseRule
}

func newCheckNumericConversion(cfg config.RuleConfig) Rule {
	return &checkNumericConversion{newBaseRule(cfg)}
}

func (r *checkNumericConversion) Name() string { return "check_numeric_conversion" }

func (r *checkNumericConversion) Validate(ctx *Context) Result {
	if ctx.Post == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Post
	valueColumn := r.stringParam("value_column", ctx.ValueName)
	maxNullRatio := r.floatParam("max_null_ratio", 0.1)

	if !df.HasColumn(valueColumn) {
		// A missing value column is always an error regardless of the
		// configured severity.
		return Result{
			RuleName:  r.Name(),
			Severity:  SeverityError,
			Passed:    false,
			Message:   fmt.Sprintf("Value column '%s' not found", valueColumn),
			Details:   map[string]any{},
			Timestamp: time.Now(),
		}
	}

	nullCount := df.NullCount(valueColumn)
	nullRatio := 0.0
	if df.NumRows() > 0 {
		nullRatio = float64(nullCount) / float64(df.NumRows())
	}

	if nullRatio > maxNullRatio {
		message := r.formatMessage(map[string]any{
			"null_count":   nullCount,
			"value_column": valueColumn,
			"percent":      fmt.Sprintf("%.2f", nullRatio*100),
		})
		return r.fail(r.Name(), message, map[string]any{
			"null_count":     nullCount,
			"null_ratio":     nullRatio,
			"max_null_ratio": maxNullRatio,
			"value_column":   valueColumn,
		})
	}

	message := fmt.Sprintf("Numeric conversion successful: %.2f%% NULLs", nullRatio*100)
	return r.pass(r.Name(), message, map[string]any{
		"null_count": nullCount,
		"null_ratio": nullRatio,
	})
}

// =============================================================================
// OUTLIER CHECK
// =============================================================================

// checkOutliers flags statistical outliers in the value column using either
// z-scores (sample standard deviation) or the interquartile range.
//
// Params:
//   - value_column: column to analyze (defaults to the configured value name)
//   - method: "zscore" or "iqr" (default "zscore")
//   - threshold: standard deviations for zscore (default 3.0), IQR
//     multiplier for iqr (default 1.5)
type checkOutliers struct {
	baseRule
}

func newCheckOutliers(cfg config.RuleConfig) Rule {
	return &checkOutliers{newBaseRule(cfg)}
}

func (r *checkOutliers) Name() string { return "check_outliers" }

func (r *checkOutliers) Validate(ctx *Context) Result {
	if ctx.Post == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Post
	valueColumn := r.stringParam("value_column", ctx.ValueName)
	method := r.stringParam("method", "zscore")
	defaultThreshold := 3.0
	if method == "iqr" {
		defaultThreshold = 1.5
	}
	threshold := r.floatParam("threshold", defaultThreshold)

	if !df.HasColumn(valueColumn) {
		return skipped(r.Name(), fmt.Sprintf("value column '%s' not found", valueColumn))
	}

	var values []float64
	for _, v := range df.Column(valueColumn) {
		x := numeric.Parse(v)
		if !math.IsNaN(x) {
			values = append(values, x)
		}
	}
	if len(values) == 0 {
		return skipped(r.Name(), "no numeric values to check")
	}

	outlierCount := 0
	switch method {
	case "zscore":
		mean, std := meanStd(values)
		if std > 0 {
			for _, x := range values {
				if math.Abs((x-mean)/std) > threshold {
					outlierCount++
				}
			}
		}
	case "iqr":
		q1 := quantile(values, 0.25)
		q3 := quantile(values, 0.75)
		iqr := q3 - q1
		lower := q1 - threshold*iqr
		upper := q3 + threshold*iqr
		for _, x := range values {
			if x < lower || x > upper {
				outlierCount++
			}
		}
	}

	if outlierCount > 0 {
		message := r.formatMessage(map[string]any{"count": outlierCount})
		return r.fail(r.Name(), message, map[string]any{
			"outlier_count": outlierCount,
			"method":        method,
			"threshold":     threshold,
			"value_column":  valueColumn,
		})
	}

	message := fmt.Sprintf("No outliers detected (method: %s, threshold: %g)", method, threshold)
	return r.pass(r.Name(), message, map[string]any{
		"method":    method,
		"threshold": threshold,
	})
}

// meanStd returns the mean and sample standard deviation (n-1 denominator).
func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	sum := 0.0
	for _, x := range values {
		sum += x
	}
	mean := sum / n

	if len(values) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range values {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// quantile computes a quantile with linear interpolation between order
// statistics.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// =============================================================================
// DATA-COMPLETENESS CHECK
// =============================================================================

// checkDataCompleteness detects dimension combinations missing expected
// values in the variable column. Skips rather than fails whenever the
// configuration or the columns it names are absent.
//
// Params:
//   - dimensions: grouping columns (e.g. Site, Category)
//   - variable_column: column holding the values to compare (defaults to the
//     configured variable name)
//   - expected_values: values every group must contain
type checkDataCompleteness struct {
	baseRule
}

func newCheckDataCompleteness(cfg config.RuleConfig) Rule {
	return &checkDataCompleteness{newBaseRule(cfg)}
}

func (r *checkDataCompleteness) Name() string { return "check_data_completeness" }

func (r *checkDataCompleteness) Validate(ctx *Context) Result {
	if ctx.Post == nil {
		return skipped(r.Name(), "missing context")
	}
	df := ctx.Post
	dimensions := r.stringSliceParam("dimensions")
	variableColumn := r.stringParam("variable_column", ctx.VarName)
	expectedValues := r.stringSliceParam("expected_values")

	if len(dimensions) == 0 || len(expectedValues) == 0 {
		return skipped(r.Name(), "no dimensions or expected_values configured")
	}

	var missingCols []string
	for _, col := range append(append([]string{}, dimensions...), variableColumn) {
		if !df.HasColumn(col) {
			missingCols = append(missingCols, col)
		}
	}
	if len(missingCols) > 0 {
		return skipped(r.Name(), fmt.Sprintf("missing columns: %v", missingCols))
	}

	expected := make(map[string]bool, len(expectedValues))
	for _, v := range expectedValues {
		expected[v] = true
	}

	// Group rows by dimension key, gathering the variable values seen per
	// group. First-seen order keeps the report deterministic.
	type group struct {
		label  string
		values map[string]bool
	}
	groups := make(map[string]*group)
	var order []string
	for i := 0; i < df.NumRows(); i++ {
		key := df.RowKey(i, dimensions)
		g, ok := groups[key]
		if !ok {
			parts := make([]string, len(dimensions))
			for j, d := range dimensions {
				parts[j] = fmt.Sprintf("%s=%s", d, frame.CellString(df.Value(i, d)))
			}
			g = &group{label: strings.Join(parts, ", "), values: make(map[string]bool)}
			groups[key] = g
			order = append(order, key)
		}
		g.values[frame.CellString(df.Value(i, variableColumn))] = true
	}

	var issues []map[string]any
	for _, key := range order {
		g := groups[key]
		var missing, found []string
		for v := range g.values {
			found = append(found, v)
		}
		for _, v := range expectedValues {
			if !g.values[v] {
				missing = append(missing, v)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			sort.Strings(found)
			issues = append(issues, map[string]any{
				"dimension_values": g.label,
				"missing_values":   missing,
				"found_values":     found,
				"expected_values":  sortedCopy(expectedValues),
			})
		}
	}

	if len(issues) > 0 {
		first := issues[0]
		message := r.formatMessage(map[string]any{
			"dimension_values": first["dimension_values"],
			"expected":         len(expectedValues),
			"actual":           len(first["found_values"].([]string)),
		})
		capped := issues
		if len(capped) > 10 {
			capped = capped[:10]
		}
		return r.fail(r.Name(), message, map[string]any{
			"issues":       capped,
			"total_issues": len(issues),
		})
	}

	return r.pass(r.Name(), "All dimension combinations have complete data", nil)
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

// =============================================================================
// TOTALS-MATCH CHECK
// =============================================================================

// checkTotalsMatch compares the sum over all wide value columns against the
// sum of the long value column. Both sides are coerced with the same
// normalizer, so formatting noise cancels out.
//
// Params:
//   - tolerance: absolute difference tolerance (default 0.01)
type checkTotalsMatch struct {
	baseRule
}

func newCheckTotalsMatch(cfg config.RuleConfig) Rule {
	return &checkTotalsMatch{newBaseRule(cfg)}
}

func (r *checkTotalsMatch) Name() string { return "check_totals_match" }

func (r *checkTotalsMatch) Validate(ctx *Context) Result {
	if ctx.Pre == nil || ctx.Post == nil {
		return skipped(r.Name(), "missing context")
	}
	tolerance := r.floatParam("tolerance", 0.01)

	sourceTotal := 0.0
	for _, col := range ctx.ValueVars {
		if ctx.Pre.HasColumn(col) {
			sourceTotal += ctx.Pre.SumColumn(col, numeric.Normalize)
		}
	}
	processedTotal := 0.0
	if ctx.Post.HasColumn(ctx.ValueName) {
		processedTotal = ctx.Post.SumColumn(ctx.ValueName, numeric.Normalize)
	}

	difference := math.Abs(sourceTotal - processedTotal)

	if difference > tolerance {
		message := r.formatMessage(map[string]any{
			"source_total":    fmt.Sprintf("%.2f", sourceTotal),
			"processed_total": fmt.Sprintf("%.2f", processedTotal),
			"difference":      fmt.Sprintf("%.2f", difference),
		})
		return r.fail(r.Name(), message, map[string]any{
			"source_total":    sourceTotal,
			"processed_total": processedTotal,
			"difference":      difference,
			"tolerance":       tolerance,
		})
	}

	message := fmt.Sprintf("Totals match within tolerance: diff=%.2f", difference)
	return r.pass(r.Name(), message, map[string]any{
		"source_total":    sourceTotal,
		"processed_total": processedTotal,
		"difference":      difference,
	})
}

package quality

import (
	"sort"

	"github.com/depivot-tools/depivot/internal/config"
)

// ruleRegistry maps rule names from the YAML configuration to constructors.
// The set is fixed at compile time; unknown names are skipped with a warning
// by the engine.
var ruleRegistry = map[string]func(config.RuleConfig) Rule{
	// Pre-processing rules
	"check_null_values":      newCheckNullValues,
	"check_duplicates":       newCheckDuplicates,
	"check_column_types":     newCheckColumnTypes,
	"check_value_ranges":     newCheckValueRanges,
	"check_required_columns": newCheckRequiredColumns,

	// Post-processing rules
	"check_row_count":          newCheckRowCount,
	"check_numeric_conversion": newCheckNumericConversion,
	"check_outliers":           newCheckOutliers,
	"check_data_completeness":  newCheckDataCompleteness,
	"check_totals_match":       newCheckTotalsMatch,
}

// KnownRules lists every registered rule name, sorted.
func KnownRules() []string {
	names := make([]string, 0, len(ruleRegistry))
	for name := range ruleRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

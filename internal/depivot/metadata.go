// =============================================================================
// depivot - Metadata Derivation
// =============================================================================
//
// Derives the DataType and ReleaseDate metadata attached to output rows, and
// classifies summary rows for the exclude-totals filter.
//
// =============================================================================

package depivot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/depivot-tools/depivot/internal/frame"
)

// monthOrder maps three-letter month prefixes to calendar position.
var monthOrder = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// defaultSummaryPatterns are the substrings that mark a row as a summary or
// total row when exclude-totals filtering is on.
var defaultSummaryPatterns = []string{"total", "subtotal", "sum"}

// DetectDataType classifies a sheet by name into Actual, Budget or Forecast.
// Forecast wins over Budget wins over Actual; anything unrecognized is
// Actual.
func DetectDataType(sheetName string) string {
	lower := strings.ToLower(sheetName)
	switch {
	case strings.Contains(lower, "forecast"):
		return "Forecast"
	case strings.Contains(lower, "budg"):
		return "Budget"
	default:
		return "Actual"
	}
}

// IsForecastMonth reports whether a month falls at or after the forecast
// start month. Comparison uses three-letter, case-insensitive prefixes;
// anything that is not a month name counts as actual.
func IsForecastMonth(month, forecastStart string) bool {
	monthNum := monthNumber(month)
	forecastNum := monthNumber(forecastStart)
	if monthNum == 0 || forecastNum == 0 {
		return false
	}
	return monthNum >= forecastNum
}

func monthNumber(name string) int {
	s := strings.ToLower(strings.TrimSpace(name))
	if len(s) > 3 {
		s = s[:3]
	}
	return monthOrder[s]
}

var (
	releaseDateSeparated = regexp.MustCompile(`(\d{4})[_-](\d{2})`)
	releaseDateCompact   = regexp.MustCompile(`(\d{4})(\d{2})`)
)

// ExtractReleaseDate pulls a YYYY-MM release date out of a filename.
// Recognizes YYYY_MM, YYYY-MM, and YYYYMM (month validated 01-12 for the
// compact form). Returns "" when no date is present.
func ExtractReleaseDate(filename string) string {
	if m := releaseDateSeparated.FindStringSubmatch(filename); m != nil {
		return m[1] + "-" + m[2]
	}
	if m := releaseDateCompact.FindStringSubmatch(filename); m != nil {
		month := (int(m[2][0]-'0') * 10) + int(m[2][1]-'0')
		if month >= 1 && month <= 12 {
			return m[1] + "-" + m[2]
		}
	}
	return ""
}

// IsSummaryRow reports whether any identifier cell of the row contains a
// summary pattern, case-insensitively. Nil patterns use the defaults.
func IsSummaryRow(df *frame.Frame, row int, idVars []string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = defaultSummaryPatterns
	}
	for _, col := range idVars {
		if !df.HasColumn(col) {
			continue
		}
		v := df.Value(row, col)
		if frame.IsMissing(v) {
			continue
		}
		cell := strings.ToLower(fmt.Sprintf("%v", v))
		for _, pat := range patterns {
			if pat != "" && strings.Contains(cell, strings.ToLower(pat)) {
				return true
			}
		}
	}
	return false
}

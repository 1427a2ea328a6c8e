// =============================================================================
// depivot - Numeric Normalizer
// =============================================================================
//
// Converts heterogeneous textual numeric representations into float64 values
// so that totals computed before and after the depivot transform are
// comparable. Handles:
//   - Currency symbols and other stray characters ("$1,234.56")
//   - Thousands separators ("1,234.56")
//   - Accounting-style negatives ("(123.45)" -> -123.45)
//
// Both the transform stage and the reconciliation engine call Normalize, so
// there is a single definition of what a cell is "worth".
//
// =============================================================================

package numeric

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize cleans and converts a scalar to float64.
//
// Already-numeric values pass through unparsed. Text is stripped down to
// digits, '.', ',', '(', ')' and '-'; a '(' ')' pair marks the value
// negative; commas are removed as thousands separators. Anything that still
// fails to parse (including strings with no digits at all) yields NaN rather
// than an error.
func Normalize(value any) float64 {
	switch t := value.(type) {
	case nil:
		return math.NaN()
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return normalizeString(t)
	default:
		return math.NaN()
	}
}

func normalizeString(s string) float64 {
	// Keep digits, decimal point, comma, parentheses and minus.
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '(', r == ')', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	negative := false
	if strings.Contains(cleaned, "(") && strings.Contains(cleaned, ")") {
		negative = true
		cleaned = strings.ReplaceAll(cleaned, "(", "")
		cleaned = strings.ReplaceAll(cleaned, ")", "")
	}

	cleaned = strings.ReplaceAll(cleaned, ",", "")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}

// =============================================================================
// STRICT COERCION
// =============================================================================

// Parse coerces a scalar to float64 without any cleaning: numeric types pass
// through, strings must parse as plain floats after trimming whitespace.
// Used by rules that mirror a strict numeric coercion (column typing, value
// ranges, outliers) rather than the cleaning Normalize performs.
func Parse(value any) float64 {
	switch t := value.(type) {
	case nil:
		return math.NaN()
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	default:
		return math.NaN()
	}
}

// LooksLikeNumber reports whether a scalar passes strict numeric coercion.
func LooksLikeNumber(value any) bool {
	return !math.IsNaN(Parse(value))
}

// dateLayouts is the set of formats tried when inferring whether a text
// column holds dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
	"2006-01-02 15:04:05",
}

// LooksLikeTime reports whether a scalar parses as a date/time. time.Time
// values qualify directly; strings are tried against the common layouts.
func LooksLikeTime(value any) bool {
	switch t := value.(type) {
	case time.Time:
		return true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return false
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// =============================================================================
// depivot - Data Quality Types
// =============================================================================
//
// Shared types for the data-quality rule engine: severities, the per-rule
// result record, the context handed to rules, and the aggregated error raised
// by an explicit error check.
//
// ERROR HANDLING:
//   - Results are collected, not raised immediately
//   - Each result carries structured details for troubleshooting
//   - Results can be warnings (processing continues) or errors (processing
//     stops at the caller's explicit check point)
//
// =============================================================================

package quality

import (
	"fmt"
	"strings"
	"time"

	"github.com/depivot-tools/depivot/internal/frame"
)

// Severity classifies a failed check.
type Severity string

const (
	// SeverityError halts processing of the current sheet/file.
	SeverityError Severity = "error"

	// SeverityWarning is reported but never halts processing.
	SeverityWarning Severity = "warning"

	// SeverityInfo is reported only in verbose mode.
	SeverityInfo Severity = "info"
)

// ParseSeverity maps a configured severity string to a Severity, defaulting
// to warning for anything unrecognized or empty.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError
	case "info":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// Result is the immutable outcome of one rule run.
type Result struct {
	// RuleName is the registry identifier of the rule that produced this.
	RuleName string

	// Severity is the configured severity of the rule.
	Severity Severity

	// Passed is false when the check found a problem.
	Passed bool

	// Message is the human-readable outcome, after placeholder substitution.
	Message string

	// Details is an arbitrary per-rule diagnostic payload (counts, offending
	// columns, sample rows).
	Details map[string]any

	// Timestamp records when the rule ran.
	Timestamp time.Time
}

// Context is the immutable bundle of data and parameters a rule reads.
// Pre-processing rules see Pre only; post-processing rules see the
// (Pre, Post) pair. Rules must never mutate the context.
type Context struct {
	// Pre is the frame before the depivot transform.
	Pre *frame.Frame

	// Post is the long-form frame after the transform.
	Post *frame.Frame

	// SheetName and InputFile identify the data's origin.
	SheetName string
	InputFile string

	// Column roles.
	IDVars    []string
	ValueVars []string
	VarName   string
	ValueName string

	// Metadata is an open-ended bag for anything phase-specific.
	Metadata map[string]any
}

// DataQualityError aggregates every error-severity failure found by
// Engine.CheckForErrors. It carries all messages, not just the first, so a
// user fixes everything in one pass.
type DataQualityError struct {
	Failures []string
}

// Error implements the error interface.
func (e *DataQualityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "data quality validation failed with %d error(s):", len(e.Failures))
	for _, msg := range e.Failures {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	return b.String()
}

// =============================================================================
// depivot - Validation Rule Contract
// =============================================================================
//
// Every rule is constructed from a RuleConfig and exposes one operation:
// Validate(context) -> Result. Rules are pure functions of the context plus
// their own configuration: no rule mutates the context or keeps state across
// invocations, which is what makes parallelizing across sheets safe for
// callers.
//
// A rule that needs data the context doesn't carry (e.g. a post-processing
// rule invoked without a processed frame) returns a passing result tagged
// "skipped" instead of failing, so the engine's control flow stays uniform.
//
// =============================================================================

package quality

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/depivot-tools/depivot/internal/config"
)

// Rule is a single stateless check.
type Rule interface {
	// Name returns the rule's registry identifier.
	Name() string

	// Validate runs the check against the context.
	Validate(ctx *Context) Result
}

// baseRule carries the configuration shared by every concrete rule.
type baseRule struct {
	severity Severity
	params   map[string]any
	template string
}

func newBaseRule(cfg config.RuleConfig) baseRule {
	template := cfg.Message
	if template == "" {
		template = "Validation failed"
	}
	params := cfg.Params
	if params == nil {
		params = map[string]any{}
	}
	return baseRule{
		severity: ParseSeverity(cfg.Severity),
		params:   params,
		template: template,
	}
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// formatMessage substitutes {placeholder} tokens from vars. When the
// template references a variable that wasn't supplied, the raw template is
// returned with a note naming the missing variable rather than panicking.
func (b baseRule) formatMessage(vars map[string]any) string {
	for _, m := range placeholderRe.FindAllStringSubmatch(b.template, -1) {
		if _, ok := vars[m[1]]; !ok {
			return fmt.Sprintf("%s (missing variable: '%s')", b.template, m[1])
		}
	}
	return placeholderRe.ReplaceAllStringFunc(b.template, func(tok string) string {
		key := tok[1 : len(tok)-1]
		return fmt.Sprintf("%v", vars[key])
	})
}

// pass and fail build Results with the boilerplate filled in.
func (b baseRule) pass(name, message string, details map[string]any) Result {
	if details == nil {
		details = map[string]any{}
	}
	return Result{
		RuleName:  name,
		Severity:  b.severity,
		Passed:    true,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

func (b baseRule) fail(name, message string, details map[string]any) Result {
	if details == nil {
		details = map[string]any{}
	}
	return Result{
		RuleName:  name,
		Severity:  b.severity,
		Passed:    false,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// skipped reports a check that couldn't run for lack of context data. It
// passes so that a misconfigured phase never aborts processing on its own.
func skipped(name, reason string) Result {
	return Result{
		RuleName:  name,
		Severity:  SeverityWarning,
		Passed:    true,
		Message:   "Skipped (" + reason + ")",
		Details:   map[string]any{},
		Timestamp: time.Now(),
	}
}

// =============================================================================
// PARAM ACCESSORS
// =============================================================================
//
// Params arrive from YAML as map[string]any; the accessors below absorb the
// int/float/string ambiguity so rules read one clean value.

func (b baseRule) floatParam(key string, def float64) float64 {
	v, ok := b.params[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return def
	}
}

func (b baseRule) intParam(key string, def int) int {
	v, ok := b.params[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return def
	}
}

func (b baseRule) boolParam(key string, def bool) bool {
	if v, ok := b.params[key].(bool); ok {
		return v
	}
	return def
}

func (b baseRule) stringParam(key, def string) string {
	if v, ok := b.params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func (b baseRule) stringSliceParam(key string) []string {
	v, ok := b.params[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		// Allow comma-separated shorthand in hand-written configs.
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

func (b baseRule) mapParam(key string) map[string]any {
	switch t := b.params[key].(type) {
	case map[string]any:
		return t
	default:
		return nil
	}
}

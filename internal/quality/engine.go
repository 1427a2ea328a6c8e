// =============================================================================
// depivot - Validation Engine
// =============================================================================
//
// The engine loads rules from configuration, runs them in configured order,
// collects results, and renders a per-phase report. Rule failures never
// escape as panics: a panicking rule is converted into a synthetic
// error-severity result so one bad rule cannot take down a batch run.
//
// DATA FLOW:
//   config.ValidationConfig -> NewEngine -> RunPreProcessing/RunPostProcessing
//   -> []Result -> Report (human output) + CheckForErrors (control flow)
//
// =============================================================================

package quality

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/depivot-tools/depivot/internal/config"
)

// Engine executes configured validation rules against a Context.
type Engine struct {
	enabled     bool
	stopOnError bool
	maxWarnings int

	preRules  []Rule
	postRules []Rule

	log *slog.Logger
}

// NewEngine builds an engine from a validation config block. A nil config
// yields a disabled engine whose runs return no results.
func NewEngine(cfg *config.ValidationConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		enabled:     true,
		stopOnError: true,
		maxWarnings: 20,
		log:         log,
	}

	if cfg == nil {
		e.enabled = false
		return e
	}
	if cfg.Enabled != nil {
		e.enabled = *cfg.Enabled
	}
	if cfg.Settings.StopOnError != nil {
		e.stopOnError = *cfg.Settings.StopOnError
	}
	if cfg.Settings.MaxWarningsDisplay > 0 {
		e.maxWarnings = cfg.Settings.MaxWarningsDisplay
	}

	e.preRules = e.loadRules(cfg.PreProcessing)
	e.postRules = e.loadRules(cfg.PostProcessing)
	return e
}

// loadRules instantiates the enabled rules from a phase's config list,
// skipping entries that are unnamed, unknown, or disabled.
func (e *Engine) loadRules(configs []config.RuleConfig) []Rule {
	var rules []Rule
	for _, rc := range configs {
		if rc.Rule == "" {
			e.log.Warn("rule config missing 'rule' name, skipping")
			continue
		}
		ctor, ok := ruleRegistry[rc.Rule]
		if !ok {
			e.log.Warn("unknown validation rule, skipping",
				"rule", rc.Rule, "known_rules", strings.Join(KnownRules(), ", "))
			continue
		}
		if !rc.IsEnabled() {
			continue
		}
		rules = append(rules, ctor(rc))
	}
	return rules
}

// RunPreProcessing executes the pre-processing rules.
func (e *Engine) RunPreProcessing(ctx *Context) []Result {
	if !e.enabled {
		return nil
	}
	return e.runRules(e.preRules, ctx)
}

// RunPostProcessing executes the post-processing rules.
func (e *Engine) RunPostProcessing(ctx *Context) []Result {
	if !e.enabled {
		return nil
	}
	return e.runRules(e.postRules, ctx)
}

// runRules executes rules in order. With stop-on-error set, the first failed
// error-severity result ends the phase; later rules never run.
func (e *Engine) runRules(rules []Rule, ctx *Context) []Result {
	var results []Result
	for _, rule := range rules {
		result := e.runRule(rule, ctx)
		results = append(results, result)

		if result.Severity == SeverityError && !result.Passed && e.stopOnError {
			break
		}
	}
	return results
}

// runRule invokes one rule, converting a panic into an error result.
func (e *Engine) runRule(rule Rule, ctx *Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				RuleName:  rule.Name(),
				Severity:  SeverityError,
				Passed:    false,
				Message:   fmt.Sprintf("Rule execution failed: %v", r),
				Details:   map[string]any{"panic": fmt.Sprintf("%v", r)},
				Timestamp: time.Now(),
			}
		}
	}()
	return rule.Validate(ctx)
}

// Report writes a human-readable summary of results for one phase. Warnings
// are truncated to the configured display limit; info results appear only in
// verbose mode.
func (e *Engine) Report(w io.Writer, results []Result, phase string, verbose bool) {
	if len(results) == 0 {
		return
	}

	var errors, warnings, info, passed []Result
	for _, r := range results {
		switch {
		case r.Passed:
			passed = append(passed, r)
		case r.Severity == SeverityError:
			errors = append(errors, r)
		case r.Severity == SeverityWarning:
			warnings = append(warnings, r)
		default:
			info = append(info, r)
		}
	}

	fmt.Fprintf(w, "\nData Quality - %s Results:\n", phase)
	fmt.Fprintf(w, "  Passed:   %d\n", len(passed))
	fmt.Fprintf(w, "  Warnings: %d\n", len(warnings))
	fmt.Fprintf(w, "  Errors:   %d\n", len(errors))
	if verbose {
		fmt.Fprintf(w, "  Info:     %d\n", len(info))
	}

	if len(errors) > 0 {
		fmt.Fprintf(w, "\nERRORS:\n")
		for _, r := range errors {
			fmt.Fprintf(w, "  - %s: %s\n", r.RuleName, r.Message)
			if verbose && len(r.Details) > 0 {
				fmt.Fprintf(w, "    Details: %v\n", r.Details)
			}
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintf(w, "\nWARNINGS:\n")
		shown := warnings
		if len(shown) > e.maxWarnings {
			shown = shown[:e.maxWarnings]
		}
		for _, r := range shown {
			fmt.Fprintf(w, "  - %s: %s\n", r.RuleName, r.Message)
			if verbose && len(r.Details) > 0 {
				fmt.Fprintf(w, "    Details: %v\n", r.Details)
			}
		}
		if len(warnings) > e.maxWarnings {
			fmt.Fprintf(w, "  ... and %d more warnings\n", len(warnings)-e.maxWarnings)
		}
	}

	if verbose && len(info) > 0 {
		fmt.Fprintf(w, "\nINFO:\n")
		for _, r := range info {
			fmt.Fprintf(w, "  - %s: %s\n", r.RuleName, r.Message)
			if len(r.Details) > 0 {
				fmt.Fprintf(w, "    Details: %v\n", r.Details)
			}
		}
	}
}

// CheckForErrors returns a *DataQualityError aggregating every failed
// error-severity result, or nil when there are none. Callers decide where in
// the pipeline this stops processing.
func (e *Engine) CheckForErrors(results []Result) error {
	var failures []string
	for _, r := range results {
		if r.Severity == SeverityError && !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.RuleName, r.Message))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &DataQualityError{Failures: failures}
}

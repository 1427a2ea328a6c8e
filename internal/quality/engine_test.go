package quality

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depivot-tools/depivot/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func TestEngineDisabledWithoutConfig(t *testing.T) {
	e := NewEngine(nil, nil)
	assert.Nil(t, e.RunPreProcessing(&Context{Pre: wideFrame()}))
	assert.Nil(t, e.RunPostProcessing(&Context{Post: longFrame()}))
}

func TestEngineDisabledExplicitly(t *testing.T) {
	cfg := &config.ValidationConfig{
		Enabled: boolPtr(false),
		PreProcessing: []config.RuleConfig{
			{Rule: "check_null_values"},
		},
	}
	e := NewEngine(cfg, nil)
	assert.Nil(t, e.RunPreProcessing(&Context{Pre: wideFrame()}))
}

func TestKnownRules(t *testing.T) {
	names := KnownRules()
	assert.Len(t, names, 10)
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "check_null_values")
	assert.Contains(t, names, "check_totals_match")
}

func TestEngineSkipsUnknownAndUnnamedRules(t *testing.T) {
	cfg := &config.ValidationConfig{
		PreProcessing: []config.RuleConfig{
			{Rule: "no_such_rule"},
			{},
			{Rule: "check_null_values"},
			{Rule: "check_duplicates", Enabled: boolPtr(false)},
		},
	}
	e := NewEngine(cfg, nil)
	results := e.RunPreProcessing(&Context{Pre: wideFrame()})
	require.Len(t, results, 1)
	assert.Equal(t, "check_null_values", results[0].RuleName)
}

func TestEngineStopsOnError(t *testing.T) {
	cfg := &config.ValidationConfig{
		PreProcessing: []config.RuleConfig{
			{
				Rule:     "check_required_columns",
				Severity: "error",
				Params:   map[string]any{"columns": []any{"Missing"}},
			},
			{Rule: "check_null_values"},
		},
	}
	ctx := &Context{Pre: wideFrame()}

	e := NewEngine(cfg, nil)
	results := e.RunPreProcessing(ctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)

	cfg.Settings.StopOnError = boolPtr(false)
	e = NewEngine(cfg, nil)
	results = e.RunPreProcessing(ctx)
	assert.Len(t, results, 2)
}

func TestEngineContinuesPastWarnings(t *testing.T) {
	cfg := &config.ValidationConfig{
		PreProcessing: []config.RuleConfig{
			{
				Rule:     "check_required_columns",
				Severity: "warning",
				Params:   map[string]any{"columns": []any{"Missing"}},
			},
			{Rule: "check_null_values"},
		},
	}
	e := NewEngine(cfg, nil)
	results := e.RunPreProcessing(&Context{Pre: wideFrame()})
	assert.Len(t, results, 2)
}

type panicRule struct{}

func (panicRule) Name() string                 { return "panic_rule" }
func (panicRule) Validate(ctx *Context) Result { panic("boom") }

func TestEngineRecoversFromRulePanic(t *testing.T) {
	e := NewEngine(&config.ValidationConfig{}, nil)
	result := e.runRule(panicRule{}, &Context{})

	assert.Equal(t, "panic_rule", result.RuleName)
	assert.Equal(t, SeverityError, result.Severity)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "Rule execution failed")
	assert.Equal(t, "boom", result.Details["panic"])
}

func TestCheckForErrors(t *testing.T) {
	e := NewEngine(&config.ValidationConfig{}, nil)

	results := []Result{
		{RuleName: "a", Severity: SeverityError, Passed: true},
		{RuleName: "b", Severity: SeverityWarning, Passed: false, Message: "warn"},
	}
	assert.NoError(t, e.CheckForErrors(results))

	results = append(results, Result{
		RuleName: "c", Severity: SeverityError, Passed: false, Message: "bad",
	})
	err := e.CheckForErrors(results)
	require.Error(t, err)
	var dqe *DataQualityError
	require.ErrorAs(t, err, &dqe)
	require.Len(t, dqe.Failures, 1)
	assert.Equal(t, "c: bad", dqe.Failures[0])
	assert.Contains(t, err.Error(), "1 error(s)")
}

func TestReportTruncatesWarnings(t *testing.T) {
	cfg := &config.ValidationConfig{
		Settings: config.ValidationSettings{MaxWarningsDisplay: 2},
	}
	e := NewEngine(cfg, nil)

	var results []Result
	for i := 0; i < 5; i++ {
		results = append(results, Result{
			RuleName: "w", Severity: SeverityWarning, Passed: false, Message: "watch out",
		})
	}

	var buf bytes.Buffer
	e.Report(&buf, results, "Pre-Processing", false)
	out := buf.String()
	assert.Contains(t, out, "Warnings: 5")
	assert.Contains(t, out, "... and 3 more warnings")
}

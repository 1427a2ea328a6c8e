package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var opts Options
	opts.ApplyDefaults()

	assert.Equal(t, "variable", opts.VarName)
	assert.Equal(t, "value", opts.ValueName)
	assert.Equal(t, "Row", opts.IndexColName)
	assert.Equal(t, "DataType", opts.DataTypeCol)
	assert.Equal(t, "Data", opts.OutputSheetName)
	assert.Equal(t, "append", opts.SQLMode)
	assert.Equal(t, "site_names", opts.SQLLookupTable)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	opts := Options{VarName: "Month", SQLMode: "replace"}
	opts.ApplyDefaults()

	assert.Equal(t, "Month", opts.VarName)
	assert.Equal(t, "replace", opts.SQLMode)
	assert.Equal(t, "value", opts.ValueName)
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depivot.yaml")
	content := `
id_vars: [Site, Category]
var_name: Month
drop_na: true
exclude_totals: true
summary_patterns: [total, rollup]
validation_rules:
  enabled: true
  pre_processing:
    - rule: check_null_values
      severity: error
      params:
        threshold: 0.1
      message: "Column {column} has {percent}% nulls"
    - rule: check_duplicates
      enabled: false
  validation_settings:
    stop_on_error: false
    max_warnings_display: 5
template_validation:
  file_structure:
    - check: expected_sheets
      severity: error
      params:
        required_sheets: [Data]
  settings:
    verbose: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Site", "Category"}, opts.IDVars)
	assert.Equal(t, "Month", opts.VarName)
	assert.True(t, opts.DropNA)
	assert.Equal(t, []string{"total", "rollup"}, opts.SummaryPatterns)

	// Defaults still fill fields the file omits.
	assert.Equal(t, "value", opts.ValueName)

	vr := opts.ValidationRules
	require.NotNil(t, vr)
	require.Len(t, vr.PreProcessing, 2)
	assert.Equal(t, "check_null_values", vr.PreProcessing[0].Rule)
	assert.Equal(t, "error", vr.PreProcessing[0].Severity)
	assert.Equal(t, 0.1, vr.PreProcessing[0].Params["threshold"])
	assert.True(t, vr.PreProcessing[0].IsEnabled())
	assert.False(t, vr.PreProcessing[1].IsEnabled())
	require.NotNil(t, vr.Settings.StopOnError)
	assert.False(t, *vr.Settings.StopOnError)
	assert.Equal(t, 5, vr.Settings.MaxWarningsDisplay)

	tv := opts.TemplateValidation
	require.NotNil(t, tv)
	require.Len(t, tv.FileStructure, 1)
	assert.Equal(t, "expected_sheets", tv.FileStructure[0].Check)
	assert.True(t, tv.Settings.Verbose)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	enabled := true
	opts := &Options{
		IDVars:        []string{"Site"},
		VarName:       "Month",
		DropNA:        true,
		ExcludeTotals: true,
		ValidationRules: &ValidationConfig{
			Enabled: &enabled,
			PostProcessing: []RuleConfig{{
				Rule:   "check_totals_match",
				Params: map[string]any{"tolerance": 0.5},
			}},
		},
	}

	path := filepath.Join(t.TempDir(), "nested", "depivot.yaml")
	require.NoError(t, Save(path, opts))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, opts.IDVars, loaded.IDVars)
	assert.Equal(t, "Month", loaded.VarName)
	assert.True(t, loaded.DropNA)
	require.NotNil(t, loaded.ValidationRules)
	require.Len(t, loaded.ValidationRules.PostProcessing, 1)
	assert.Equal(t, 0.5, loaded.ValidationRules.PostProcessing[0].Params["tolerance"])
}

// =============================================================================
// depivot - Configuration Module
// =============================================================================
//
// This module loads and saves the tool's YAML configuration. One file carries
// the pipeline options (column roles, output naming, metadata settings, SQL
// target) plus two optional rule blocks:
//
//   validation_rules:     data-quality rule configs (pre/post phases)
//   template_validation:  structural check configs (three phases)
//
// CLI flags always take precedence over values loaded from the file; the
// merge happens in cmd/ where flag changes are visible.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// PIPELINE OPTIONS
// =============================================================================

// Options holds every tunable of the depivot pipeline. Zero values mean
// "use default"; ApplyDefaults fills them in after load.
type Options struct {
	// IDVars are the identifier columns kept as-is on every output row.
	// When empty, a synthetic row-index column is added.
	IDVars []string `yaml:"id_vars,omitempty"`

	// ValueVars are the wide columns to unpivot. When empty, every non-id
	// column is unpivoted.
	ValueVars []string `yaml:"value_vars,omitempty"`

	// VarName is the output column holding the former column headers.
	// Default: "variable"
	VarName string `yaml:"var_name,omitempty"`

	// ValueName is the output column holding the cell values.
	// Default: "value"
	ValueName string `yaml:"value_name,omitempty"`

	// IndexColName names the synthetic identifier column added when no
	// IDVars are configured. Default: "Row"
	IndexColName string `yaml:"index_col_name,omitempty"`

	// DataTypeCol names the derived data-type column. Default: "DataType"
	DataTypeCol string `yaml:"data_type_col,omitempty"`

	// DataTypeOverride forces the data type instead of detecting it from
	// the sheet name (e.g. "Budget").
	DataTypeOverride string `yaml:"data_type_override,omitempty"`

	// ForecastStart is the month ("Jun") from which Actual sheets are
	// re-tagged as Forecast, per row, based on the variable column.
	ForecastStart string `yaml:"forecast_start,omitempty"`

	// ReleaseDate in YYYY-MM form. Auto-extracted from the input filename
	// when empty.
	ReleaseDate string `yaml:"release_date,omitempty"`

	// SheetNames restricts processing to these sheets; SkipSheets removes
	// sheets from the default all-sheets selection.
	SheetNames []string `yaml:"sheet_names,omitempty"`
	SkipSheets []string `yaml:"skip_sheets,omitempty"`

	// IncludeCols / ExcludeCols filter which columns participate at all.
	IncludeCols []string `yaml:"include_cols,omitempty"`
	ExcludeCols []string `yaml:"exclude_cols,omitempty"`

	// HeaderRow is the 0-indexed row containing column headers.
	HeaderRow int `yaml:"header_row,omitempty"`

	// DropNA removes long-form rows whose value is missing.
	DropNA bool `yaml:"drop_na,omitempty"`

	// CombineSheets merges every sheet's long frame into a single output
	// sheet named OutputSheetName (default "Data").
	CombineSheets   bool   `yaml:"combine_sheets,omitempty"`
	OutputSheetName string `yaml:"output_sheet_name,omitempty"`

	// ExcludeTotals filters summary rows (Grand Total, Subtotal, ...)
	// before processing; SummaryPatterns overrides the detection patterns.
	ExcludeTotals   bool     `yaml:"exclude_totals,omitempty"`
	SummaryPatterns []string `yaml:"summary_patterns,omitempty"`

	// NoValidate skips the reconciliation report.
	NoValidate bool `yaml:"no_validate,omitempty"`

	// SQL upload target.
	SQLConnString  string `yaml:"sql_connection_string,omitempty"`
	SQLTable       string `yaml:"sql_table,omitempty"`
	SQLMode        string `yaml:"sql_mode,omitempty"`
	SQLLookupTable string `yaml:"sql_lookup_table,omitempty"`

	// ValidationRules configures the data-quality engine; nil disables it.
	ValidationRules *ValidationConfig `yaml:"validation_rules,omitempty"`

	// TemplateValidation configures the structural validator; nil disables it.
	TemplateValidation *TemplateConfig `yaml:"template_validation,omitempty"`
}

// ApplyDefaults fills unset options with their documented defaults.
func (o *Options) ApplyDefaults() {
	if o.VarName == "" {
		o.VarName = "variable"
	}
	if o.ValueName == "" {
		o.ValueName = "value"
	}
	if o.IndexColName == "" {
		o.IndexColName = "Row"
	}
	if o.DataTypeCol == "" {
		o.DataTypeCol = "DataType"
	}
	if o.OutputSheetName == "" {
		o.OutputSheetName = "Data"
	}
	if o.SQLMode == "" {
		o.SQLMode = "append"
	}
	if o.SQLLookupTable == "" {
		o.SQLLookupTable = "site_names"
	}
}

// =============================================================================
// DATA-QUALITY RULE CONFIGURATION
// =============================================================================

// ValidationConfig is the validation_rules block.
type ValidationConfig struct {
	// Enabled defaults to true; a disabled engine runs no rules at all.
	Enabled *bool `yaml:"enabled,omitempty"`

	// PreProcessing and PostProcessing are ordered rule lists evaluated
	// against the raw frame and the (source, processed) pair respectively.
	PreProcessing  []RuleConfig `yaml:"pre_processing,omitempty"`
	PostProcessing []RuleConfig `yaml:"post_processing,omitempty"`

	Settings ValidationSettings `yaml:"validation_settings,omitempty"`
}

// ValidationSettings are engine-wide controls.
type ValidationSettings struct {
	// StopOnError halts a phase at the first failed error-severity rule.
	// Default: true
	StopOnError *bool `yaml:"stop_on_error,omitempty"`

	// MaxWarningsDisplay caps listed warnings in reports. Default: 20
	MaxWarningsDisplay int `yaml:"max_warnings_display,omitempty"`
}

// RuleConfig describes one data-quality rule instance.
type RuleConfig struct {
	// Rule is the registry name, e.g. "check_null_values".
	Rule string `yaml:"rule"`

	// Enabled defaults to true. Disabled rules are never instantiated.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Severity is "error", "warning" or "info". Default: "warning"
	Severity string `yaml:"severity,omitempty"`

	// Params are rule-specific knobs (thresholds, column lists, ...).
	Params map[string]any `yaml:"params,omitempty"`

	// Message is a template with {placeholder} substitution used when the
	// rule fails.
	Message string `yaml:"message,omitempty"`
}

// IsEnabled resolves the default-true enabled flag.
func (r RuleConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// =============================================================================
// TEMPLATE VALIDATION CONFIGURATION
// =============================================================================

// TemplateConfig is the template_validation block.
type TemplateConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`

	// The three phases: workbook metadata, raw sheet cells, loaded frame.
	FileStructure     []CheckConfig `yaml:"file_structure,omitempty"`
	SheetTemplate     []CheckConfig `yaml:"sheet_template,omitempty"`
	DataframeTemplate []CheckConfig `yaml:"dataframe_template,omitempty"`

	Settings TemplateSettings `yaml:"settings,omitempty"`
}

// TemplateSettings are validator-wide controls.
type TemplateSettings struct {
	StopOnError *bool `yaml:"stop_on_error,omitempty"`
	Verbose     bool  `yaml:"verbose,omitempty"`
}

// CheckConfig describes one structural check instance.
type CheckConfig struct {
	// Check is the check kind, e.g. "expected_sheets" or "header_row".
	Check string `yaml:"check"`

	Enabled  *bool          `yaml:"enabled,omitempty"`
	Severity string         `yaml:"severity,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`
	Message  string         `yaml:"message,omitempty"`
}

// IsEnabled resolves the default-true enabled flag.
func (c CheckConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads an Options file and applies defaults.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	opts.ApplyDefaults()
	return &opts, nil
}

// Save writes options to a YAML file, creating parent directories as needed.
func Save(path string, opts *Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// depivot - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command for unpivoting
// Excel workbooks. It merges config-file options with CLI flags (flags win),
// then dispatches to single-file, multi-file combine, or batch processing.
//
// COMMAND USAGE:
//   depivot process [input files...] [flags]
//
// PROCESSING PIPELINE:
//   1. Load configuration and merge CLI flags
//   2. Resolve input files (arguments or batch discovery)
//   3. For each file:
//      a. Template validation (structure, sheets, frame)
//      b. Pre-processing data quality rules
//      c. Wide-to-long transform with numeric normalization
//      d. Metadata derivation (DataType, ReleaseDate)
//      e. Post-processing data quality rules
//      f. Reconciliation report
//   4. Write workbook output and/or upload to database
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/depivot"
	"github.com/depivot-tools/depivot/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Output control.
	outputFile      string
	outputSuffix    string
	overwriteOutput bool
	dryRun          bool
	saveConfigPath  string

	// Column roles (comma-separated lists).
	idVarsFlag      string
	valueVarsFlag   string
	varNameFlag     string
	valueNameFlag   string
	includeColsFlag string
	excludeColsFlag string

	// Sheet selection and reading.
	sheetsFlag     string
	skipSheetsFlag string
	headerRowFlag  int

	// Transform behavior.
	dropNAFlag          bool
	combineSheetsFlag   bool
	outputSheetNameFlag string
	excludeTotalsFlag   bool
	summaryPatternsFlag string
	noValidateFlag      bool
	noQualityFlag       bool

	// Metadata derivation.
	dataTypeFlag      string
	forecastStartFlag string
	releaseDateFlag   string

	// Batch mode.
	batchMode     bool
	inputDirFlag  string
	outputDirFlag string
	patternFlag   string
	recursiveFlag bool

	// Database upload.
	sqlOnlyFlag        bool
	bothFlag           bool
	sqlConnFlag        string
	sqlTableFlag       string
	sqlModeFlag        string
	sqlLookupTableFlag string
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

// processCmd represents the 'process' command.
var processCmd = &cobra.Command{
	Use:   "process [input files...]",
	Short: "Unpivot Excel workbooks from wide to long format",
	Long: `The process command reads one or more Excel workbooks, validates them
against the configured template and data-quality rules, unpivots every
selected sheet from wide to long format, and writes the result with a
reconciliation report proving no values were lost.

Multiple input files are combined into a single output. With --batch, a
whole directory is processed file by file, concurrently; errors in one file
do not stop the others.

On mismatch, the Validation sheet of the output pinpoints the first row
whose totals drifted between source and result.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, args)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: <input>_unpivoted.xlsx)")
	processCmd.Flags().StringVar(&outputSuffix, "suffix", "_unpivoted", "Suffix for generated output filenames")
	processCmd.Flags().BoolVar(&overwriteOutput, "overwrite", false, "Allow overwriting existing output files")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be processed without writing output")
	processCmd.Flags().StringVar(&saveConfigPath, "save-config", "", "Write the effective configuration to a YAML file")

	processCmd.Flags().StringVar(&idVarsFlag, "id-vars", "", "Comma-separated identifier columns kept on every row")
	processCmd.Flags().StringVar(&valueVarsFlag, "value-vars", "", "Comma-separated columns to unpivot (default: all non-id columns)")
	processCmd.Flags().StringVar(&varNameFlag, "var-name", "", "Name for the variable column (default: variable)")
	processCmd.Flags().StringVar(&valueNameFlag, "value-name", "", "Name for the value column (default: value)")
	processCmd.Flags().StringVar(&includeColsFlag, "include-cols", "", "Only include these columns (comma-separated)")
	processCmd.Flags().StringVar(&excludeColsFlag, "exclude-cols", "", "Exclude these columns (comma-separated)")

	processCmd.Flags().StringVar(&sheetsFlag, "sheets", "", "Only process these sheets (comma-separated)")
	processCmd.Flags().StringVar(&skipSheetsFlag, "skip-sheets", "", "Skip these sheets (comma-separated)")
	processCmd.Flags().IntVar(&headerRowFlag, "header-row", 0, "0-indexed row containing column headers")

	processCmd.Flags().BoolVar(&dropNAFlag, "drop-na", false, "Drop rows with missing values after unpivoting")
	processCmd.Flags().BoolVar(&combineSheetsFlag, "combine", false, "Combine all sheets into one output sheet")
	processCmd.Flags().StringVar(&outputSheetNameFlag, "output-sheet-name", "", "Sheet name for combined output (default: Data)")
	processCmd.Flags().BoolVar(&excludeTotalsFlag, "exclude-totals", false, "Filter summary/total rows before processing")
	processCmd.Flags().StringVar(&summaryPatternsFlag, "summary-patterns", "", "Comma-separated substrings marking summary rows")
	processCmd.Flags().BoolVar(&noValidateFlag, "no-validate", false, "Skip the reconciliation report")
	processCmd.Flags().BoolVar(&noQualityFlag, "no-quality", false, "Skip data-quality validation rules")

	processCmd.Flags().StringVar(&dataTypeFlag, "data-type", "", "Override the detected data type (Actual/Budget/Forecast)")
	processCmd.Flags().StringVar(&forecastStartFlag, "forecast-start", "", "Month from which Actual rows become Forecast (e.g. Jun)")
	processCmd.Flags().StringVar(&releaseDateFlag, "release-date", "", "Release date YYYY-MM (default: extracted from filename)")

	processCmd.Flags().BoolVar(&batchMode, "batch", false, "Process every matching file in --input-dir")
	processCmd.Flags().StringVar(&inputDirFlag, "input-dir", "", "Input directory for batch mode")
	processCmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "Output directory for batch mode")
	processCmd.Flags().StringVar(&patternFlag, "pattern", "*.xlsx", "Filename pattern for batch discovery")
	processCmd.Flags().BoolVar(&recursiveFlag, "recursive", false, "Search subdirectories in batch mode")

	processCmd.Flags().BoolVar(&sqlOnlyFlag, "sql-only", false, "Upload to the database, skip workbook output")
	processCmd.Flags().BoolVar(&bothFlag, "both", false, "Write workbook output and upload to the database")
	processCmd.Flags().StringVar(&sqlConnFlag, "sql-conn", "", "Database connection string")
	processCmd.Flags().StringVar(&sqlTableFlag, "sql-table", "", "Target database table")
	processCmd.Flags().StringVar(&sqlModeFlag, "sql-mode", "", "Upload mode: append or replace (default: append)")
	processCmd.Flags().StringVar(&sqlLookupTableFlag, "sql-lookup-table", "", "Site mapping lookup table (default: site_names)")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	if saveConfigPath != "" {
		if err := config.Save(saveConfigPath, opts); err != nil {
			return err
		}
		fmt.Printf("Saved configuration to %s\n", saveConfigPath)
		if len(args) == 0 && !batchMode {
			return nil
		}
	}

	flags := depivot.RunFlags{
		Overwrite: overwriteOutput,
		Verbose:   verbose,
		SQLOnly:   sqlOnlyFlag,
		Both:      bothFlag,
		NoQuality: noQualityFlag,
	}
	processor := depivot.NewProcessor(opts, flags, logger, os.Stdout)
	ctx := context.Background()

	switch {
	case batchMode:
		if inputDirFlag == "" || outputDirFlag == "" {
			return fmt.Errorf("batch mode requires --input-dir and --output-dir")
		}
		if dryRun {
			return dryRunBatch()
		}

		batch, err := processor.ProcessBatch(ctx, inputDirFlag, outputDirFlag, patternFlag, recursiveFlag, outputSuffix)
		if err != nil {
			return err
		}
		if batch.ErrorLog != "" {
			fmt.Printf("Error details written to %s\n", batch.ErrorLog)
		}
		fmt.Printf("Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
		if len(batch.Failed) > 0 {
			return fmt.Errorf("%d file(s) failed", len(batch.Failed))
		}
		return nil

	case len(args) == 0:
		return fmt.Errorf("no input files given (or use --batch with --input-dir)")

	case len(args) > 1:
		if outputFile == "" {
			return fmt.Errorf("multiple input files require --output")
		}
		if dryRun {
			return dryRunFiles(args, outputFile)
		}

		stats, err := processor.ProcessMulti(ctx, args, outputFile)
		if err != nil {
			return err
		}
		printStats(stats, startTime)
		return nil

	default:
		input := args[0]
		output := outputFile
		if output == "" {
			output = utils.GenerateOutputFilename(input, outputSuffix, "xlsx")
		}
		if dryRun {
			return dryRunFiles(args, output)
		}

		stats, err := processor.ProcessFile(ctx, input, output)
		if err != nil {
			return err
		}
		printStats(stats, startTime)
		return nil
	}
}

// loadOptions builds the effective configuration: file first, then every
// flag the user actually set.
func loadOptions(cmd *cobra.Command) (*config.Options, error) {
	opts := &config.Options{}
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}
	opts.ApplyDefaults()

	setString := func(flag string, dst *string, value string) {
		if cmd.Flags().Changed(flag) {
			*dst = value
		}
	}
	setList := func(flag string, dst *[]string, value string) {
		if cmd.Flags().Changed(flag) {
			*dst = utils.ParseColumnList(value)
		}
	}
	setBool := func(flag string, dst *bool, value bool) {
		if cmd.Flags().Changed(flag) {
			*dst = value
		}
	}

	setList("id-vars", &opts.IDVars, idVarsFlag)
	setList("value-vars", &opts.ValueVars, valueVarsFlag)
	setString("var-name", &opts.VarName, varNameFlag)
	setString("value-name", &opts.ValueName, valueNameFlag)
	setList("include-cols", &opts.IncludeCols, includeColsFlag)
	setList("exclude-cols", &opts.ExcludeCols, excludeColsFlag)
	setList("sheets", &opts.SheetNames, sheetsFlag)
	setList("skip-sheets", &opts.SkipSheets, skipSheetsFlag)
	if cmd.Flags().Changed("header-row") {
		opts.HeaderRow = headerRowFlag
	}
	setBool("drop-na", &opts.DropNA, dropNAFlag)
	setBool("combine", &opts.CombineSheets, combineSheetsFlag)
	setString("output-sheet-name", &opts.OutputSheetName, outputSheetNameFlag)
	setBool("exclude-totals", &opts.ExcludeTotals, excludeTotalsFlag)
	setList("summary-patterns", &opts.SummaryPatterns, summaryPatternsFlag)
	setBool("no-validate", &opts.NoValidate, noValidateFlag)
	setString("data-type", &opts.DataTypeOverride, dataTypeFlag)
	setString("forecast-start", &opts.ForecastStart, forecastStartFlag)
	setString("release-date", &opts.ReleaseDate, releaseDateFlag)
	setString("sql-conn", &opts.SQLConnString, sqlConnFlag)
	setString("sql-table", &opts.SQLTable, sqlTableFlag)
	setString("sql-mode", &opts.SQLMode, sqlModeFlag)
	setString("sql-lookup-table", &opts.SQLLookupTable, sqlLookupTableFlag)

	return opts, nil
}

func dryRunFiles(inputs []string, output string) error {
	fmt.Println("Dry run - no output will be written")
	for _, f := range inputs {
		fmt.Printf("  would process: %s\n", f)
	}
	fmt.Printf("  would write:   %s\n", output)
	return nil
}

func dryRunBatch() error {
	files, err := utils.FindExcelFiles(inputDirFlag, patternFlag, recursiveFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Dry run - %d file(s) would be processed from %s\n", len(files), inputDirFlag)
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func printStats(stats *depivot.Stats, startTime time.Time) {
	fmt.Printf("Processed %d sheet(s), %d row(s) -> %s\n",
		stats.SheetsProcessed, stats.TotalRows, stats.OutputFile)
	fmt.Printf("Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
}

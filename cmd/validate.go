// =============================================================================
// depivot - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which runs template validation
// and the pre-processing data-quality rules against a workbook without
// transforming or writing anything. Useful for checking incoming files
// before a real run.
//
// COMMAND USAGE:
//   depivot validate <input-file> [flags]
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/depivot"
	"github.com/depivot-tools/depivot/internal/quality"
	"github.com/depivot-tools/depivot/internal/template"
)

// =============================================================================
// VALIDATE COMMAND DEFINITION
// =============================================================================

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate <input-file>",
	Short: "Validate a workbook without processing it",
	Long: `The validate command checks an Excel workbook against the configured
template (sheet structure, header rows, cell formats) and runs the
pre-processing data-quality rules on every selected sheet. No output is
written; the exit code reports whether the workbook would pass a real run.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args[0])
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(validateCmd)
}

// =============================================================================
// VALIDATION FUNCTION
// =============================================================================

func runValidate(cmd *cobra.Command, inputFile string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	f, err := excelize.OpenFile(inputFile)
	if err != nil {
		return fmt.Errorf("error reading Excel file %s: %w", inputFile, err)
	}
	defer f.Close()

	validator := template.NewValidator(opts.TemplateValidation, logger)
	if err := validator.ValidateFileStructure(f, inputFile); err != nil {
		return err
	}

	sheets, err := depivot.SelectSheets(f, opts.SheetNames, opts.SkipSheets)
	if err != nil {
		return err
	}

	var engine *quality.Engine
	if opts.ValidationRules != nil {
		engine = quality.NewEngine(opts.ValidationRules, logger)
	}

	failed := false
	for _, sheetName := range sheets {
		fmt.Printf("Validating sheet: %s\n", sheetName)

		if err := validator.ValidateSheetTemplate(f, sheetName); err != nil {
			return err
		}

		df, err := depivot.ReadSheet(f, sheetName, opts.HeaderRow)
		if err != nil {
			return err
		}

		if err := validator.ValidateFrameTemplate(df, sheetName); err != nil {
			return err
		}

		if engine != nil {
			results := engine.RunPreProcessing(&quality.Context{
				Pre:       df,
				SheetName: sheetName,
				InputFile: inputFile,
				IDVars:    opts.IDVars,
				ValueVars: opts.ValueVars,
				VarName:   opts.VarName,
				ValueName: opts.ValueName,
			})
			engine.Report(os.Stdout, results, "Pre-"+sheetName, verbose)
			if err := engine.CheckForErrors(results); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				failed = true
			}
		}
	}

	if failed {
		return fmt.Errorf("validation failed for %s", inputFile)
	}
	fmt.Printf("Validation passed: %s\n", inputFile)
	return nil
}

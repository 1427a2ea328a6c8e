// =============================================================================
// depivot - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands (like 'process', 'validate') are
// attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (depivot)
//   ├── processCmd (depivot process)
//   ├── validateCmd (depivot validate)
//   └── versionCmd (depivot version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Initializing structured logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the YAML configuration file. Empty means no
// config file; everything comes from flags and defaults.
var cfgFile string

// verbose enables verbose output and debug logging.
var verbose bool

// logger is the process-wide structured logger, configured in the
// persistent pre-run so --verbose is already parsed.
var logger *slog.Logger

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "depivot",
	Short: "Depivot - Transform wide Excel spreadsheets into long (tidy) format",
	Long: `Depivot is a CLI tool that unpivots wide-format Excel workbooks into
long (tidy) format, with data-quality validation, template validation, and
total reconciliation built into the pipeline.

Key Features:
  - Multi-sheet unpivoting with per-sheet or combined output
  - Configurable data-quality rules (nulls, duplicates, outliers, totals)
  - Three-phase Excel template validation
  - Reconciliation report proving totals survived the transform
  - DataType and ReleaseDate metadata derivation
  - Batch processing and direct database upload

Example Usage:
  depivot process data.xlsx --id-vars "Site,Category"
  depivot process --batch --input-dir ./in --output-dir ./out
  depivot validate data.xlsx --config rules.yaml`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// Persistent flags are available to this command and all subcommands.
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"Path to a YAML configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// depivot - Main Entry Point
// =============================================================================
//
// This is the main entry point for the depivot CLI application. It
// initializes the Cobra CLI framework and delegates command execution to the
// cmd package.
//
// USAGE:
//   depivot process    - Unpivot one or more Excel workbooks
//   depivot validate   - Validate a workbook without processing it
//   depivot version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Core business logic (not for external import)
//   - pkg/       : Shared utilities
//
// =============================================================================

package main

import (
	"github.com/depivot-tools/depivot/cmd"
)

func main() {
	cmd.Execute()
}

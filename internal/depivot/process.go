// =============================================================================
// depivot - Processing Pipeline
// =============================================================================
//
// Orchestrates the full run for one file, many files combined, or a batch
// directory. Per sheet, the order is fixed:
//
//   1. template sheet validation (raw cells)
//   2. read into a frame, drop summary rows if configured
//   3. template frame validation (columns)
//   4. pre-processing data quality rules, abort on error-severity failures
//   5. melt wide to long
//   6. normalize the value column
//   7. attach DataType and ReleaseDate metadata
//   8. post-processing data quality rules, abort on error-severity failures
//
// After all sheets: reconciliation report, then the requested outputs
// (workbook, database, or both).
//
// =============================================================================

package depivot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/config"
	"github.com/depivot-tools/depivot/internal/frame"
	"github.com/depivot-tools/depivot/internal/numeric"
	"github.com/depivot-tools/depivot/internal/quality"
	"github.com/depivot-tools/depivot/internal/sqlupload"
	"github.com/depivot-tools/depivot/internal/template"
	"github.com/depivot-tools/depivot/pkg/utils"
)

// RunFlags are per-invocation switches that live outside the config file.
type RunFlags struct {
	// Overwrite permits replacing an existing output file.
	Overwrite bool

	// Verbose prints per-sheet progress and full validation reports.
	Verbose bool

	// SQLOnly skips the workbook output; Both writes workbook and database.
	SQLOnly bool
	Both    bool

	// NoQuality disables the data-quality engine for this run.
	NoQuality bool
}

// Stats summarizes one processed file (or combined run).
type Stats struct {
	InputFile       string
	OutputFile      string
	SheetsProcessed int
	TotalRows       int
}

// Processor runs the depivot pipeline with a fixed configuration.
type Processor struct {
	opts  *config.Options
	flags RunFlags

	engine    *quality.Engine
	validator *template.Validator

	log *slog.Logger
	out io.Writer
}

// NewProcessor wires the quality engine and template validator from the
// options. The quality engine stays nil when disabled so sheet processing
// can skip it cheaply.
func NewProcessor(opts *config.Options, flags RunFlags, log *slog.Logger, out io.Writer) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}

	var engine *quality.Engine
	if !flags.NoQuality && opts.ValidationRules != nil {
		engine = quality.NewEngine(opts.ValidationRules, log)
	}

	return &Processor{
		opts:      opts,
		flags:     flags,
		engine:    engine,
		validator: template.NewValidator(opts.TemplateValidation, log),
		log:       log,
		out:       out,
	}
}

// =============================================================================
// SINGLE FILE
// =============================================================================

// ProcessFile runs the pipeline for one input workbook.
func (p *Processor) ProcessFile(ctx context.Context, inputFile, outputFile string) (*Stats, error) {
	if err := validateInputPath(inputFile); err != nil {
		return nil, err
	}

	excelOutput := !p.flags.SQLOnly
	sqlOutput := p.flags.SQLOnly || p.flags.Both

	if excelOutput {
		if err := validateOutputPath(outputFile, p.flags.Overwrite); err != nil {
			return nil, err
		}
	}

	f, err := excelize.OpenFile(inputFile)
	if err != nil {
		return nil, &FileProcessingError{
			Message: fmt.Sprintf("error reading Excel file %s", inputFile), Err: err}
	}
	defer f.Close()

	if err := p.validator.ValidateFileStructure(f, inputFile); err != nil {
		return nil, err
	}

	releaseDate := p.resolveReleaseDate(inputFile)

	sheets, err := SelectSheets(f, p.opts.SheetNames, p.opts.SkipSheets)
	if err != nil {
		return nil, err
	}
	if p.flags.Verbose {
		fmt.Fprintf(p.out, "Processing %d sheet(s)\n", len(sheets))
	}

	var (
		reconInputs []SheetRecon
		longSheets  []OutputSheet
		totalRows   int
	)
	for _, sheetName := range sheets {
		result, err := p.processSheet(f, inputFile, sheetName, releaseDate)
		if err != nil {
			return nil, &FileProcessingError{
				Message: fmt.Sprintf("error processing sheet '%s' in %s", sheetName, inputFile),
				Err:     err,
			}
		}
		reconInputs = append(reconInputs, SheetRecon{
			SheetName: sheetName,
			Source:    result.source,
			Processed: result.long,
			ValueVars: result.valueVars,
		})
		longSheets = append(longSheets, OutputSheet{Name: sheetName, Frame: result.long})
		totalRows += result.long.NumRows()
	}

	var recon *ReconReport
	if !p.opts.NoValidate {
		recon = BuildReconciliation(filepath.Base(inputFile), reconInputs, p.opts.IDVars, p.opts.ValueName)
		p.reportReconciliation(recon)
	}

	var combined *frame.Frame
	if sqlOutput || p.opts.CombineSheets {
		frames := make([]*frame.Frame, len(longSheets))
		for i, s := range longSheets {
			frames[i] = s.Frame
		}
		combined = concatFrames(frames)
	}

	if sqlOutput {
		if err := p.uploadToSQL(ctx, combined); err != nil {
			return nil, err
		}
	}

	if excelOutput {
		var output []OutputSheet
		if p.opts.CombineSheets {
			output = []OutputSheet{{Name: p.opts.OutputSheetName, Frame: combined}}
		} else {
			output = longSheets
		}
		if recon != nil {
			output = append(output, OutputSheet{Name: "Validation", Frame: recon.ToFrame()})
		}
		if err := WriteWorkbook(outputFile, output); err != nil {
			return nil, err
		}
		if p.flags.Verbose {
			fmt.Fprintf(p.out, "Wrote %d sheet(s) to %s\n", len(output), outputFile)
		}
	}

	return &Stats{
		InputFile:       inputFile,
		OutputFile:      outputFile,
		SheetsProcessed: len(longSheets),
		TotalRows:       totalRows,
	}, nil
}

// sheetResult carries one sheet's source frame, long frame, and the value
// columns that were actually unpivoted.
type sheetResult struct {
	source    *frame.Frame
	long      *frame.Frame
	valueVars []string
}

func (p *Processor) processSheet(f *excelize.File, inputFile, sheetName, releaseDate string) (*sheetResult, error) {
	if p.flags.Verbose {
		fmt.Fprintf(p.out, "  Processing sheet: %s\n", sheetName)
	}

	if err := p.validator.ValidateSheetTemplate(f, sheetName); err != nil {
		return nil, err
	}

	df, err := ReadSheet(f, sheetName, p.opts.HeaderRow)
	if err != nil {
		return nil, err
	}

	if p.opts.ExcludeTotals && len(p.opts.IDVars) > 0 {
		before := df.NumRows()
		df = df.Filter(func(row int) bool {
			return !IsSummaryRow(df, row, p.opts.IDVars, p.opts.SummaryPatterns)
		})
		if filtered := before - df.NumRows(); filtered > 0 && p.flags.Verbose {
			fmt.Fprintf(p.out, "    Filtered %d summary row(s) from %s\n", filtered, sheetName)
		}
	}

	if err := p.validator.ValidateFrameTemplate(df, sheetName); err != nil {
		return nil, err
	}

	if p.engine != nil {
		preCtx := &quality.Context{
			Pre:       df,
			SheetName: sheetName,
			InputFile: inputFile,
			IDVars:    p.opts.IDVars,
			ValueVars: p.opts.ValueVars,
			VarName:   p.opts.VarName,
			ValueName: p.opts.ValueName,
		}
		preResults := p.engine.RunPreProcessing(preCtx)
		if p.flags.Verbose {
			p.engine.Report(p.out, preResults, "Pre-"+sheetName, true)
		}
		if err := p.engine.CheckForErrors(preResults); err != nil {
			return nil, err
		}
	}

	if len(p.opts.IDVars) > 0 {
		if err := ValidateColumnsExist(df, p.opts.IDVars, sheetName); err != nil {
			return nil, err
		}
	}

	finalIDVars, finalValueVars, err := ResolveColumns(
		df, p.opts.IDVars, p.opts.ValueVars, p.opts.IncludeCols, p.opts.ExcludeCols)
	if err != nil {
		return nil, err
	}

	long, err := Melt(df, MeltOptions{
		IDVars:       p.opts.IDVars,
		ValueVars:    p.opts.ValueVars,
		VarName:      p.opts.VarName,
		ValueName:    p.opts.ValueName,
		IncludeCols:  p.opts.IncludeCols,
		ExcludeCols:  p.opts.ExcludeCols,
		DropNA:       p.opts.DropNA,
		IndexColName: p.opts.IndexColName,
	})
	if err != nil {
		return nil, err
	}

	// Normalize the value column so every downstream consumer sees float64
	// or NaN, never raw text.
	for i := 0; i < long.NumRows(); i++ {
		long.SetValue(i, p.opts.ValueName, numeric.Normalize(long.Value(i, p.opts.ValueName)))
	}

	p.attachMetadata(long, sheetName, releaseDate)

	if p.engine != nil {
		postCtx := &quality.Context{
			Pre:       df,
			Post:      long,
			SheetName: sheetName,
			InputFile: inputFile,
			IDVars:    finalIDVars,
			ValueVars: finalValueVars,
			VarName:   p.opts.VarName,
			ValueName: p.opts.ValueName,
		}
		postResults := p.engine.RunPostProcessing(postCtx)
		if p.flags.Verbose {
			p.engine.Report(p.out, postResults, "Post-"+sheetName, true)
		}
		if err := p.engine.CheckForErrors(postResults); err != nil {
			return nil, err
		}
	}

	if p.flags.Verbose {
		fmt.Fprintf(p.out, "    OK %d rows -> %d rows\n", df.NumRows(), long.NumRows())
	}
	return &sheetResult{source: df, long: long, valueVars: finalValueVars}, nil
}

// attachMetadata appends the DataType column and, when known, the
// ReleaseDate column. On Actual sheets with a forecast start configured, the
// data type is decided per row by the month in the variable column.
func (p *Processor) attachMetadata(long *frame.Frame, sheetName, releaseDate string) {
	baseType := p.opts.DataTypeOverride
	if baseType == "" {
		baseType = DetectDataType(sheetName)
	}

	if p.opts.ForecastStart != "" && baseType == "Actual" && long.HasColumn(p.opts.VarName) {
		long.AppendColumn(p.opts.DataTypeCol, func(row int) any {
			month := frame.CellString(long.Value(row, p.opts.VarName))
			if IsForecastMonth(month, p.opts.ForecastStart) {
				return "Forecast"
			}
			return "Actual"
		})
	} else {
		long.AppendColumn(p.opts.DataTypeCol, func(row int) any { return baseType })
	}

	if releaseDate != "" {
		long.AppendColumn("ReleaseDate", func(row int) any { return releaseDate })
	}
}

func (p *Processor) resolveReleaseDate(inputFile string) string {
	releaseDate := p.opts.ReleaseDate
	if releaseDate == "" {
		releaseDate = ExtractReleaseDate(filepath.Base(inputFile))
		if releaseDate != "" && p.flags.Verbose {
			fmt.Fprintf(p.out, "Auto-detected release date: %s\n", releaseDate)
		}
	}
	if releaseDate == "" {
		p.log.Warn("could not extract release date from filename, no ReleaseDate column will be added",
			"file", filepath.Base(inputFile))
	}
	return releaseDate
}

func (p *Processor) reportReconciliation(recon *ReconReport) {
	if recon.HasMismatches() {
		fmt.Fprintln(p.out, "WARNING: Validation found mismatches!")
		for _, row := range recon.Mismatches() {
			label := row.Category
			if label == "" {
				label = frame.CellString(firstNonNil(row.IDValues))
			}
			fmt.Fprintf(p.out, "  %s / %s / %s: source=%.2f processed=%.2f diff=%.2f\n",
				row.SourceFile, row.Sheet, label,
				row.SourceTotal, row.ProcessedTotal, row.Difference)
		}
	} else if p.flags.Verbose {
		fmt.Fprintln(p.out, "Validation: All totals match!")
	}
}

func (p *Processor) uploadToSQL(ctx context.Context, combined *frame.Frame) error {
	if p.opts.SQLConnString == "" || p.opts.SQLTable == "" {
		return &ValidationError{Message: "SQL upload requires a connection string and a target table"}
	}
	if err := sqlupload.ValidateConnection(ctx, p.opts.SQLConnString); err != nil {
		return err
	}

	if p.flags.Verbose {
		fmt.Fprintln(p.out, "Fetching site mapping from database...")
	}
	mapping, err := sqlupload.FetchSiteMapping(ctx, p.opts.SQLConnString, p.opts.SQLLookupTable)
	if err != nil {
		return err
	}
	if p.flags.Verbose {
		fmt.Fprintf(p.out, "Fetched %d site mapping(s)\n", len(mapping))
	}

	sqlFrame, err := sqlupload.TransformForSQL(combined, mapping, p.opts.VarName, p.opts.ValueName, p.log)
	if err != nil {
		return err
	}

	stats, err := sqlupload.Upload(ctx, p.opts.SQLConnString, p.opts.SQLTable, p.opts.SQLMode, sqlFrame, p.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "SQL: Uploaded %d rows to %s (mode: %s)\n",
		stats.RowsUploaded, stats.Table, stats.Mode)
	return nil
}

// =============================================================================
// MULTI-FILE COMBINE
// =============================================================================

// ProcessMulti runs the pipeline over several workbooks and writes one
// combined output. Reconciliation runs per file and the reports merge into a
// single Validation sheet.
func (p *Processor) ProcessMulti(ctx context.Context, inputFiles []string, outputFile string) (*Stats, error) {
	excelOutput := !p.flags.SQLOnly
	sqlOutput := p.flags.SQLOnly || p.flags.Both

	if excelOutput {
		if err := validateOutputPath(outputFile, p.flags.Overwrite); err != nil {
			return nil, err
		}
	}
	if p.flags.Verbose {
		fmt.Fprintf(p.out, "Processing %d file(s) into combined output\n", len(inputFiles))
	}

	var (
		allFrames   []*frame.Frame
		mergedRecon *ReconReport
		totalSheets int
		totalRows   int
	)
	for _, inputFile := range inputFiles {
		if err := validateInputPath(inputFile); err != nil {
			return nil, err
		}
		if p.flags.Verbose {
			fmt.Fprintf(p.out, "  Processing file: %s\n", filepath.Base(inputFile))
		}

		f, err := excelize.OpenFile(inputFile)
		if err != nil {
			return nil, &FileProcessingError{
				Message: fmt.Sprintf("error reading Excel file %s", inputFile), Err: err}
		}

		stats, reconInputs, err := p.processWorkbook(f, inputFile)
		f.Close()
		if err != nil {
			return nil, err
		}

		for _, r := range reconInputs {
			allFrames = append(allFrames, r.Processed)
		}
		totalSheets += len(reconInputs)
		totalRows += stats

		if !p.opts.NoValidate {
			recon := BuildReconciliation(filepath.Base(inputFile), reconInputs, p.opts.IDVars, p.opts.ValueName)
			if mergedRecon == nil {
				mergedRecon = recon
			} else {
				mergedRecon.Merge(recon)
			}
		}
	}

	combined := concatFrames(allFrames)

	if mergedRecon != nil {
		p.reportReconciliation(mergedRecon)
	}

	if sqlOutput {
		if err := p.uploadToSQL(ctx, combined); err != nil {
			return nil, err
		}
	}

	if excelOutput {
		output := []OutputSheet{{Name: p.opts.OutputSheetName, Frame: combined}}
		if mergedRecon != nil {
			output = append(output, OutputSheet{Name: "Validation", Frame: mergedRecon.ToFrame()})
		}
		if err := WriteWorkbook(outputFile, output); err != nil {
			return nil, err
		}
	}

	return &Stats{
		InputFile:       strings.Join(inputFiles, ", "),
		OutputFile:      outputFile,
		SheetsProcessed: totalSheets,
		TotalRows:       totalRows,
	}, nil
}

// processWorkbook runs phase 1 validation plus the per-sheet pipeline for an
// already-open workbook, returning the total long rows and per-sheet
// reconciliation inputs.
func (p *Processor) processWorkbook(f *excelize.File, inputFile string) (int, []SheetRecon, error) {
	if err := p.validator.ValidateFileStructure(f, inputFile); err != nil {
		return 0, nil, err
	}

	releaseDate := p.resolveReleaseDate(inputFile)

	sheets, err := SelectSheets(f, p.opts.SheetNames, p.opts.SkipSheets)
	if err != nil {
		return 0, nil, err
	}

	var reconInputs []SheetRecon
	totalRows := 0
	for _, sheetName := range sheets {
		result, err := p.processSheet(f, inputFile, sheetName, releaseDate)
		if err != nil {
			return 0, nil, &FileProcessingError{
				Message: fmt.Sprintf("error processing sheet '%s' in %s", sheetName, inputFile),
				Err:     err,
			}
		}
		reconInputs = append(reconInputs, SheetRecon{
			SheetName: sheetName,
			Source:    result.source,
			Processed: result.long,
			ValueVars: result.valueVars,
		})
		totalRows += result.long.NumRows()
	}
	return totalRows, reconInputs, nil
}

// =============================================================================
// BATCH
// =============================================================================

// BatchResult records one file's outcome in a batch run.
type BatchResult struct {
	InputFile string
	Stats     *Stats
	Err       error
}

// BatchStats aggregates a batch run.
type BatchStats struct {
	Successful []BatchResult
	Failed     []BatchResult
	ErrorLog   string
}

// ProcessBatch discovers workbooks under inputDir and processes each into
// outputDir, one worker goroutine per file. Failures don't stop the batch;
// they are collected into an error log in outputDir.
func (p *Processor) ProcessBatch(ctx context.Context, inputDir, outputDir, pattern string, recursive bool, suffix string) (*BatchStats, error) {
	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return nil, &FileProcessingError{Message: fmt.Sprintf("input path is not a directory: %s", inputDir)}
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	files, err := utils.FindExcelFiles(inputDir, pattern, recursive)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.log.Warn("no files matching pattern", "pattern", pattern, "dir", inputDir)
		return &BatchStats{}, nil
	}
	fmt.Fprintf(p.out, "Found %d file(s) to process\n", len(files))

	results := make(chan BatchResult, len(files))
	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(inputFile string) {
			defer wg.Done()
			base := filepath.Base(inputFile)
			stem := strings.TrimSuffix(base, filepath.Ext(base))
			outputFile := filepath.Join(outputDir, stem+suffix+".xlsx")

			stats, err := p.ProcessFile(ctx, inputFile, outputFile)
			results <- BatchResult{InputFile: inputFile, Stats: stats, Err: err}
		}(file)
	}
	wg.Wait()
	close(results)

	batch := &BatchStats{}
	failures := map[string]string{}
	for result := range results {
		if result.Err != nil {
			batch.Failed = append(batch.Failed, result)
			failures[result.InputFile] = result.Err.Error()
			fmt.Fprintf(p.out, "ERROR %s: %v\n", filepath.Base(result.InputFile), result.Err)
		} else {
			batch.Successful = append(batch.Successful, result)
			fmt.Fprintf(p.out, "OK %s\n", filepath.Base(result.InputFile))
		}
	}

	if len(failures) > 0 {
		logPath, logErr := utils.WriteErrorLog(outputDir, failures)
		if logErr != nil {
			p.log.Warn("failed to write batch error log", "error", logErr)
		} else {
			batch.ErrorLog = logPath
		}
	}

	fmt.Fprintf(p.out, "\nSummary: %d successful, %d failed\n",
		len(batch.Successful), len(batch.Failed))
	return batch, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// concatFrames stacks frames vertically. Columns are the union in
// first-seen order; frames missing a column contribute nil cells.
func concatFrames(frames []*frame.Frame) *frame.Frame {
	var columns []string
	seen := map[string]bool{}
	for _, df := range frames {
		for _, col := range df.Columns() {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	out := frame.New(columns)
	for _, df := range frames {
		for i := 0; i < df.NumRows(); i++ {
			row := make([]any, len(columns))
			for j, col := range columns {
				if df.HasColumn(col) {
					row[j] = df.Value(i, col)
				}
			}
			out.AppendRow(row)
		}
	}
	return out
}

func firstNonNil(values []any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func validateInputPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return validationErrorf("file not found: %s", path)
	}
	if info.IsDir() {
		return validationErrorf("path is not a file: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".xls" {
		return validationErrorf("invalid file extension: %s. Expected one of: .xlsx, .xls", ext)
	}
	return nil
}

func validateOutputPath(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return validationErrorf(
			"output file already exists: %s. Use --overwrite to overwrite existing files", path)
	}
	return nil
}

package depivot

import "fmt"

// ValidationError reports invalid inputs: missing files, bad extensions,
// refusing to overwrite existing output.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ColumnError reports a bad column specification: missing columns or an
// id/value overlap.
type ColumnError struct {
	Message string
}

func (e *ColumnError) Error() string { return e.Message }

// SheetError reports a bad sheet selection.
type SheetError struct {
	Message string
}

func (e *SheetError) Error() string { return e.Message }

// FileProcessingError wraps any failure while processing one input file,
// keeping the file and sheet in the message for batch-run logs.
type FileProcessingError struct {
	Message string
	Err     error
}

func (e *FileProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FileProcessingError) Unwrap() error { return e.Err }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func columnErrorf(format string, args ...any) *ColumnError {
	return &ColumnError{Message: fmt.Sprintf(format, args...)}
}

func sheetErrorf(format string, args ...any) *SheetError {
	return &SheetError{Message: fmt.Sprintf(format, args...)}
}

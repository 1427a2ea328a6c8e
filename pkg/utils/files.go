// =============================================================================
// depivot - File Utilities
// =============================================================================
//
// Filesystem helpers shared by the pipeline and the CLI: workbook discovery,
// output naming, column-list parsing, and batch error logs.
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// FindExcelFiles returns the files under dir matching pattern, sorted. With
// recursive set, the pattern is matched at any depth.
func FindExcelFiles(dir, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*.xlsx"
	}

	glob := pattern
	if recursive {
		glob = filepath.Join("**", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), glob)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern '%s': %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(dir, m)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, full)
	}
	sort.Strings(files)
	return files, nil
}

// GenerateOutputFilename derives "data.xlsx" -> "data<suffix>.<format>" in
// the input file's directory.
func GenerateOutputFilename(inputPath, suffix, format string) string {
	if suffix == "" {
		suffix = "_unpivoted"
	}
	if format == "" {
		format = "xlsx"
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("%s%s.%s", stem, suffix, format))
}

// ParseColumnList splits a comma-separated column string, trimming
// whitespace and dropping empty entries.
func ParseColumnList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureDir creates a directory and its parents when missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// WriteErrorLog writes batch failure details to a uniquely named log file in
// dir and returns its path. Each entry is "file: error" on its own line.
func WriteErrorLog(dir string, failures map[string]string) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	logPath := filepath.Join(dir, fmt.Sprintf("depivot_errors_%s.log", uuid.New().String()))

	var b strings.Builder
	fmt.Fprintf(&b, "depivot batch errors - %s\n\n", time.Now().Format(time.RFC3339))
	files := make([]string, 0, len(failures))
	for file := range failures {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		fmt.Fprintf(&b, "%s: %s\n", file, failures[file])
	}

	if err := os.WriteFile(logPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}
	return logPath, nil
}

package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
}

func TestFindExcelFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.xlsx"))
	touch(t, filepath.Join(dir, "a.xlsx"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "sub", "c.xlsx"))

	files, err := FindExcelFiles(dir, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.xlsx"),
		filepath.Join(dir, "b.xlsx"),
	}, files)

	files, err = FindExcelFiles(dir, "*.xlsx", true)
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join(dir, "sub", "c.xlsx"))
	assert.Len(t, files, 3)

	files, err = FindExcelFiles(dir, "*.txt", false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, files)
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t,
		filepath.Join("data", "report_unpivoted.xlsx"),
		GenerateOutputFilename(filepath.Join("data", "report.xlsx"), "", ""))

	assert.Equal(t,
		filepath.Join("data", "report_long.csv"),
		GenerateOutputFilename(filepath.Join("data", "report.xlsx"), "_long", "csv"))
}

func TestParseColumnList(t *testing.T) {
	assert.Equal(t, []string{"Site", "Category"}, ParseColumnList(" Site , Category "))
	assert.Equal(t, []string{"Site"}, ParseColumnList("Site,,"))
	assert.Nil(t, ParseColumnList(""))
}

func TestWriteErrorLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	failures := map[string]string{
		"b.xlsx": "bad header",
		"a.xlsx": "missing sheet",
	}

	path, err := WriteErrorLog(dir, failures)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "a.xlsx: missing sheet")
	assert.Contains(t, content, "b.xlsx: bad header")
	// Entries are sorted by file name.
	assert.Less(t, strings.Index(content, "a.xlsx"), strings.Index(content, "b.xlsx"))
}

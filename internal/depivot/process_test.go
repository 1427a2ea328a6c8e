package depivot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depivot-tools/depivot/internal/frame"
)

func TestConcatFrames(t *testing.T) {
	a := frame.New([]string{"Site", "value"})
	a.AppendRow([]any{"Alpha", 1.0})

	b := frame.New([]string{"Site", "value", "DataType"})
	b.AppendRow([]any{"Beta", 2.0, "Budget"})

	out := concatFrames([]*frame.Frame{a, b})

	assert.Equal(t, []string{"Site", "value", "DataType"}, out.Columns())
	require.Equal(t, 2, out.NumRows())
	// Frames without a column contribute nil cells for it.
	assert.Nil(t, out.Value(0, "DataType"))
	assert.Equal(t, "Budget", out.Value(1, "DataType"))
}

func TestValidateInputPath(t *testing.T) {
	dir := t.TempDir()

	err := validateInputPath(filepath.Join(dir, "missing.xlsx"))
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Message, "file not found")

	csv := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n"), 0o644))
	err = validateInputPath(csv)
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Message, "invalid file extension")

	require.ErrorAs(t, validateInputPath(dir), &valErr)

	xlsx := filepath.Join(dir, "data.xlsx")
	require.NoError(t, os.WriteFile(xlsx, []byte("stub"), 0o644))
	assert.NoError(t, validateInputPath(xlsx))
}

func TestValidateOutputPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.xlsx")

	assert.NoError(t, validateOutputPath(out, false))

	require.NoError(t, os.WriteFile(out, []byte("stub"), 0o644))
	err := validateOutputPath(out, false)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Message, "--overwrite")

	assert.NoError(t, validateOutputPath(out, true))
}

func TestFirstNonNil(t *testing.T) {
	assert.Equal(t, "x", firstNonNil([]any{nil, "x", "y"}))
	assert.Nil(t, firstNonNil([]any{nil, nil}))
	assert.Nil(t, firstNonNil(nil))
}

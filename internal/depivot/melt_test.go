package depivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depivot-tools/depivot/internal/frame"
)

func meltInput() *frame.Frame {
	f := frame.New([]string{"Site", "Jan", "Feb"})
	f.AppendRow([]any{"Alpha", 100.0, 200.0})
	f.AppendRow([]any{"Beta", 10.0, nil})
	return f
}

func TestMeltBlockOrder(t *testing.T) {
	long, err := Melt(meltInput(), MeltOptions{
		IDVars:    []string{"Site"},
		VarName:   "variable",
		ValueName: "value",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Site", "variable", "value"}, long.Columns())
	require.Equal(t, 4, long.NumRows())

	// Every Jan row comes before any Feb row.
	assert.Equal(t, []any{"Alpha", "Jan", 100.0}, long.Row(0))
	assert.Equal(t, []any{"Beta", "Jan", 10.0}, long.Row(1))
	assert.Equal(t, []any{"Alpha", "Feb", 200.0}, long.Row(2))
	assert.Equal(t, []any{"Beta", "Feb", nil}, long.Row(3))
}

func TestMeltDropNA(t *testing.T) {
	long, err := Melt(meltInput(), MeltOptions{
		IDVars:    []string{"Site"},
		VarName:   "variable",
		ValueName: "value",
		DropNA:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, long.NumRows())
	for i := 0; i < long.NumRows(); i++ {
		assert.False(t, frame.IsMissing(long.Value(i, "value")))
	}
}

func TestMeltSyntheticIndex(t *testing.T) {
	long, err := Melt(meltInput(), MeltOptions{
		ValueVars:    []string{"Jan"},
		VarName:      "variable",
		ValueName:    "value",
		IndexColName: "Row",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Row", "variable", "value"}, long.Columns())
	assert.Equal(t, 1, long.Value(0, "Row"))
	assert.Equal(t, 2, long.Value(1, "Row"))
}

func TestMeltIncludeExclude(t *testing.T) {
	long, err := Melt(meltInput(), MeltOptions{
		IDVars:      []string{"Site"},
		VarName:     "variable",
		ValueName:   "value",
		ExcludeCols: []string{"Feb"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, long.NumRows())
	assert.Equal(t, "Jan", long.Value(0, "variable"))

	long, err = Melt(meltInput(), MeltOptions{
		IDVars:      []string{"Site"},
		VarName:     "variable",
		ValueName:   "value",
		IncludeCols: []string{"Site", "Feb"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, long.NumRows())
	assert.Equal(t, "Feb", long.Value(0, "variable"))
}

func TestResolveColumnsErrors(t *testing.T) {
	df := meltInput()

	_, _, err := ResolveColumns(df, []string{"Site", "Jan", "Feb"}, nil, nil, nil)
	var colErr *ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Contains(t, colErr.Message, "no value columns")

	_, _, err = ResolveColumns(df, []string{"Site"}, []string{"Site", "Jan"}, nil, nil)
	require.ErrorAs(t, err, &colErr)
	assert.Contains(t, colErr.Message, "both id_vars and value_vars")
}

func TestValidateColumnsExist(t *testing.T) {
	df := meltInput()
	assert.NoError(t, ValidateColumnsExist(df, []string{"Site", "Jan"}, "Data"))

	err := ValidateColumnsExist(df, []string{"Site", "Region"}, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Region")
	assert.Contains(t, err.Error(), "sheet 'Data'")
	assert.Contains(t, err.Error(), "Available columns")
}

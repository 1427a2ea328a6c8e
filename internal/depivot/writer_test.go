package depivot

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/depivot-tools/depivot/internal/frame"
)

func TestWriteWorkbookRoundTrip(t *testing.T) {
	data := frame.New([]string{"Site", "variable", "value"})
	data.AppendRow([]any{"Alpha", "Jan", 100.0})
	data.AppendRow([]any{"Beta", "Jan", math.NaN()})

	recon := frame.New([]string{"Sheet", "Match"})
	recon.AppendRow([]any{"Data", "OK"})

	out := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteWorkbook(out, []OutputSheet{
		{Name: "Data", Frame: data},
		{Name: "Validation", Frame: recon},
	}))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	// The default Sheet1 is replaced, not left dangling.
	assert.Equal(t, []string{"Data", "Validation"}, f.GetSheetList())

	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Site", "variable", "value"}, rows[0])
	assert.Equal(t, "100", rows[1][2])
	// NaN comes back as an empty cell.
	assert.Len(t, rows[2], 2)

	rows, err = f.GetRows("Validation")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "OK", rows[1][1])
}

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

func TestReadRows(t *testing.T) {
	input := strings.Join([]string{
		"JFK Airport (Queens)\t1200",
		"Midtown Center (Manhattan)\t8",
		"no tab here",
		"Astoria (Queens)\tmany",
		"",
		"a\tb\tc",
		"Unknown Zone ID:999 (Unknown Borough)\t3",
	}, "\n")

	rows, skipped, err := ReadRows(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, []Row{
		{Label: "JFK Airport (Queens)", Count: 1200},
		{Label: "Midtown Center (Manhattan)", Count: 8},
		{Label: "Unknown Zone ID:999 (Unknown Borough)", Count: 3},
	}, rows)
}

func TestTopN(t *testing.T) {
	rows := []Row{
		{Label: "b", Count: 5},
		{Label: "a", Count: 5},
		{Label: "c", Count: 9},
		{Label: "d", Count: 1},
	}

	top := TopN(rows, 3)
	assert.Equal(t, []Row{{"c", 9}, {"a", 5}, {"b", 5}}, top)
	assert.Equal(t, "b", rows[0].Label, "input is left untouched")

	assert.Len(t, TopN(rows, 10), 4)
	assert.Empty(t, TopN(rows, 0))
}

func TestReadFiles(t *testing.T) {
	fs := corfs.NewMemFileSystem()
	require.NoError(t, fs.WriteFile("out/output-part-0", []byte("Jamaica (Queens)\t2\n")))
	require.NoError(t, fs.WriteFile("out/output-part-1", []byte("garbage\nHollis (Queens)\t1\n")))

	rows, skipped, err := ReadFiles(fs, []string{"out/output-part-0", "out/output-part-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.ElementsMatch(t, []Row{{"Jamaica (Queens)", 2}, {"Hollis (Queens)", 1}}, rows)

	_, _, err = ReadFiles(fs, []string{"out/missing"})
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, []Row{{"JFK Airport (Queens)", 1200}, {"Jamaica (Queens)", 2}}))
	assert.Equal(t, "Top 2 Busiest Pickup Locations:\n1. JFK Airport (Queens): 1,200\n2. Jamaica (Queens): 2\n", buf.String())

	buf.Reset()
	require.NoError(t, Print(&buf, nil))
	assert.Equal(t, "No data processed.\n", buf.String())
}

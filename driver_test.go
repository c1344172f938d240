package zonecount

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
	"github.com/ease-lab/zonecount/report"
)

// memRoot returns a directory of the shared in-memory filesystem private to t.
func memRoot(t *testing.T) string {
	return "mem://" + strings.ReplaceAll(t.Name(), "/", "_")
}

func writeSumInput(t *testing.T, root string, files, linesPerFile int) map[string]int64 {
	t.Helper()
	fs := corfs.InitFilesystem(corfs.Memory)
	expected := make(map[string]int64)
	for f := 0; f < files; f++ {
		var sb strings.Builder
		for i := 0; i < linesPerFile; i++ {
			key := fmt.Sprintf("zone-%d", (f*linesPerFile+i)%13)
			fmt.Fprintf(&sb, "%s,%d\n", key, i%4)
			expected[key] += int64(i % 4)
		}
		require.NoError(t, fs.WriteFile(fmt.Sprintf("%s/input/part-%d.txt", root, f), []byte(sb.String())))
	}
	return expected
}

func outputTotals(t *testing.T, d *Driver) map[string]int64 {
	t.Helper()
	rows, skipped, err := report.ReadFiles(corfs.InitFilesystem(corfs.Memory), d.Outputs())
	require.NoError(t, err)
	require.Zero(t, skipped)

	totals := make(map[string]int64)
	for _, row := range rows {
		totals[row.Label] += row.Count
	}
	return totals
}

func smallBins(root string) []Option {
	return []Option{
		WithInputs(root + "/input"),
		WithWorkingLocation(root + "/out"),
		WithSplitSize(200),
		WithMapBinSize(400),
		WithReduceBinSize(300),
		WithMaxConcurrency(3),
	}
}

func TestDriverRun(t *testing.T) {
	root := memRoot(t)
	expected := writeSumInput(t, root, 3, 100)

	app := &sumJob{}
	job := NewJob(app, app)
	job.Combine = app

	var handled []report.Row
	driver := NewDriver(job, smallBins(root)...)
	driver.OnResult(func(ctx context.Context, rows []report.Row) error {
		handled = rows
		return nil
	})
	require.NoError(t, driver.Run(context.Background()))

	assert.Greater(t, len(driver.Outputs()), 1, "output is spread over several reduce bins")
	assert.Equal(t, expected, outputTotals(t, driver))
	assert.Len(t, handled, len(expected))
	assert.Equal(t, int(job.intermediateBins), app.setups)
}

func TestDriverRunWithoutInputs(t *testing.T) {
	app := &sumJob{}
	driver := NewDriver(NewJob(app, app), WithWorkingLocation(memRoot(t)))
	assert.ErrorIs(t, driver.Run(context.Background()), errNoInputs)
}

func TestDriverRunFilesystemMismatch(t *testing.T) {
	root := memRoot(t)
	writeSumInput(t, root, 1, 10)

	app := &sumJob{}
	driver := NewDriver(NewJob(app, app), WithInputs(root+"/input"), WithWorkingLocation(t.TempDir()))
	assert.Error(t, driver.Run(context.Background()))
}

func TestDriverRunFailedTask(t *testing.T) {
	root := memRoot(t)
	writeSumInput(t, root, 2, 50)

	app := &sumJob{setupErr: fmt.Errorf("no lookup")}
	driver := NewDriver(NewJob(app, app), smallBins(root)...)

	err := driver.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduce task")
	assert.Empty(t, driver.Outputs())
}

func TestDriverResultHandlerError(t *testing.T) {
	root := memRoot(t)
	writeSumInput(t, root, 1, 10)

	app := &sumJob{}
	driver := NewDriver(NewJob(app, app), smallBins(root)...)
	driver.OnResult(func(ctx context.Context, rows []report.Row) error {
		return fmt.Errorf("sink unavailable")
	})
	assert.EqualError(t, driver.Run(context.Background()), "sink unavailable")
}

func TestOptions(t *testing.T) {
	c := &config{}
	for _, option := range []Option{
		WithSideInput("zones", "s3://bucket/taxi_zone_lookup.csv"),
		WithInputs("a", "b"),
		WithCleanup(false),
		WithTopN(20),
		WithLambda("zonecount_function"),
	} {
		option(c)
	}

	assert.Equal(t, map[string]string{"zones": "s3://bucket/taxi_zone_lookup.csv"}, c.SideInputs)
	assert.Equal(t, []string{"a", "b"}, c.Inputs)
	assert.False(t, c.Cleanup)
	assert.Equal(t, 20, c.TopN)
	assert.Equal(t, lambdaBackend, c.Backend)
	assert.Equal(t, "zonecount_function", c.LambdaFunctionName)

	WithKnative("executor.default.example.com:80")(c)
	assert.Equal(t, knativeBackend, c.Backend)
}

func TestNewConfigDefaults(t *testing.T) {
	c := newConfig()
	assert.Equal(t, int64(100*1024*1024), c.SplitSize)
	assert.Equal(t, 500, c.MaxConcurrency)
	assert.True(t, c.Cleanup)
	assert.Equal(t, localBackend, c.Backend)

	c.SideInputs["zones"] = "zones.csv"
	assert.Empty(t, newConfig().SideInputs, "side inputs are not shared between configs")
}

package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fio-analyzer/server/pkg/models"
)

func gridRun(id int64, host, blockSize string) models.TestRun {
	return models.TestRun{
		ID:               id,
		Hostname:         host,
		Protocol:         "Local",
		DriveModel:       "disk",
		DriveType:        "NVMe SSD",
		BlockSize:        blockSize,
		ReadWritePattern: "randread",
		QueueDepth:       8,
	}
}

func withIOPS(run models.TestRun, iops float64) models.TestRun {
	run.IOPS = f64Ptr(iops)
	return run
}

func withLatency(run models.TestRun, ms float64) models.TestRun {
	run.AvgLatency = f64Ptr(ms)
	return run
}

func TestBuildGridAggregatesCell(t *testing.T) {
	records := []models.TestRun{
		withIOPS(gridRun(1, "host-a", "4K"), 1000),
		withIOPS(gridRun(2, "host-a", "4K"), 3000),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS})
	require.NoError(t, err)

	require.Equal(t, []string{"host-a - Local - disk"}, grid.RowKeys)
	require.Equal(t, []string{"4K"}, grid.ColKeys)
	cell := grid.Cells[0][0]
	require.True(t, cell.HasData)
	require.NotNil(t, cell.Stats)
	assert.Equal(t, 2, cell.Stats.Count)
	assert.Equal(t, 1000.0, cell.Stats.Min)
	assert.Equal(t, 3000.0, cell.Stats.Max)
	assert.Equal(t, 2000.0, cell.Stats.Mean)
	assert.Equal(t, 100.0, cell.IntensityPercent)
}

func TestBuildGridBestOfKeepsSingleRun(t *testing.T) {
	records := []models.TestRun{
		withIOPS(gridRun(1, "host-a", "4K"), 1000),
		withIOPS(gridRun(2, "host-a", "4K"), 3000),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS, Mode: ModeBest})
	require.NoError(t, err)

	cell := grid.Cells[0][0]
	require.True(t, cell.HasData)
	require.NotNil(t, cell.BestRunID)
	assert.Equal(t, int64(2), *cell.BestRunID)
	assert.Equal(t, 3000.0, cell.Stats.Mean)
	assert.Equal(t, 1, cell.Stats.Count)
}

func TestBuildGridMissingMetricLeavesCellEmpty(t *testing.T) {
	records := []models.TestRun{
		gridRun(1, "host-a", "4K"), // no iops recorded
		withIOPS(gridRun(2, "host-a", "8K"), 2000),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS})
	require.NoError(t, err)

	require.Equal(t, []string{"4K", "8K"}, grid.ColKeys)
	empty := grid.Cells[0][0]
	assert.False(t, empty.HasData)
	assert.Nil(t, empty.Stats)
	assert.Equal(t, 0.0, empty.IntensityPercent)

	full := grid.Cells[0][1]
	assert.True(t, full.HasData)
	assert.Equal(t, 1, full.Stats.Count)
}

func TestBuildGridCrossProductHasExplicitEmptyCells(t *testing.T) {
	records := []models.TestRun{
		withIOPS(gridRun(1, "host-a", "4K"), 100),
		withIOPS(gridRun(2, "host-a", "8K"), 200),
		withIOPS(gridRun(3, "host-b", "4K"), 300),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS})
	require.NoError(t, err)

	require.Len(t, grid.Cells, 2)
	require.Len(t, grid.Cells[0], 2)
	require.Len(t, grid.Cells[1], 2)

	// host-b never ran 8K, the intersection still exists
	assert.False(t, grid.Cells[1][1].HasData)
	assert.Equal(t, 0.0, grid.Cells[1][1].IntensityPercent)
}

func TestBuildGridConservesRecords(t *testing.T) {
	records := []models.TestRun{
		withIOPS(gridRun(1, "host-a", "4K"), 100),
		withIOPS(gridRun(2, "host-a", "4K"), 150),
		withIOPS(gridRun(3, "host-a", "8K"), 200),
		withIOPS(gridRun(4, "host-b", "64K"), 300),
		withIOPS(models.TestRun{ID: 5, BlockSize: "4K"}, 400), // no host identity
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS})
	require.NoError(t, err)

	sum := 0
	for _, row := range grid.Cells {
		for _, cell := range row {
			if cell.Stats != nil {
				sum += cell.Stats.Count
			}
		}
	}
	assert.Equal(t, 4, sum)
	assert.Equal(t, 4, grid.TotalRecords)
}

func TestBuildGridLatencyIntensityInverts(t *testing.T) {
	records := []models.TestRun{
		withLatency(gridRun(1, "host-a", "4K"), 1.0),
		withLatency(gridRun(2, "host-a", "8K"), 4.0),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricAvgLatency})
	require.NoError(t, err)

	assert.Equal(t, 100.0, grid.Cells[0][0].IntensityPercent)
	assert.Equal(t, 0.0, grid.Cells[0][1].IntensityPercent)
}

func TestBuildGridIntensityBounds(t *testing.T) {
	records := []models.TestRun{
		withIOPS(gridRun(1, "host-a", "4K"), 10),
		withIOPS(gridRun(2, "host-a", "8K"), 5000),
		withIOPS(gridRun(3, "host-b", "4K"), 200),
		withLatency(withIOPS(gridRun(4, "host-b", "8K"), 900), 2),
	}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS})
	require.NoError(t, err)

	sawMax := false
	for _, row := range grid.Cells {
		for _, cell := range row {
			assert.GreaterOrEqual(t, cell.IntensityPercent, 0.0)
			assert.LessOrEqual(t, cell.IntensityPercent, 100.0)
			if cell.IntensityPercent == 100.0 {
				sawMax = true
			}
		}
	}
	assert.True(t, sawMax, "dataset maximum must normalize to exactly 100")
}

func TestBuildGridIdenticalDimensionsResetToDefaults(t *testing.T) {
	records := []models.TestRun{withIOPS(gridRun(1, "host-a", "4K"), 100)}
	grid, err := BuildGrid(records, Options{
		Metric: MetricIOPS,
		Rows:   DimBlockSize,
		Cols:   DimBlockSize,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultRowDimension, grid.RowDimension)
	assert.Equal(t, DefaultColDimension, grid.ColDimension)
}

func TestBuildGridSwapAxes(t *testing.T) {
	records := []models.TestRun{withIOPS(gridRun(1, "host-a", "4K"), 100)}
	grid, err := BuildGrid(records, Options{Metric: MetricIOPS, SwapAxes: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultColDimension, grid.RowDimension)
	assert.Equal(t, DefaultRowDimension, grid.ColDimension)
	assert.Equal(t, []string{"4K"}, grid.RowKeys)
}

func TestBuildGridRejectsUnknownSelection(t *testing.T) {
	_, err := BuildGrid(nil, Options{Metric: Metric("wat")})
	assert.Error(t, err)

	_, err = BuildGrid(nil, Options{Metric: MetricIOPS, Rows: Dimension("wat")})
	assert.Error(t, err)

	_, err = BuildGrid(nil, Options{Metric: MetricIOPS, Mode: AggregationMode("wat")})
	assert.Error(t, err)

	_, err = BuildGrid(nil, Options{Metric: MetricIOPS, Sort: SortMode("wat")})
	assert.Error(t, err)
}

func TestBuildGridEmptyInput(t *testing.T) {
	grid, err := BuildGrid(nil, Options{Metric: MetricIOPS})
	require.NoError(t, err)
	assert.Empty(t, grid.RowKeys)
	assert.Empty(t, grid.ColKeys)
	assert.Empty(t, grid.Cells)
	assert.Equal(t, 0, grid.TotalRecords)
}

package pivot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fio-analyzer/server/pkg/models"
)

func TestAggregateFoldsAllValues(t *testing.T) {
	runs := []models.TestRun{
		{IOPS: f64Ptr(1000)},
		{IOPS: f64Ptr(3000)},
	}
	s := Aggregate(runs, MetricIOPS)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1000.0, s.Min)
	assert.Equal(t, 3000.0, s.Max)
	assert.Equal(t, 2000.0, s.Mean)
}

func TestAggregateSkipsMissingMetrics(t *testing.T) {
	runs := []models.TestRun{
		{IOPS: nil},
		{IOPS: f64Ptr(500)},
		{IOPS: nil},
	}
	s := Aggregate(runs, MetricIOPS)
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 500.0, s.Min)
	assert.Equal(t, 500.0, s.Max)
	assert.Equal(t, 500.0, s.Mean)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, MetricIOPS)
	assert.Equal(t, 0, s.Count)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 0.0, s.Max)
	assert.Equal(t, 0.0, s.Mean)
}

func TestAggregateSkipsNonFinite(t *testing.T) {
	runs := []models.TestRun{
		{AvgLatency: f64Ptr(math.NaN())},
		{AvgLatency: f64Ptr(math.Inf(1))},
		{AvgLatency: f64Ptr(2.5)},
	}
	s := Aggregate(runs, MetricAvgLatency)
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 2.5, s.Mean)
}

func TestPickBestHigherWins(t *testing.T) {
	runs := []models.TestRun{
		{ID: 1, IOPS: f64Ptr(1000)},
		{ID: 2, IOPS: f64Ptr(3000)},
		{ID: 3, IOPS: nil},
	}
	best, val := pickBest(runs, MetricIOPS)
	assert.Equal(t, int64(2), best.ID)
	assert.Equal(t, 3000.0, val)
}

func TestPickBestLatencyLowerWins(t *testing.T) {
	runs := []models.TestRun{
		{ID: 1, AvgLatency: f64Ptr(4.0)},
		{ID: 2, AvgLatency: f64Ptr(1.0)},
	}
	best, val := pickBest(runs, MetricAvgLatency)
	assert.Equal(t, int64(2), best.ID)
	assert.Equal(t, 1.0, val)
}

func TestPickBestFirstEncounteredWinsTies(t *testing.T) {
	runs := []models.TestRun{
		{ID: 7, IOPS: f64Ptr(3000)},
		{ID: 8, IOPS: f64Ptr(3000)},
	}
	best, _ := pickBest(runs, MetricIOPS)
	assert.Equal(t, int64(7), best.ID)
}

func TestPickBestNoMetric(t *testing.T) {
	best, _ := pickBest([]models.TestRun{{ID: 1}}, MetricIOPS)
	assert.Nil(t, best)
}

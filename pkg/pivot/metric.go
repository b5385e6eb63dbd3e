// Package pivot turns flat collections of benchmark runs into the
// row-by-column grids behind the dashboard's heatmap, matrix and
// stacked-bar views. Every stage is a pure function over immutable
// snapshots: flatten, resolve dimension keys, bucket, aggregate,
// normalize, sort. Callers own any caching.
package pivot

import "github.com/fio-analyzer/server/pkg/models"

// Metric identifies which measurement of a run is being visualized.
type Metric string

const (
	MetricIOPS       Metric = "iops"
	MetricAvgLatency Metric = "avg_latency"
	MetricP70Latency Metric = "p70_latency"
	MetricP90Latency Metric = "p90_latency"
	MetricP95Latency Metric = "p95_latency"
	MetricP99Latency Metric = "p99_latency"
	MetricBandwidth  Metric = "bandwidth"
)

// AllMetrics lists every metric the engine understands, in display order.
func AllMetrics() []Metric {
	return []Metric{
		MetricIOPS,
		MetricAvgLatency,
		MetricP70Latency,
		MetricP90Latency,
		MetricP95Latency,
		MetricP99Latency,
		MetricBandwidth,
	}
}

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricIOPS, MetricAvgLatency, MetricP70Latency, MetricP90Latency,
		MetricP95Latency, MetricP99Latency, MetricBandwidth:
		return true
	}
	return false
}

// LowerIsBetter reports whether smaller values of m indicate better
// performance. Latencies invert; throughput metrics do not.
func (m Metric) LowerIsBetter() bool {
	switch m {
	case MetricAvgLatency, MetricP70Latency, MetricP90Latency,
		MetricP95Latency, MetricP99Latency:
		return true
	}
	return false
}

// Unit returns the display unit for m, or "" for unknown metrics.
func (m Metric) Unit() string {
	switch m {
	case MetricIOPS:
		return "IOPS"
	case MetricAvgLatency, MetricP70Latency, MetricP90Latency,
		MetricP95Latency, MetricP99Latency:
		return "ms"
	case MetricBandwidth:
		return "MB/s"
	}
	return ""
}

// Value extracts the measurement for m from a run. Nil means the run did
// not record that metric, which is different from measuring zero.
func (m Metric) Value(run models.TestRun) *float64 {
	switch m {
	case MetricIOPS:
		return run.IOPS
	case MetricAvgLatency:
		return run.AvgLatency
	case MetricP70Latency:
		return run.P70Latency
	case MetricP90Latency:
		return run.P90Latency
	case MetricP95Latency:
		return run.P95Latency
	case MetricP99Latency:
		return run.P99Latency
	case MetricBandwidth:
		return run.Bandwidth
	}
	return nil
}

package models

import "time"

// ServerInfo summarizes the runs recorded for one host/protocol/drive.
type ServerInfo struct {
	Hostname      string    `json:"hostname"`
	Protocol      string    `json:"protocol"`
	DriveModel    string    `json:"drive_model"`
	TestCount     int       `json:"test_count"`
	LastTestTime  time.Time `json:"last_test_time"`
	FirstTestTime time.Time `json:"first_test_time"`
}

// MetricSet carries the measured values of one run for time-series views.
type MetricSet struct {
	IOPS       *float64 `json:"iops"`
	AvgLatency *float64 `json:"avg_latency"`
	Bandwidth  *float64 `json:"bandwidth"`
	P70Latency *float64 `json:"p70_latency"`
	P90Latency *float64 `json:"p90_latency"`
	P95Latency *float64 `json:"p95_latency"`
	P99Latency *float64 `json:"p99_latency"`
}

// TimeSeriesPoint is one run flattened for chronological charts.
type TimeSeriesPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	Hostname         string    `json:"hostname"`
	Protocol         string    `json:"protocol"`
	DriveModel       string    `json:"drive_model"`
	DriveType        string    `json:"drive_type"`
	BlockSize        string    `json:"block_size"`
	ReadWritePattern string    `json:"read_write_pattern"`
	QueueDepth       int       `json:"queue_depth"`
	Metrics          MetricSet `json:"metrics"`
}

// TrendPoint is one chronological sample of a single metric, annotated
// with its change against the previous sample and a 3-point moving average.
type TrendPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	BlockSize        string    `json:"block_size"`
	ReadWritePattern string    `json:"read_write_pattern"`
	QueueDepth       int       `json:"queue_depth"`
	Value            float64   `json:"value"`
	Unit             string    `json:"unit"`
	MovingAvg        *float64  `json:"moving_avg"`
	PercentChange    string    `json:"percent_change,omitempty"`
}

// TrendSummary aggregates a trend window. OverallChange is "N/A" when the
// first sample is zero.
type TrendSummary struct {
	TotalPoints   int     `json:"total_points"`
	MinValue      float64 `json:"min_value"`
	MaxValue      float64 `json:"max_value"`
	AvgValue      float64 `json:"avg_value"`
	FirstValue    float64 `json:"first_value"`
	LastValue     float64 `json:"last_value"`
	OverallChange string  `json:"overall_change"`
}

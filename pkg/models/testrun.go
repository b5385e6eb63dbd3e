package models

import (
	"fmt"
	"time"
)

// TestRun is a single FIO benchmark execution: the device identity it ran
// against, the job configuration, and the extracted performance metrics.
// Metric fields are pointers because a missing measurement is not zero.
type TestRun struct {
	ID        int64      `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	TestDate  *time.Time `json:"test_date,omitempty"`

	// Device identity
	Hostname   string `json:"hostname,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	DriveModel string `json:"drive_model"`
	DriveType  string `json:"drive_type"`

	// Job configuration
	TestName         string `json:"test_name"`
	BlockSize        string `json:"block_size"`
	ReadWritePattern string `json:"read_write_pattern"`
	QueueDepth       int    `json:"queue_depth"`
	Duration         int    `json:"duration"`
	OutputFile       string `json:"output_file,omitempty"`
	NumJobs          *int   `json:"num_jobs"`
	Direct           *int   `json:"direct"`
	TestSize         string `json:"test_size,omitempty"`
	Sync             *int   `json:"sync"`
	IODepth          *int   `json:"iodepth"`

	// Run environment
	FioVersion    string   `json:"fio_version,omitempty"`
	JobRuntime    *int64   `json:"job_runtime"`
	Rwmixread     *int     `json:"rwmixread"`
	TotalIOsRead  *int64   `json:"total_ios_read"`
	TotalIOsWrite *int64   `json:"total_ios_write"`
	UsrCPU        *float64 `json:"usr_cpu"`
	SysCPU        *float64 `json:"sys_cpu"`

	// Performance metrics (null when the run did not produce them)
	IOPS       *float64 `json:"iops"`
	AvgLatency *float64 `json:"avg_latency"`
	Bandwidth  *float64 `json:"bandwidth"`
	P70Latency *float64 `json:"p70_latency"`
	P90Latency *float64 `json:"p90_latency"`
	P95Latency *float64 `json:"p95_latency"`
	P99Latency *float64 `json:"p99_latency"`

	Description      string `json:"description,omitempty"`
	UploadedFilePath string `json:"uploaded_file_path,omitempty"`
	IsLatest         bool   `json:"is_latest"`
}

// DeviceKey is the "hostname - protocol - model" combination used to
// identify one storage device across runs.
func (t TestRun) DeviceKey() string {
	return fmt.Sprintf("%s - %s - %s", t.Hostname, t.Protocol, t.DriveModel)
}

// EffectiveIODepth falls back to the queue depth when the run did not
// record an explicit iodepth (they are the same fio knob).
func (t TestRun) EffectiveIODepth() int {
	if t.IODepth != nil {
		return *t.IODepth
	}
	return t.QueueDepth
}

// DeviceGroup collects the runs that belong to one storage device.
type DeviceGroup struct {
	Hostname       string    `json:"hostname"`
	Protocol       string    `json:"protocol"`
	DriveModel     string    `json:"drive_model"`
	DriveType      string    `json:"drive_type"`
	Configurations []TestRun `json:"configurations"`
}

// TestRunFilter narrows list queries. Each slice is OR-ed internally and
// AND-ed against the other fields, matching the dashboard's filter bar.
type TestRunFilter struct {
	Hostnames  []string
	DriveTypes []string
	Protocols  []string
	Patterns   []string
	BlockSizes []string
	Limit      int
	Offset     int
}

// BulkUpdateFields are the metadata columns admins may rewrite after an
// import (imports default hostname/protocol/drive identity to placeholders).
type BulkUpdateFields struct {
	Description *string `json:"description,omitempty"`
	TestName    *string `json:"test_name,omitempty"`
	Hostname    *string `json:"hostname,omitempty"`
	Protocol    *string `json:"protocol,omitempty"`
	DriveType   *string `json:"drive_type,omitempty"`
	DriveModel  *string `json:"drive_model,omitempty"`
}

// Empty reports whether no field is set.
func (f BulkUpdateFields) Empty() bool {
	return f.Description == nil && f.TestName == nil && f.Hostname == nil &&
		f.Protocol == nil && f.DriveType == nil && f.DriveModel == nil
}

// BulkUpdateRequest is the payload of PUT /api/test-runs/bulk.
type BulkUpdateRequest struct {
	TestRunIDs []int64          `json:"test_run_ids"`
	Updates    BulkUpdateFields `json:"updates"`
}

// FilterOptions lists the distinct values present in the latest runs,
// one slice per dashboard filter control.
type FilterOptions struct {
	DriveModels          []string `json:"drive_models"`
	DriveTypes           []string `json:"drive_types"`
	Hostnames            []string `json:"hostnames"`
	Protocols            []string `json:"protocols"`
	HostDiskCombinations []string `json:"host_disk_combinations"`
	BlockSizes           []string `json:"block_sizes"`
	Patterns             []string `json:"patterns"`
	Syncs                []int    `json:"syncs"`
	QueueDepths          []int    `json:"queue_depths"`
	Directs              []int    `json:"directs"`
	NumJobs              []int    `json:"num_jobs"`
	TestSizes            []string `json:"test_sizes"`
	Durations            []int    `json:"durations"`
}

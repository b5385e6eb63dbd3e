// Package fio parses fio's JSON output format and extracts the fields the
// dashboard stores per run.
package fio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fio-analyzer/server/pkg/models"
)

// ErrNoJobs marks a syntactically valid document that carries no job
// results and therefore nothing to import.
var ErrNoJobs = errors.New("no jobs found in fio data")

// Report is the top-level document produced by fio --output-format=json.
type Report struct {
	FioVersion string  `json:"fio_version"`
	Timestamp  int64   `json:"timestamp"`
	UsrCPU     float64 `json:"usr_cpu"`
	SysCPU     float64 `json:"sys_cpu"`
	Jobs       []Job   `json:"jobs"`
}

// Job is one workload section of a report. Options holds the raw job
// options as strings, exactly as fio prints them.
type Job struct {
	Jobname    string            `json:"jobname"`
	Options    map[string]string `json:"job_options"`
	JobRuntime int64             `json:"job_runtime"`
	Duration   int64             `json:"duration"`
	Read       JobStats          `json:"read"`
	Write      JobStats          `json:"write"`
	Trim       JobStats          `json:"trim"`
}

// JobStats is the per-direction block of a job.
type JobStats struct {
	IOBytes   int64   `json:"io_bytes"`
	Bandwidth float64 `json:"bw"`
	BWBytes   int64   `json:"bw_bytes"`
	IOPS      float64 `json:"iops"`
	IOOps     int64   `json:"io_ops"`
	TotalIOs  int64   `json:"total_ios"`
	LatNs     Latency `json:"lat_ns"`
	ClatNs    Latency `json:"clat_ns"`
	SlatNs    Latency `json:"slat_ns"`
}

// Latency is fio's nanosecond latency block. Percentile keys look like
// "95.000000".
type Latency struct {
	Min        int64              `json:"min"`
	Max        int64              `json:"max"`
	Mean       float64            `json:"mean"`
	Stddev     float64            `json:"stddev"`
	Percentile map[string]float64 `json:"percentile"`
}

// Parse decodes a fio JSON document.
func Parse(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	return &r, nil
}

// TestRun extracts a run from the report's first job, defaulting the
// device identity to placeholders for admins to fill in later. Returns
// ErrNoJobs when the document has no jobs.
func (r *Report) TestRun(filename string, now time.Time) (models.TestRun, error) {
	if len(r.Jobs) == 0 {
		return models.TestRun{}, ErrNoJobs
	}
	job := r.Jobs[0]

	version := r.FioVersion
	if version == "" {
		version = "unknown"
	}
	testName := job.Jobname
	if testName == "" {
		testName = "unknown"
	}

	iodepth := job.optionInt("iodepth", 1)
	testDate := now
	run := models.TestRun{
		Timestamp:  now,
		TestDate:   &testDate,
		FioVersion: version,
		JobRuntime: &job.JobRuntime,
		Duration:   int(job.Duration / 1000),
		TestName:   testName,

		BlockSize:        job.option("bs", "4K"),
		ReadWritePattern: job.option("rw", "read"),
		QueueDepth:       iodepth,
		OutputFile:       job.option("filename", "testfile"),
		NumJobs:          intPtr(job.optionInt("numjobs", 1)),
		Direct:           intPtr(job.optionInt("direct", 0)),
		TestSize:         job.option("size", "1M"),
		Sync:             intPtr(job.optionInt("sync", 0)),
		IODepth:          intPtr(iodepth),

		IOPS:       f64Ptr(job.Read.IOPS + job.Write.IOPS),
		AvgLatency: f64Ptr(job.avgLatencyMs()),
		Bandwidth:  f64Ptr(float64(job.Read.BWBytes+job.Write.BWBytes) / (1024 * 1024)),
		P70Latency: f64Ptr(job.percentileLatencyMs(70)),
		P90Latency: f64Ptr(job.percentileLatencyMs(90)),
		P95Latency: f64Ptr(job.percentileLatencyMs(95)),
		P99Latency: f64Ptr(job.percentileLatencyMs(99)),

		TotalIOsRead:  int64Ptr(job.Read.TotalIOs),
		TotalIOsWrite: int64Ptr(job.Write.TotalIOs),
		UsrCPU:        f64Ptr(r.UsrCPU),
		SysCPU:        f64Ptr(r.SysCPU),

		Hostname:    "unknown",
		Protocol:    "Local",
		DriveType:   "Unknown",
		DriveModel:  "Unknown",
		Description: fmt.Sprintf("Imported from %s", filename),
		IsLatest:    true,
	}
	if mix := job.optionInt("rwmixread", -1); mix >= 0 {
		run.Rwmixread = &mix
	}
	return run, nil
}

func (j Job) option(name, fallback string) string {
	if v, ok := j.Options[name]; ok && v != "" {
		return v
	}
	return fallback
}

func (j Job) optionInt(name string, fallback int) int {
	v, ok := j.Options[name]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// avgLatencyMs weights the read and write mean latencies by their I/O
// counts and converts nanoseconds to milliseconds. Zero I/Os means zero
// latency, matching what the dashboard displays for idle directions.
func (j Job) avgLatencyMs() float64 {
	readIOs := float64(j.Read.IOOps)
	writeIOs := float64(j.Write.IOOps)
	total := readIOs + writeIOs
	if total == 0 {
		return 0
	}
	weighted := (j.Read.LatNs.Mean*readIOs + j.Write.LatNs.Mean*writeIOs) / total
	return weighted / 1e6
}

// percentileLatencyMs takes the worse of the read and write completion
// latencies at the given percentile, in milliseconds.
func (j Job) percentileLatencyMs(p int) float64 {
	key := fmt.Sprintf("%d.000000", p)
	read := j.Read.ClatNs.Percentile[key]
	write := j.Write.ClatNs.Percentile[key]
	if write > read {
		read = write
	}
	return read / 1e6
}

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func f64Ptr(v float64) *float64 { return &v }

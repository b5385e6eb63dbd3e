package store

import (
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fio-analyzer/server/pkg/models"
)

// Simulated fleet used to fill an empty database. Metrics derive from
// per-drive baselines scaled by pattern and block size, with jitter so
// grids and trends look plausible out of the box.
var seedServers = []struct {
	hostname   string
	protocol   string
	driveModel string
	driveType  string
}{
	{"sim-web-01", "NFS", "Samsung 980 PRO", "HDD"},
	{"sim-db-01", "iSCSI", "Samsung SN850", "NVMe SSD"},
	{"sim-app-01", "Local", "Samsung 980 PRO", "NVMe SSD"},
	{"sim-cache-01", "Local", "Samsung Optane", "NVMe SSD"},
}

var (
	seedBlockSizes  = []string{"4K", "8K", "16K", "64K", "1M"}
	seedPatterns    = []string{"sequential_read", "sequential_write", "random_read", "random_write"}
	seedQueueDepths = []int{1, 4, 8, 16}
	seedNumJobs     = []int{1, 2, 4, 8}
	seedTestSizes   = []string{"1M", "10M", "100M", "1G"}
	seedIODepths    = []int{1, 4, 8, 16, 32}
)

func baseIOPS(driveType, pattern, blockSize string) float64 {
	base := 10000.0
	switch driveType {
	case "NVMe SSD":
		base = 100000
	case "SATA SSD":
		base = 50000
	case "HDD":
		base = 200
	case "Optane":
		base = 500000
	}
	if strings.Contains(pattern, "random") {
		base *= 0.7
	}
	if strings.Contains(pattern, "write") {
		base *= 0.8
	}
	switch blockSize {
	case "64K", "128K":
		base *= 0.5
	case "1M", "2M":
		base *= 0.2
	}
	return base
}

func baseLatency(driveType, pattern string) float64 {
	base := 1.0
	switch driveType {
	case "NVMe SSD":
		base = 0.1
	case "SATA SSD":
		base = 0.5
	case "HDD":
		base = 5.0
	case "Optane":
		base = 0.01
	}
	if strings.Contains(pattern, "random") {
		base *= 2.0
	}
	if strings.Contains(pattern, "write") {
		base *= 1.2
	}
	return base
}

func baseBandwidth(driveType, pattern, blockSize string) float64 {
	base := 100.0
	switch driveType {
	case "NVMe SSD":
		base = 3000
	case "SATA SSD":
		base = 500
	case "HDD":
		base = 150
	case "Optane":
		base = 2500
	}
	if strings.Contains(pattern, "random") {
		base *= 0.6
	}
	if strings.Contains(pattern, "write") {
		base *= 0.9
	}
	switch blockSize {
	case "1K", "4K":
		base *= 0.3
	case "64K", "128K":
		base *= 0.8
	}
	return base
}

func pick[T any](values []T) T {
	return values[rand.IntN(len(values))]
}

// jitter spreads a baseline over 80-120%.
func jitter() float64 {
	return 0.8 + rand.Float64()*0.4
}

func seedRun(hostname, protocol, driveModel, driveType string, timestamp time.Time) models.TestRun {
	blockSize := pick(seedBlockSizes)
	pattern := pick(seedPatterns)

	iops := float64(int(baseIOPS(driveType, pattern, blockSize) * jitter()))
	latency := baseLatency(driveType, pattern) * jitter()
	bandwidth := float64(int(baseBandwidth(driveType, pattern, blockSize) * jitter()))

	rwmixread := 0
	iosRead, iosWrite := int64(0), int64(0)
	if strings.Contains(pattern, "read") {
		rwmixread = 100
		iosRead = int64(iops) * 30
	} else {
		iosWrite = int64(iops) * 30
	}

	numJobs := pick(seedNumJobs)
	direct := rand.IntN(2)
	syncMode := 0
	if rand.Float64() > 0.7 {
		syncMode = 1
	}
	iodepth := pick(seedIODepths)
	jobRuntime := int64(30000)
	usrCPU := 5.2 + rand.Float64()*3
	sysCPU := 2.1 + rand.Float64()*2
	p95 := latency * 1.25
	p99 := latency * 1.5
	testDate := timestamp

	return models.TestRun{
		Timestamp:        timestamp,
		TestDate:         &testDate,
		Hostname:         hostname,
		Protocol:         protocol,
		DriveModel:       driveModel,
		DriveType:        driveType,
		TestName:         fmt.Sprintf("%s_%s_%s", hostname, pattern, blockSize),
		BlockSize:        blockSize,
		ReadWritePattern: pattern,
		QueueDepth:       pick(seedQueueDepths),
		Duration:         30,
		OutputFile:       "testfile.bin",
		NumJobs:          &numJobs,
		Direct:           &direct,
		TestSize:         pick(seedTestSizes),
		Sync:             &syncMode,
		IODepth:          &iodepth,
		FioVersion:       "fio-3.28",
		JobRuntime:       &jobRuntime,
		Rwmixread:        &rwmixread,
		TotalIOsRead:     &iosRead,
		TotalIOsWrite:    &iosWrite,
		UsrCPU:           &usrCPU,
		SysCPU:           &sysCPU,
		IOPS:             &iops,
		AvgLatency:       &latency,
		Bandwidth:        &bandwidth,
		P95Latency:       &p95,
		P99Latency:       &p99,
		Description:      fmt.Sprintf("Simulated %s test on %s drive", pattern, driveModel),
		IsLatest:         true,
	}
}

func (s *Store) seedSampleData() error {
	now := time.Now().UTC()

	var runs []models.TestRun
	for _, server := range seedServers {
		for day := 0; day < 30; day += 2 + rand.IntN(4) {
			timestamp := now.AddDate(0, 0, -day)
			runs = append(runs, seedRun(server.hostname, server.protocol, server.driveModel, server.driveType, timestamp))
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n := strings.Count(testRunColumns, ",") + 1
	insertAll := fmt.Sprintf("INSERT INTO test_runs_all (%s) VALUES (%s)", testRunColumns, placeholders(n))
	insertLatest := fmt.Sprintf("INSERT OR REPLACE INTO test_runs (%s) VALUES (%s)", testRunColumns, placeholders(n))
	for _, run := range runs {
		args := insertArgs(run)
		if _, err := tx.Exec(insertAll, args...); err != nil {
			return fmt.Errorf("failed to seed test_runs_all: %w", err)
		}
		if _, err := tx.Exec(insertLatest, args...); err != nil {
			return fmt.Errorf("failed to seed test_runs: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample data: %w", err)
	}

	log.Printf("[Store] Sample data generation complete: %d test runs", len(runs))
	return nil
}

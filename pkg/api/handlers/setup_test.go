package handlers

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/store"
)

type testEnv struct {
	App     *fiber.App
	Store   *store.Store
	Hub     *Hub
	TempDir string
}

// setupTestEnv creates a fresh Fiber app over an empty store in a
// temporary directory, with a running hub.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tempDir := t.TempDir()

	st, err := store.Open(filepath.Join(tempDir, "test.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() {
		hub.Close()
	})

	app := fiber.New()

	return &testEnv{
		App:     app,
		Store:   st,
		Hub:     hub,
		TempDir: tempDir,
	}
}

func intPtr(n int) *int { return &n }

func f64Ptr(v float64) *float64 { return &v }

// seedRun builds a fully-populated run for one host/pattern/size cell.
func seedRun(hostname, pattern, blockSize string, ts time.Time) models.TestRun {
	qd := 8
	return models.TestRun{
		Timestamp:        ts,
		Hostname:         hostname,
		Protocol:         "NFS",
		DriveModel:       "Samsung 980 PRO",
		DriveType:        "NVMe SSD",
		TestName:         pattern + "_" + blockSize,
		BlockSize:        blockSize,
		ReadWritePattern: pattern,
		QueueDepth:       qd,
		Duration:         30,
		NumJobs:          intPtr(4),
		IODepth:          intPtr(qd),
		IOPS:             f64Ptr(50000),
		AvgLatency:       f64Ptr(0.5),
		Bandwidth:        f64Ptr(1950),
		P95Latency:       f64Ptr(0.7),
		P99Latency:       f64Ptr(0.9),
		IsLatest:         true,
	}
}

// insertRun stores a run and returns its id.
func insertRun(t *testing.T, env *testEnv, run models.TestRun) int64 {
	t.Helper()
	id, err := env.Store.Insert(run)
	require.NoError(t, err)
	return id
}

package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fio-analyzer/server/pkg/models"
)

const importFixture = `{
  "fio_version": "fio-3.28",
  "usr_cpu": 4.0,
  "sys_cpu": 1.5,
  "jobs": [
    {
      "jobname": "seqread_64k",
      "job_options": {"bs": "64K", "rw": "read", "iodepth": "8", "numjobs": "2", "size": "1G", "filename": "bench.bin"},
      "job_runtime": 30000,
      "read": {
        "bw_bytes": 209715200,
        "iops": 3200,
        "io_ops": 3200,
        "total_ios": 96000,
        "lat_ns": {"mean": 312500.0},
        "clat_ns": {"percentile": {"95.000000": 450000.0, "99.000000": 650000.0}}
      }
    }
  ]
}`

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newImportEnv(t *testing.T, maxUpload int64) (*testEnv, string) {
	t.Helper()
	env := setupTestEnv(t)
	uploadDir := filepath.Join(env.TempDir, "uploads")
	handler := NewImportHandlers(env.Store, env.Hub, uploadDir, maxUpload)
	env.App.Post("/api/import", handler.Import)
	env.App.Post("/api/import/bulk", handler.BulkImport)
	return env, uploadDir
}

func TestImportFIOFile(t *testing.T) {
	env, uploadDir := newImportEnv(t, 50*1024*1024)

	events, cancel := env.Hub.Subscribe()
	defer cancel()

	body, contentType := multipartUpload(t, "seqread.json", []byte(importFixture))
	req, _ := http.NewRequest("POST", "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result struct {
		Message   string `json:"message"`
		TestRunID int64  `json:"test_run_id"`
		Filename  string `json:"filename"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, "FIO data imported successfully", result.Message)
	assert.Equal(t, "seqread.json", result.Filename)
	require.NotZero(t, result.TestRunID)

	run, err := env.Store.Get(result.TestRunID)
	require.NoError(t, err)
	assert.Equal(t, "unknown", run.Hostname)
	assert.Equal(t, "64K", run.BlockSize)
	assert.Equal(t, "read", run.ReadWritePattern)
	require.NotNil(t, run.IOPS)
	assert.InDelta(t, 3200.0, *run.IOPS, 0.001)

	// the raw upload was archived under the upload tree
	require.NotEmpty(t, run.UploadedFilePath)
	assert.True(t, strings.HasPrefix(run.UploadedFilePath, uploadDir))
	saved, err := os.ReadFile(run.UploadedFilePath)
	require.NoError(t, err)
	assert.JSONEq(t, importFixture, string(saved))

	select {
	case payload := <-events:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventTestRunImported, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast after import")
	}
}

func TestImportValidation(t *testing.T) {
	env, _ := newImportEnv(t, 64)

	post := func(filename string, content []byte) *http.Response {
		body, contentType := multipartUpload(t, filename, content)
		req, _ := http.NewRequest("POST", "/api/import", body)
		req.Header.Set("Content-Type", contentType)
		resp, err := env.App.Test(req)
		require.NoError(t, err)
		return resp
	}

	// wrong extension
	resp := post("results.txt", []byte("{}"))
	assert.Equal(t, 400, resp.StatusCode)

	// over the size cap (64 bytes here)
	resp = post("big.json", []byte(importFixture))
	assert.Equal(t, 400, resp.StatusCode)

	// not JSON
	resp = post("bad.json", []byte("{not json"))
	assert.Equal(t, 400, resp.StatusCode)

	// no jobs
	resp = post("empty.json", []byte(`{"jobs": []}`))
	assert.Equal(t, 400, resp.StatusCode)

	// no file at all
	req, _ := http.NewRequest("POST", "/api/import", nil)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestBulkImport(t *testing.T) {
	env, _ := newImportEnv(t, 50*1024*1024)

	scanDir := filepath.Join(env.TempDir, "scan")
	require.NoError(t, os.MkdirAll(filepath.Join(scanDir, "nested"), 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(scanDir, name), []byte(content), 0o644))
	}
	write("good.json", importFixture)
	write("nested/nojobs.json", `{"jobs": []}`)
	write("broken.json", `{not json`)
	write("ignored.txt", "not a fio file")

	post := func(body string) *http.Response {
		req, _ := http.NewRequest("POST", "/api/import/bulk", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := env.App.Test(req)
		require.NoError(t, err)
		return resp
	}

	// dry run reports what would import without touching the store
	resp := post(`{"directory": "` + scanDir + `", "dryRun": true}`)
	assert.Equal(t, 200, resp.StatusCode)

	var dry struct {
		Message    string `json:"message"`
		Statistics struct {
			TotalFiles     int `json:"totalFiles"`
			ProcessedFiles int `json:"processedFiles"`
			TotalTestRuns  int `json:"totalTestRuns"`
			SkippedFiles   int `json:"skippedFiles"`
			ErrorFiles     int `json:"errorFiles"`
		} `json:"statistics"`
		DryRunResults []struct {
			Path     string            `json:"path"`
			Metadata map[string]string `json:"metadata"`
		} `json:"dryRunResults"`
	}
	decodeBody(t, resp, &dry)
	assert.Equal(t, 3, dry.Statistics.TotalFiles)
	assert.Equal(t, 1, dry.Statistics.ProcessedFiles)
	assert.Equal(t, 0, dry.Statistics.TotalTestRuns)
	assert.Equal(t, 1, dry.Statistics.SkippedFiles)
	assert.Equal(t, 1, dry.Statistics.ErrorFiles)
	require.Len(t, dry.DryRunResults, 1)
	assert.Equal(t, "unknown", dry.DryRunResults[0].Metadata["hostname"])
	assert.Equal(t, "seqread_64k", dry.DryRunResults[0].Metadata["test_name"])

	_, total, err := env.Store.List(models.TestRunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	// real import
	resp = post(`{"directory": "` + scanDir + `"}`)
	assert.Equal(t, 200, resp.StatusCode)

	var result struct {
		Message    string `json:"message"`
		Statistics struct {
			TotalTestRuns int `json:"totalTestRuns"`
		} `json:"statistics"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, "Bulk import completed: 1 files processed, 1 test runs imported", result.Message)
	assert.Equal(t, 1, result.Statistics.TotalTestRuns)

	_, total, err = env.Store.List(models.TestRunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// unknown directory
	resp = post(`{"directory": "` + filepath.Join(env.TempDir, "nope") + `"}`)
	assert.Equal(t, 400, resp.StatusCode)
}

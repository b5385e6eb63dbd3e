package handlers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fio-analyzer/server/pkg/models"
)

func setupTimeSeries(t *testing.T) *testEnv {
	t.Helper()
	env := setupTestEnv(t)
	handler := NewTimeSeriesHandlers(env.Store)
	env.App.Get("/api/time-series/servers", handler.Servers)
	env.App.Get("/api/time-series/latest", handler.Latest)
	env.App.Get("/api/time-series/history", handler.History)
	env.App.Get("/api/time-series/trends", handler.Trends)
	return env
}

func TestServersEndpoint(t *testing.T) {
	env := setupTimeSeries(t)

	now := time.Now().UTC()
	insertRun(t, env, seedRun("host-a", "random_read", "4K", now.Add(-time.Hour)))
	insertRun(t, env, seedRun("host-a", "random_write", "4K", now))
	insertRun(t, env, seedRun("host-b", "random_read", "4K", now.Add(-2*time.Hour)))

	req, _ := http.NewRequest("GET", "/api/time-series/servers", nil)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var servers []models.ServerInfo
	decodeBody(t, resp, &servers)
	require.Len(t, servers, 2)
	// most recently tested first
	assert.Equal(t, "host-a", servers[0].Hostname)
	assert.Equal(t, 2, servers[0].TestCount)
	assert.Equal(t, "host-b", servers[1].Hostname)
}

func TestLatestSeriesEndpoint(t *testing.T) {
	env := setupTimeSeries(t)

	now := time.Now().UTC()
	insertRun(t, env, seedRun("host-a", "random_read", "4K", now))
	insertRun(t, env, seedRun("host-b", "random_read", "4K", now.Add(time.Minute)))

	req, _ := http.NewRequest("GET", "/api/time-series/latest?hostnames=host-a", nil)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var payload struct {
		Data []models.TimeSeriesPoint `json:"data"`
	}
	decodeBody(t, resp, &payload)
	require.Len(t, payload.Data, 1)
	point := payload.Data[0]
	assert.Equal(t, "host-a", point.Hostname)
	assert.Equal(t, "4K", point.BlockSize)
	require.NotNil(t, point.Metrics.IOPS)
	assert.Equal(t, 50000.0, *point.Metrics.IOPS)

	req, _ = http.NewRequest("GET", "/api/time-series/latest?limit=0", nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHistoryEndpoint(t *testing.T) {
	env := setupTimeSeries(t)

	now := time.Now().UTC()
	old := seedRun("host-a", "random_read", "4K", now.AddDate(0, 0, -10))
	recent := seedRun("host-a", "random_read", "4K", now)
	recent.IOPS = f64Ptr(60000)
	insertRun(t, env, old)
	insertRun(t, env, recent) // supersedes old in test_runs, both in history

	req, _ := http.NewRequest("GET", "/api/time-series/history?hostnames=host-a", nil)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var payload struct {
		Data []models.TimeSeriesPoint `json:"data"`
	}
	decodeBody(t, resp, &payload)
	assert.Len(t, payload.Data, 2)

	// date window narrows to the recent run
	start := url.QueryEscape(now.AddDate(0, 0, -1).Format(time.RFC3339))
	req, _ = http.NewRequest("GET", "/api/time-series/history?start_date="+start, nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	decodeBody(t, resp, &payload)
	require.Len(t, payload.Data, 1)
	require.NotNil(t, payload.Data[0].Metrics.IOPS)
	assert.Equal(t, 60000.0, *payload.Data[0].Metrics.IOPS)

	req, _ = http.NewRequest("GET", "/api/time-series/history?start_date=yesterday", nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestTrendsEndpoint(t *testing.T) {
	env := setupTimeSeries(t)

	now := time.Now().UTC()
	values := []float64{100, 200, 300, 400}
	for i, v := range values {
		run := seedRun("host-a", "random_read", "4K", now.Add(time.Duration(i-4)*time.Hour))
		run.QueueDepth = i + 1 // distinct configs so history keeps each
		run.IOPS = f64Ptr(v)
		insertRun(t, env, run)
	}

	req, _ := http.NewRequest("GET", "/api/time-series/trends?hostname=host-a&metric=iops&days=30", nil)
	resp, err := env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var payload struct {
		Data          []models.TrendPoint `json:"data"`
		TrendAnalysis models.TrendSummary `json:"trend_analysis"`
	}
	decodeBody(t, resp, &payload)
	require.Len(t, payload.Data, 4)
	assert.Equal(t, "100.00%", payload.Data[1].PercentChange)
	require.NotNil(t, payload.Data[2].MovingAvg)
	assert.Equal(t, 200.0, *payload.Data[2].MovingAvg)
	assert.Equal(t, 4, payload.TrendAnalysis.TotalPoints)
	assert.Equal(t, "300.00%", payload.TrendAnalysis.OverallChange)

	// unknown metric is a client error, not SQL
	req, _ = http.NewRequest("GET", "/api/time-series/trends?hostname=host-a&metric=evil", nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	// hostname is mandatory
	req, _ = http.NewRequest("GET", "/api/time-series/trends", nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	// empty window answers with a message, not an error
	req, _ = http.NewRequest("GET", "/api/time-series/trends?hostname=ghost&metric=iops", nil)
	resp, err = env.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var empty struct {
		Data          []models.TrendPoint `json:"data"`
		TrendAnalysis map[string]string   `json:"trend_analysis"`
	}
	decodeBody(t, resp, &empty)
	assert.Empty(t, empty.Data)
	assert.Equal(t, "No data found for the specified period", empty.TrendAnalysis["message"])
}

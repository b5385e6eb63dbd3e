package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fio-analyzer/server/pkg/models"
)

// ErrUnsupportedMetric rejects trend queries for columns outside the
// whitelist.
var ErrUnsupportedMetric = errors.New("unsupported trend metric")

// Servers summarizes the latest runs per host/protocol/drive combination,
// most recently tested first.
func (s *Store) Servers() ([]models.ServerInfo, error) {
	rows, err := s.db.Query(`SELECT hostname, protocol, drive_model,
			COUNT(*) AS test_count,
			MAX(timestamp) AS last_test_time,
			MIN(timestamp) AS first_test_time
		FROM test_runs
		WHERE hostname IS NOT NULL AND protocol IS NOT NULL
		GROUP BY hostname, protocol, drive_model
		ORDER BY last_test_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	servers := []models.ServerInfo{}
	for rows.Next() {
		var info models.ServerInfo
		var last, first string
		if err := rows.Scan(&info.Hostname, &info.Protocol, &info.DriveModel, &info.TestCount, &last, &first); err != nil {
			return nil, fmt.Errorf("failed to scan server info: %w", err)
		}
		info.LastTestTime = parseTime(last)
		info.FirstTestTime = parseTime(first)
		servers = append(servers, info)
	}
	return servers, rows.Err()
}

const seriesColumns = `timestamp, hostname, protocol, drive_model, drive_type,
	block_size, read_write_pattern, queue_depth,
	iops, avg_latency, bandwidth, p70_latency, p90_latency, p95_latency, p99_latency`

func scanSeriesPoint(rows *sql.Rows) (models.TimeSeriesPoint, error) {
	var (
		p        models.TimeSeriesPoint
		ts       string
		hostname sql.NullString
		protocol sql.NullString
		metrics  [7]sql.NullFloat64
	)
	err := rows.Scan(
		&ts, &hostname, &protocol, &p.DriveModel, &p.DriveType,
		&p.BlockSize, &p.ReadWritePattern, &p.QueueDepth,
		&metrics[0], &metrics[1], &metrics[2], &metrics[3],
		&metrics[4], &metrics[5], &metrics[6],
	)
	if err != nil {
		return p, err
	}
	p.Timestamp = parseTime(ts)
	p.Hostname = strOf(hostname)
	p.Protocol = strOf(protocol)
	p.Metrics = models.MetricSet{
		IOPS:       f64PtrOf(metrics[0]),
		AvgLatency: f64PtrOf(metrics[1]),
		Bandwidth:  f64PtrOf(metrics[2]),
		P70Latency: f64PtrOf(metrics[3]),
		P90Latency: f64PtrOf(metrics[4]),
		P95Latency: f64PtrOf(metrics[5]),
		P99Latency: f64PtrOf(metrics[6]),
	}
	return p, nil
}

func (s *Store) querySeries(table, where string, args []any, limit int) ([]models.TimeSeriesPoint, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY timestamp DESC LIMIT ?",
		seriesColumns, table, where)
	rows, err := s.db.Query(query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	defer rows.Close()

	points := []models.TimeSeriesPoint{}
	for rows.Next() {
		p, err := scanSeriesPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time series point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func hostnameWhere(hostnames []string) (string, []any) {
	if len(hostnames) == 0 {
		return "1=1", nil
	}
	args := make([]any, len(hostnames))
	for i, h := range hostnames {
		args[i] = h
	}
	return fmt.Sprintf("hostname IN (%s)", placeholders(len(hostnames))), args
}

// LatestSeries returns the newest points from the latest-runs table,
// optionally limited to a set of hostnames.
func (s *Store) LatestSeries(hostnames []string, limit int) ([]models.TimeSeriesPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := hostnameWhere(hostnames)
	return s.querySeries("test_runs", where, args, limit)
}

// HistorySeries returns points from the full history table within an
// optional time window.
func (s *Store) HistorySeries(hostnames []string, start, end *time.Time, limit int) ([]models.TimeSeriesPoint, error) {
	if limit <= 0 {
		limit = 1000
	}
	where, args := hostnameWhere(hostnames)
	if start != nil {
		where += " AND timestamp >= ?"
		args = append(args, fmtTime(*start))
	}
	if end != nil {
		where += " AND timestamp <= ?"
		args = append(args, fmtTime(*end))
	}
	return s.querySeries("test_runs_all", where, args, limit)
}

// trendMetrics whitelists the columns trend queries may interpolate into
// SQL, with the display unit for each.
var trendMetrics = map[string]string{
	"iops":        "IOPS",
	"avg_latency": "ms",
	"bandwidth":   "MB/s",
	"p70_latency": "ms",
	"p90_latency": "ms",
	"p95_latency": "ms",
	"p99_latency": "ms",
}

// Trends samples one metric for one host over the trailing window, oldest
// first, annotating each point with the change against the previous point
// and a 3-point moving average. Returns no points and no summary when the
// window is empty.
func (s *Store) Trends(hostname, metric string, days int) ([]models.TrendPoint, *models.TrendSummary, error) {
	unit, ok := trendMetrics[metric]
	if !ok {
		return nil, nil, fmt.Errorf("%w %q", ErrUnsupportedMetric, metric)
	}
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	query := fmt.Sprintf(`SELECT timestamp, block_size, read_write_pattern, queue_depth, %s
		FROM test_runs_all
		WHERE hostname = ? AND timestamp >= ? AND timestamp <= ? AND %s IS NOT NULL
		ORDER BY timestamp ASC`, metric, metric)
	rows, err := s.db.Query(query, hostname, fmtTime(start), fmtTime(end))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		var ts string
		if err := rows.Scan(&ts, &p.BlockSize, &p.ReadWritePattern, &p.QueueDepth, &p.Value); err != nil {
			return nil, nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		p.Timestamp = parseTime(ts)
		p.Unit = unit
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(points) == 0 {
		return nil, nil, nil
	}

	annotateTrend(points)
	return points, summarizeTrend(points), nil
}

func annotateTrend(points []models.TrendPoint) {
	for i := range points {
		if i > 0 && points[i-1].Value != 0 {
			change := (points[i].Value - points[i-1].Value) / points[i-1].Value * 100
			points[i].PercentChange = fmt.Sprintf("%.2f%%", change)
		}
		if i >= 2 {
			avg := (points[i-2].Value + points[i-1].Value + points[i].Value) / 3
			points[i].MovingAvg = &avg
		}
	}
}

func summarizeTrend(points []models.TrendPoint) *models.TrendSummary {
	summary := &models.TrendSummary{
		TotalPoints:   len(points),
		MinValue:      points[0].Value,
		MaxValue:      points[0].Value,
		FirstValue:    points[0].Value,
		LastValue:     points[len(points)-1].Value,
		OverallChange: "N/A",
	}
	total := 0.0
	for _, p := range points {
		if p.Value < summary.MinValue {
			summary.MinValue = p.Value
		}
		if p.Value > summary.MaxValue {
			summary.MaxValue = p.Value
		}
		total += p.Value
	}
	summary.AvgValue = total / float64(len(points))
	if summary.FirstValue != 0 {
		change := (summary.LastValue - summary.FirstValue) / summary.FirstValue * 100
		summary.OverallChange = fmt.Sprintf("%.2f%%", change)
	}
	return summary
}

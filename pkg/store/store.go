// Package store persists benchmark runs in SQLite. Two tables back the
// dashboard: test_runs keeps the latest run per unique configuration,
// test_runs_all keeps the full history.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const dataDirMode = 0755

const schema = `
CREATE TABLE IF NOT EXISTS test_runs_all (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	test_date TEXT,
	drive_model TEXT NOT NULL,
	drive_type TEXT NOT NULL,
	test_name TEXT NOT NULL,
	block_size TEXT NOT NULL,
	read_write_pattern TEXT NOT NULL,
	queue_depth INTEGER NOT NULL,
	duration INTEGER NOT NULL,
	fio_version TEXT,
	job_runtime INTEGER,
	rwmixread INTEGER,
	total_ios_read INTEGER,
	total_ios_write INTEGER,
	usr_cpu REAL,
	sys_cpu REAL,
	hostname TEXT,
	protocol TEXT,
	description TEXT,
	uploaded_file_path TEXT,
	output_file TEXT,
	num_jobs INTEGER,
	direct INTEGER,
	test_size TEXT,
	sync INTEGER,
	iodepth INTEGER,
	avg_latency REAL,
	bandwidth REAL,
	iops REAL,
	p70_latency REAL,
	p90_latency REAL,
	p95_latency REAL,
	p99_latency REAL,
	is_latest INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS test_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	test_date TEXT,
	drive_model TEXT NOT NULL,
	drive_type TEXT NOT NULL,
	test_name TEXT NOT NULL,
	block_size TEXT NOT NULL,
	read_write_pattern TEXT NOT NULL,
	queue_depth INTEGER NOT NULL,
	duration INTEGER NOT NULL,
	fio_version TEXT,
	job_runtime INTEGER,
	rwmixread INTEGER,
	total_ios_read INTEGER,
	total_ios_write INTEGER,
	usr_cpu REAL,
	sys_cpu REAL,
	hostname TEXT,
	protocol TEXT,
	description TEXT,
	uploaded_file_path TEXT,
	output_file TEXT,
	num_jobs INTEGER,
	direct INTEGER,
	test_size TEXT,
	sync INTEGER,
	iodepth INTEGER,
	avg_latency REAL,
	bandwidth REAL,
	iops REAL,
	p70_latency REAL,
	p90_latency REAL,
	p95_latency REAL,
	p99_latency REAL,
	is_latest INTEGER DEFAULT 1,
	UNIQUE(hostname, protocol, drive_type, drive_model, block_size, read_write_pattern, queue_depth, num_jobs, direct, test_size, sync, iodepth, duration)
);

CREATE INDEX IF NOT EXISTS idx_test_runs_all_timestamp ON test_runs_all (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_test_runs_all_host_protocol_time ON test_runs_all (hostname, protocol, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_test_runs_all_config_filter ON test_runs_all (hostname, protocol, drive_type, drive_model, block_size, read_write_pattern, queue_depth);
CREATE INDEX IF NOT EXISTS idx_test_runs_config_lookup ON test_runs (hostname, protocol, drive_type, drive_model);

CREATE VIEW IF NOT EXISTS latest_test_per_server AS
WITH ranked_tests AS (
	SELECT *,
		ROW_NUMBER() OVER (
			PARTITION BY hostname, protocol, drive_model
			ORDER BY timestamp DESC
		) as rn
	FROM test_runs
	WHERE hostname IS NOT NULL AND protocol IS NOT NULL
)
SELECT
	id, hostname, protocol, drive_model, drive_type, test_name,
	block_size, read_write_pattern, queue_depth, timestamp,
	description, test_date
FROM ranked_tests
WHERE rn = 1;
`

// Options control how a Store is opened.
type Options struct {
	// SeedSampleData populates an empty database with simulated
	// benchmark runs so the dashboard has something to show.
	SeedSampleData bool
}

// Store wraps the SQLite database. database/sql serializes writers; the
// engine reads immutable snapshots produced by the query methods.
type Store struct {
	db   *sql.DB
	path string

	// version counts dataset mutations. Callers memoizing derived
	// views key their caches on it.
	version atomic.Uint64
}

// Open creates or opens the database at path and initializes the schema.
func Open(path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, dataDirMode); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.init(opts); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(opts Options) error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var latest, all int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM test_runs").Scan(&latest); err != nil {
		return fmt.Errorf("failed to count test_runs: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM test_runs_all").Scan(&all); err != nil {
		return fmt.Errorf("failed to count test_runs_all: %w", err)
	}
	if opts.SeedSampleData && latest == 0 && all == 0 {
		log.Printf("[Store] Empty database, populating sample data")
		if err := s.seedSampleData(); err != nil {
			return fmt.Errorf("failed to seed sample data: %w", err)
		}
	}

	log.Printf("[Store] Database ready at %s", s.path)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Version returns the current dataset version. It increases on every
// insert, update and delete, never decreases, and is safe to read
// concurrently.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

func (s *Store) bumpVersion() {
	s.version.Add(1)
}

// timeLayout keeps a fixed-width fraction so lexicographic order of the
// stored strings matches chronological order in SQL comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func strOf(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

func intPtrOf(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func int64PtrOf(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func f64PtrOf(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

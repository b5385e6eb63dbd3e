package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fio-analyzer/server/pkg/models"
)

// ErrNotFound marks lookups for runs that do not exist in either table.
var ErrNotFound = errors.New("test run not found")

const testRunColumns = `timestamp, test_date, drive_model, drive_type, test_name, block_size,
	read_write_pattern, queue_depth, duration, fio_version, job_runtime, rwmixread,
	total_ios_read, total_ios_write, usr_cpu, sys_cpu, hostname, protocol, description,
	uploaded_file_path, output_file, num_jobs, direct, test_size, sync, iodepth,
	avg_latency, bandwidth, iops, p70_latency, p90_latency, p95_latency, p99_latency, is_latest`

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func insertArgs(run models.TestRun) []any {
	isLatest := 0
	if run.IsLatest {
		isLatest = 1
	}
	return []any{
		fmtTime(run.Timestamp),
		nullTime(run.TestDate),
		run.DriveModel,
		run.DriveType,
		run.TestName,
		run.BlockSize,
		run.ReadWritePattern,
		run.QueueDepth,
		run.Duration,
		nullStr(run.FioVersion),
		run.JobRuntime,
		run.Rwmixread,
		run.TotalIOsRead,
		run.TotalIOsWrite,
		run.UsrCPU,
		run.SysCPU,
		nullStr(run.Hostname),
		nullStr(run.Protocol),
		nullStr(run.Description),
		nullStr(run.UploadedFilePath),
		nullStr(run.OutputFile),
		run.NumJobs,
		run.Direct,
		nullStr(run.TestSize),
		run.Sync,
		run.IODepth,
		run.AvgLatency,
		run.Bandwidth,
		run.IOPS,
		run.P70Latency,
		run.P90Latency,
		run.P95Latency,
		run.P99Latency,
		isLatest,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTestRun(row rowScanner) (models.TestRun, error) {
	var (
		run       models.TestRun
		timestamp string
		testDate  sql.NullString
		fioVer    sql.NullString
		jobRun    sql.NullInt64
		rwmix     sql.NullInt64
		iosRead   sql.NullInt64
		iosWrite  sql.NullInt64
		usrCPU    sql.NullFloat64
		sysCPU    sql.NullFloat64
		hostname  sql.NullString
		protocol  sql.NullString
		descr     sql.NullString
		filePath  sql.NullString
		outFile   sql.NullString
		numJobs   sql.NullInt64
		direct    sql.NullInt64
		testSize  sql.NullString
		syncFlag  sql.NullInt64
		iodepth   sql.NullInt64
		metrics   [7]sql.NullFloat64
		isLatest  int
	)
	err := row.Scan(
		&run.ID, &timestamp, &testDate, &run.DriveModel, &run.DriveType,
		&run.TestName, &run.BlockSize, &run.ReadWritePattern, &run.QueueDepth,
		&run.Duration, &fioVer, &jobRun, &rwmix, &iosRead, &iosWrite,
		&usrCPU, &sysCPU, &hostname, &protocol, &descr, &filePath, &outFile,
		&numJobs, &direct, &testSize, &syncFlag, &iodepth,
		&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4],
		&metrics[5], &metrics[6], &isLatest,
	)
	if err != nil {
		return run, err
	}

	run.Timestamp = parseTime(timestamp)
	if testDate.Valid {
		t := parseTime(testDate.String)
		run.TestDate = &t
	}
	run.FioVersion = strOf(fioVer)
	run.JobRuntime = int64PtrOf(jobRun)
	run.Rwmixread = intPtrOf(rwmix)
	run.TotalIOsRead = int64PtrOf(iosRead)
	run.TotalIOsWrite = int64PtrOf(iosWrite)
	run.UsrCPU = f64PtrOf(usrCPU)
	run.SysCPU = f64PtrOf(sysCPU)
	run.Hostname = strOf(hostname)
	run.Protocol = strOf(protocol)
	run.Description = strOf(descr)
	run.UploadedFilePath = strOf(filePath)
	run.OutputFile = strOf(outFile)
	run.NumJobs = intPtrOf(numJobs)
	run.Direct = intPtrOf(direct)
	run.TestSize = strOf(testSize)
	run.Sync = intPtrOf(syncFlag)
	run.IODepth = intPtrOf(iodepth)
	run.AvgLatency = f64PtrOf(metrics[0])
	run.Bandwidth = f64PtrOf(metrics[1])
	run.IOPS = f64PtrOf(metrics[2])
	run.P70Latency = f64PtrOf(metrics[3])
	run.P90Latency = f64PtrOf(metrics[4])
	run.P95Latency = f64PtrOf(metrics[5])
	run.P99Latency = f64PtrOf(metrics[6])
	run.IsLatest = isLatest != 0
	return run, nil
}

func filterWhere(filter models.TestRunFilter) (string, []any) {
	var conditions []string
	var args []any
	add := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))))
		for _, v := range values {
			args = append(args, strings.TrimSpace(v))
		}
	}
	add("hostname", filter.Hostnames)
	add("drive_type", filter.DriveTypes)
	add("protocol", filter.Protocols)
	add("read_write_pattern", filter.Patterns)
	add("block_size", filter.BlockSizes)
	if len(conditions) == 0 {
		return "1=1", nil
	}
	return strings.Join(conditions, " AND "), args
}

// List returns latest runs matching the filter, newest first, plus the
// total match count for paging.
func (s *Store) List(filter models.TestRunFilter) ([]models.TestRun, int, error) {
	where, args := filterWhere(filter)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM test_runs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count test runs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT id, %s FROM test_runs WHERE %s ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		testRunColumns, where,
	)
	rows, err := s.db.Query(query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query test runs: %w", err)
	}
	defer rows.Close()

	var runs []models.TestRun
	for rows.Next() {
		run, err := scanTestRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan test run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// Get returns one latest run by id.
func (s *Store) Get(id int64) (*models.TestRun, error) {
	row := s.db.QueryRow(fmt.Sprintf("SELECT id, %s FROM test_runs WHERE id = ?", testRunColumns), id)
	run, err := scanTestRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load test run %d: %w", id, err)
	}
	return &run, nil
}

// Insert records a run in the history table and replaces the latest run
// for its configuration. Prior runs of the same configuration lose their
// latest flag in both tables. Returns the id in test_runs.
func (s *Store) Insert(run models.TestRun) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	flipArgs := []any{
		run.DriveType, run.DriveModel, nullStr(run.Hostname), nullStr(run.Protocol),
		run.BlockSize, run.ReadWritePattern, nullStr(run.OutputFile), run.NumJobs,
		run.Direct, nullStr(run.TestSize), run.Sync, run.IODepth,
	}
	for _, table := range []string{"test_runs", "test_runs_all"} {
		flip := fmt.Sprintf(`UPDATE %s SET is_latest = 0
			WHERE drive_type = ? AND drive_model = ? AND hostname IS ? AND protocol IS ?
			AND block_size = ? AND read_write_pattern = ? AND output_file IS ? AND num_jobs IS ?
			AND direct IS ? AND test_size IS ? AND sync IS ? AND iodepth IS ?`, table)
		if _, err := tx.Exec(flip, flipArgs...); err != nil {
			return 0, fmt.Errorf("failed to update latest flags in %s: %w", table, err)
		}
	}

	args := insertArgs(run)
	n := strings.Count(testRunColumns, ",") + 1
	if _, err := tx.Exec(
		fmt.Sprintf("INSERT INTO test_runs_all (%s) VALUES (%s)", testRunColumns, placeholders(n)),
		args...,
	); err != nil {
		return 0, fmt.Errorf("failed to insert into test_runs_all: %w", err)
	}

	res, err := tx.Exec(
		fmt.Sprintf("INSERT OR REPLACE INTO test_runs (%s) VALUES (%s)", testRunColumns, placeholders(n)),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into test_runs: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}
	s.bumpVersion()
	return id, nil
}

// BulkUpdate rewrites the provided metadata fields on every listed run,
// in both tables. Returns how many latest rows changed.
func (s *Store) BulkUpdate(ids []int64, updates models.BulkUpdateFields) (int, error) {
	if len(ids) == 0 {
		return 0, errors.New("no test run ids provided")
	}
	if updates.Empty() {
		return 0, errors.New("no updates provided")
	}

	var sets []string
	var args []any
	set := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	set("description", updates.Description)
	set("test_name", updates.TestName)
	set("hostname", updates.Hostname)
	set("protocol", updates.Protocol)
	set("drive_type", updates.DriveType)
	set("drive_model", updates.DriveModel)

	idArgs := make([]any, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updated := 0
	for _, table := range []string{"test_runs", "test_runs_all"} {
		query := fmt.Sprintf("UPDATE %s SET %s WHERE id IN (%s)",
			table, strings.Join(sets, ", "), placeholders(len(ids)))
		res, err := tx.Exec(query, append(append([]any{}, args...), idArgs...)...)
		if err != nil {
			return 0, fmt.Errorf("failed to update %s: %w", table, err)
		}
		if table == "test_runs" {
			n, _ := res.RowsAffected()
			updated = int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk update: %w", err)
	}
	s.bumpVersion()
	return updated, nil
}

// Delete removes a run from both tables. ErrNotFound when neither table
// had it.
func (s *Store) Delete(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := int64(0)
	for _, table := range []string{"test_runs", "test_runs_all"} {
		res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if deleted == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	s.bumpVersion()
	return nil
}

// DeviceGroups returns the latest runs grouped per device, preserving
// device discovery order. Runs without a full device identity are left
// out, matching what the grid can place.
func (s *Store) DeviceGroups(filter models.TestRunFilter) ([]models.DeviceGroup, error) {
	where, args := filterWhere(filter)
	query := fmt.Sprintf(`SELECT id, %s FROM test_runs
		WHERE %s AND hostname IS NOT NULL AND protocol IS NOT NULL AND drive_model IS NOT NULL
		ORDER BY hostname, protocol, drive_model, timestamp DESC`, testRunColumns, where)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query device groups: %w", err)
	}
	defer rows.Close()

	var groups []models.DeviceGroup
	index := map[string]int{}
	for rows.Next() {
		run, err := scanTestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test run: %w", err)
		}
		key := run.Hostname + "\x00" + run.Protocol + "\x00" + run.DriveModel + "\x00" + run.DriveType
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.DeviceGroup{
				Hostname:   run.Hostname,
				Protocol:   run.Protocol,
				DriveModel: run.DriveModel,
				DriveType:  run.DriveType,
			})
		}
		groups[i].Configurations = append(groups[i].Configurations, run)
	}
	return groups, rows.Err()
}

// FilterOptions collects the distinct values of every filterable column
// from the latest runs.
func (s *Store) FilterOptions() (*models.FilterOptions, error) {
	opts := &models.FilterOptions{}
	stringTargets := []struct {
		dest  *[]string
		query string
	}{
		{&opts.DriveModels, "SELECT DISTINCT drive_model FROM test_runs WHERE drive_model IS NOT NULL ORDER BY drive_model"},
		{&opts.DriveTypes, "SELECT DISTINCT drive_type FROM test_runs WHERE drive_type IS NOT NULL ORDER BY drive_type"},
		{&opts.Hostnames, "SELECT DISTINCT hostname FROM test_runs WHERE hostname IS NOT NULL ORDER BY hostname"},
		{&opts.Protocols, "SELECT DISTINCT protocol FROM test_runs WHERE protocol IS NOT NULL ORDER BY protocol"},
		{&opts.HostDiskCombinations, "SELECT DISTINCT (hostname || ' - ' || protocol || ' - ' || drive_model) AS combo FROM test_runs WHERE hostname IS NOT NULL AND protocol IS NOT NULL AND drive_model IS NOT NULL ORDER BY combo"},
		{&opts.BlockSizes, "SELECT DISTINCT block_size FROM test_runs WHERE block_size IS NOT NULL ORDER BY block_size"},
		{&opts.Patterns, "SELECT DISTINCT read_write_pattern FROM test_runs WHERE read_write_pattern IS NOT NULL ORDER BY read_write_pattern"},
		{&opts.TestSizes, "SELECT DISTINCT test_size FROM test_runs WHERE test_size IS NOT NULL ORDER BY test_size"},
	}
	for _, target := range stringTargets {
		values, err := s.queryStrings(target.query)
		if err != nil {
			return nil, err
		}
		*target.dest = values
	}

	intTargets := []struct {
		dest  *[]int
		query string
	}{
		{&opts.Syncs, "SELECT DISTINCT sync FROM test_runs WHERE sync IS NOT NULL ORDER BY sync"},
		{&opts.QueueDepths, "SELECT DISTINCT queue_depth FROM test_runs WHERE queue_depth IS NOT NULL ORDER BY queue_depth"},
		{&opts.Directs, "SELECT DISTINCT direct FROM test_runs WHERE direct IS NOT NULL ORDER BY direct"},
		{&opts.NumJobs, "SELECT DISTINCT num_jobs FROM test_runs WHERE num_jobs IS NOT NULL ORDER BY num_jobs"},
		{&opts.Durations, "SELECT DISTINCT duration FROM test_runs WHERE duration IS NOT NULL ORDER BY duration"},
	}
	for _, target := range intTargets {
		values, err := s.queryInts(target.query)
		if err != nil {
			return nil, err
		}
		*target.dest = values
	}
	return opts, nil
}

func (s *Store) queryStrings(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter values: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) queryInts(query string) ([]int, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter values: %w", err)
	}
	defer rows.Close()

	values := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

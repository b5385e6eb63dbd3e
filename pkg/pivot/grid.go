package pivot

import (
	"fmt"

	"github.com/fio-analyzer/server/pkg/models"
)

// AggregationMode decides what a cell keeps from its bucket: fold every
// run into statistics, or keep only the single best run.
type AggregationMode string

const (
	ModeAggregate AggregationMode = "aggregate"
	ModeBest      AggregationMode = "best"
)

// Valid reports whether m names a known aggregation mode.
func (m AggregationMode) Valid() bool {
	return m == ModeAggregate || m == ModeBest
}

// Options selects one grid: which metric to visualize, which dimensions
// span the axes, and how buckets collapse into cells.
type Options struct {
	Metric   Metric
	Rows     Dimension
	Cols     Dimension
	Mode     AggregationMode
	Sort     SortMode
	SwapAxes bool
}

// Cell is one row-by-column intersection. Empty cells stay in the grid
// explicitly: HasData false, no stats, intensity 0. An empty cell means
// "no measurement", which is never the same as measuring zero.
type Cell struct {
	HasData          bool    `json:"hasData"`
	Stats            *Stats  `json:"stats,omitempty"`
	IntensityPercent float64 `json:"intensityPercent"`
	BestRunID        *int64  `json:"bestRunId,omitempty"`

	value float64
}

// Grid is the full cross-product of the resolved row and column keys.
// Cells[i][j] corresponds to (RowKeys[i], ColKeys[j]).
type Grid struct {
	RowKeys      []string        `json:"rowKeys"`
	ColKeys      []string        `json:"colKeys"`
	Cells        [][]Cell        `json:"cells"`
	Metric       Metric          `json:"metric"`
	Unit         string          `json:"unit"`
	RowDimension Dimension       `json:"rowDimension"`
	ColDimension Dimension       `json:"colDimension"`
	Mode         AggregationMode `json:"mode"`
	DatasetMin   float64         `json:"datasetMin"`
	DatasetMax   float64         `json:"datasetMax"`
	TotalRecords int             `json:"totalRecords"`
}

// NormalizeSelection fills defaults and recovers from an identical
// row/column pair by resetting both axes to the defaults. Unknown
// dimension names are errors; a degenerate pair is not.
func NormalizeSelection(rows, cols Dimension) (Dimension, Dimension, error) {
	if rows == "" {
		rows = DefaultRowDimension
	}
	if cols == "" {
		cols = DefaultColDimension
	}
	if !rows.Valid() {
		return "", "", fmt.Errorf("unknown row dimension %q", rows)
	}
	if !cols.Valid() {
		return "", "", fmt.Errorf("unknown column dimension %q", cols)
	}
	if rows == cols {
		return DefaultRowDimension, DefaultColDimension, nil
	}
	return rows, cols, nil
}

// BuildGrid runs the whole pipeline over one snapshot of runs: resolve
// both axis keys per run (dropping runs that miss either), collect the
// distinct keys, bucket, aggregate each intersection, normalize
// intensities against the dataset extremes, and sort both axes. The
// input slice is not mutated and nothing is cached.
func BuildGrid(records []models.TestRun, opts Options) (*Grid, error) {
	if !opts.Metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", opts.Metric)
	}
	rows, cols, err := NormalizeSelection(opts.Rows, opts.Cols)
	if err != nil {
		return nil, err
	}
	if opts.SwapAxes {
		rows, cols = cols, rows
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAggregate
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown aggregation mode %q", mode)
	}
	sortMode := opts.Sort
	if sortMode == "" {
		sortMode = SortHostnameFirst
	}
	if !sortMode.Valid() {
		return nil, fmt.Errorf("unknown sort mode %q", sortMode)
	}

	type bucketID struct{ row, col string }
	var (
		rowKeys, colKeys []Key
		rowSeen          = map[string]bool{}
		colSeen          = map[string]bool{}
		buckets          = map[bucketID][]models.TestRun{}
		total            int
	)
	for _, run := range records {
		rk := Resolve(run, rows)
		if rk == nil {
			continue
		}
		ck := Resolve(run, cols)
		if ck == nil {
			continue
		}
		if !rowSeen[rk.Join] {
			rowSeen[rk.Join] = true
			rowKeys = append(rowKeys, *rk)
		}
		if !colSeen[ck.Join] {
			colSeen[ck.Join] = true
			colKeys = append(colKeys, *ck)
		}
		id := bucketID{rk.Join, ck.Join}
		buckets[id] = append(buckets[id], run)
		total++
	}

	rowKeys = SortKeys(rowKeys, sortMode)
	colKeys = SortKeys(colKeys, sortMode)

	cells := make([][]Cell, len(rowKeys))
	var dsMin, dsMax float64
	seenValue := false
	for i, rk := range rowKeys {
		cells[i] = make([]Cell, len(colKeys))
		for j, ck := range colKeys {
			bucket := buckets[bucketID{rk.Join, ck.Join}]
			cell := &cells[i][j]
			switch mode {
			case ModeBest:
				best, val := pickBest(bucket, opts.Metric)
				if best == nil {
					continue
				}
				id := best.ID
				cell.HasData = true
				cell.BestRunID = &id
				cell.Stats = &Stats{Count: 1, Min: val, Max: val, Mean: val}
				cell.value = val
			default:
				stats := Aggregate(bucket, opts.Metric)
				if stats.Count == 0 {
					continue
				}
				cell.HasData = true
				cell.Stats = &stats
				cell.value = stats.Mean
			}
			if !seenValue || cell.value < dsMin {
				dsMin = cell.value
			}
			if !seenValue || cell.value > dsMax {
				dsMax = cell.value
			}
			seenValue = true
		}
	}

	for i := range cells {
		for j := range cells[i] {
			cell := &cells[i][j]
			if !cell.HasData {
				continue
			}
			cell.IntensityPercent = Normalize(cell.value, opts.Metric, dsMin, dsMax)
		}
	}

	return &Grid{
		RowKeys:      keyLabels(rowKeys),
		ColKeys:      keyLabels(colKeys),
		Cells:        cells,
		Metric:       opts.Metric,
		Unit:         opts.Metric.Unit(),
		RowDimension: rows,
		ColDimension: cols,
		Mode:         mode,
		DatasetMin:   dsMin,
		DatasetMax:   dsMax,
		TotalRecords: total,
	}, nil
}

// CellValue exposes the representative value that intensity was computed
// from: the mean in aggregate mode, the winning run's value in best mode.
// The boolean is false for empty cells.
func (c Cell) CellValue() (float64, bool) {
	return c.value, c.HasData
}

func keyLabels(keys []Key) []string {
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = k.Label
	}
	return labels
}

package handlers

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/pivot"
	"github.com/fio-analyzer/server/pkg/store"
)

const (
	viewHeatmap = "heatmap"
	viewMatrix  = "matrix"
	viewStacked = "stacked"
)

// maxGridCacheEntries bounds the per-version memo table; distinct
// selections beyond this are rebuilt every request.
const maxGridCacheEntries = 64

var (
	gridBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fio_analyzer_grid_builds_total",
		Help: "Grid constructions, by view and cache outcome.",
	}, []string{"view", "cache"})
	gridBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fio_analyzer_grid_build_duration_seconds",
		Help:    "Time spent building grids from store snapshots.",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})
)

// gridKey identifies one memoized grid: the full effective selection plus
// the data filter. Comparable so it can key a map directly.
type gridKey struct {
	view     string
	metric   pivot.Metric
	row, col pivot.Dimension
	sort     pivot.SortMode
	swap     bool
	filter   string
}

// gridResponse is a built grid plus the echo of the selection that
// produced it.
type gridResponse struct {
	*pivot.Grid
	View     string         `json:"view"`
	Sort     pivot.SortMode `json:"sort"`
	SwapAxes bool           `json:"swapAxes"`
}

// GridHandlers serves the three dashboard views as selections over the
// shared engine. Built grids are memoized per dataset version: any
// import, bulk update, or delete bumps the store version and empties the
// table on next access.
type GridHandlers struct {
	store *store.Store

	mu      sync.Mutex
	version uint64
	memo    map[gridKey]*gridResponse
}

// NewGridHandlers creates handlers over the given store.
func NewGridHandlers(st *store.Store) *GridHandlers {
	return &GridHandlers{store: st, memo: map[gridKey]*gridResponse{}}
}

// Heatmap folds every run of a cell into statistics.
func (h *GridHandlers) Heatmap(c *fiber.Ctx) error {
	return h.serve(c, viewHeatmap)
}

// Matrix keeps only the best run per cell.
func (h *GridHandlers) Matrix(c *fiber.Ctx) error {
	return h.serve(c, viewMatrix)
}

// Stacked folds like the heatmap but defaults to devices by pattern.
func (h *GridHandlers) Stacked(c *fiber.Ctx) error {
	return h.serve(c, viewStacked)
}

func (h *GridHandlers) serve(c *fiber.Ctx, view string) error {
	resp, err := h.build(c, view)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// build parses the selection, consults the memo table, and constructs the
// grid from a fresh store snapshot on a miss. Returned errors are already
// fiber errors.
func (h *GridHandlers) build(c *fiber.Ctx, view string) (*gridResponse, error) {
	opts, err := gridOptionsFromQuery(c, view)
	if err != nil {
		return nil, err
	}
	filter := filterFromQuery(c)
	key := gridKey{
		view:   view,
		metric: opts.Metric,
		row:    opts.Rows,
		col:    opts.Cols,
		sort:   opts.Sort,
		swap:   opts.SwapAxes,
		filter: filterKey(filter),
	}

	version := h.store.Version()
	h.mu.Lock()
	if h.version != version {
		h.version = version
		h.memo = map[gridKey]*gridResponse{}
	}
	if cached, ok := h.memo[key]; ok {
		h.mu.Unlock()
		gridBuilds.WithLabelValues(view, "hit").Inc()
		return cached, nil
	}
	h.mu.Unlock()

	started := time.Now()
	groups, err := h.store.DeviceGroups(filter)
	if err != nil {
		log.Printf("[Grid] Loading device groups failed: %v", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to load test runs")
	}
	grid, err := pivot.BuildGrid(pivot.Flatten(groups), opts)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	gridBuilds.WithLabelValues(view, "miss").Inc()
	gridBuildDuration.WithLabelValues(view).Observe(time.Since(started).Seconds())

	resp := &gridResponse{Grid: grid, View: view, Sort: opts.Sort, SwapAxes: opts.SwapAxes}
	h.mu.Lock()
	if h.version == version && len(h.memo) < maxGridCacheEntries {
		h.memo[key] = resp
	}
	h.mu.Unlock()
	return resp, nil
}

// gridOptionsFromQuery validates the selection up front so bad input never
// reaches the store. The stacked view swaps in pattern-oriented defaults
// before normalization.
func gridOptionsFromQuery(c *fiber.Ctx, view string) (pivot.Options, error) {
	metric := pivot.Metric(c.Query("metric", string(pivot.MetricIOPS)))
	if !metric.Valid() {
		return pivot.Options{}, fiber.NewError(fiber.StatusBadRequest, "Unknown metric "+string(metric))
	}

	rows := pivot.Dimension(c.Query("row"))
	cols := pivot.Dimension(c.Query("col"))
	if view == viewStacked {
		if rows == "" {
			rows = pivot.DimHostDevice
		}
		if cols == "" {
			cols = pivot.DimPattern
		}
	}
	rows, cols, err := pivot.NormalizeSelection(rows, cols)
	if err != nil {
		return pivot.Options{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sortMode := pivot.SortMode(c.Query("sort", string(pivot.SortHostnameFirst)))
	if !sortMode.Valid() {
		return pivot.Options{}, fiber.NewError(fiber.StatusBadRequest, "Unknown sort mode "+string(sortMode))
	}

	mode := pivot.ModeAggregate
	if view == viewMatrix {
		mode = pivot.ModeBest
	}
	return pivot.Options{
		Metric:   metric,
		Rows:     rows,
		Cols:     cols,
		Mode:     mode,
		Sort:     sortMode,
		SwapAxes: c.QueryBool("swap", false),
	}, nil
}

// filterKey canonicalizes a filter into a cache key component.
func filterKey(f models.TestRunFilter) string {
	return strings.Join([]string{
		strings.Join(f.Hostnames, ","),
		strings.Join(f.DriveTypes, ","),
		strings.Join(f.Protocols, ","),
		strings.Join(f.Patterns, ","),
		strings.Join(f.BlockSizes, ","),
	}, "|")
}

package handlers

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/pivot"
	"github.com/fio-analyzer/server/pkg/store"
)

// TestRunHandlers serves test-run queries and the admin mutations.
type TestRunHandlers struct {
	store *store.Store
	hub   *Hub
}

// NewTestRunHandlers creates handlers over the given store.
func NewTestRunHandlers(st *store.Store, hub *Hub) *TestRunHandlers {
	return &TestRunHandlers{store: st, hub: hub}
}

// csvParam splits a comma-separated query value, dropping blanks.
func csvParam(c *fiber.Ctx, name string) []string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

func filterFromQuery(c *fiber.Ctx) models.TestRunFilter {
	return models.TestRunFilter{
		Hostnames:  csvParam(c, "hostnames"),
		DriveTypes: csvParam(c, "drive_types"),
		Protocols:  csvParam(c, "protocols"),
		Patterns:   csvParam(c, "patterns"),
		BlockSizes: csvParam(c, "block_sizes"),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
}

// List returns the latest runs, newest first, with paging metadata.
func (h *TestRunHandlers) List(c *fiber.Ctx) error {
	filter := filterFromQuery(c)
	if filter.Limit < 1 || filter.Limit > 1000 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 1000")
	}
	if filter.Offset < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "offset must not be negative")
	}

	runs, total, err := h.store.List(filter)
	if err != nil {
		log.Printf("[TestRuns] List failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve test runs")
	}
	if runs == nil {
		runs = []models.TestRun{}
	}
	return c.JSON(fiber.Map{
		"test_runs": runs,
		"total":     total,
		"page":      filter.Offset/filter.Limit + 1,
		"per_page":  filter.Limit,
	})
}

// Get returns one run by id.
func (h *TestRunHandlers) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid test run id")
	}
	run, err := h.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Test run not found")
	}
	if err != nil {
		log.Printf("[TestRuns] Get %d failed: %v", id, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve test run")
	}
	return c.JSON(run)
}

// PerformanceData returns the requested metric values for a set of runs,
// with display units. Missing runs and null metrics are skipped; unknown
// metric names are rejected.
func (h *TestRunHandlers) PerformanceData(c *fiber.Ctx) error {
	ids := csvParam(c, "test_run_ids")
	metricNames := csvParam(c, "metric_types")
	if len(ids) == 0 || len(metricNames) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "test_run_ids and metric_types are required")
	}

	metrics := make([]pivot.Metric, 0, len(metricNames))
	for _, name := range metricNames {
		metric := pivot.Metric(name)
		if !metric.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Unknown metric type %q", name))
		}
		metrics = append(metrics, metric)
	}

	results := make([]fiber.Map, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid test run id %q", raw))
		}
		run, err := h.store.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("[TestRuns] Performance data for %d failed: %v", id, err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve performance data")
		}

		values := fiber.Map{}
		for _, metric := range metrics {
			if v := metric.Value(*run); v != nil {
				values[string(metric)] = fiber.Map{"value": *v, "unit": metric.Unit()}
			}
		}
		results = append(results, fiber.Map{"test_run_id": id, "metrics": values})
	}
	return c.JSON(fiber.Map{"performance_data": results})
}

// BulkUpdate rewrites metadata fields on a list of runs.
func (h *TestRunHandlers) BulkUpdate(c *fiber.Ctx) error {
	var req models.BulkUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.TestRunIDs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No test run ids provided")
	}
	if req.Updates.Empty() {
		return fiber.NewError(fiber.StatusBadRequest, "No updates provided")
	}

	updated, err := h.store.BulkUpdate(req.TestRunIDs, req.Updates)
	if err != nil {
		log.Printf("[TestRuns] Bulk update failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to update test runs")
	}

	log.Printf("[TestRuns] Bulk updated %d of %d runs", updated, len(req.TestRunIDs))
	h.hub.Broadcast(EventTestRunsUpdated, fiber.Map{
		"test_run_ids": req.TestRunIDs,
		"updated":      updated,
	})
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Successfully updated %d test runs", updated),
		"updated": updated,
		"failed":  len(req.TestRunIDs) - updated,
	})
}

// Delete removes a run from both tables.
func (h *TestRunHandlers) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid test run id")
	}

	err = h.store.Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Test run not found")
	}
	if err != nil {
		log.Printf("[TestRuns] Delete %d failed: %v", id, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to delete test run")
	}

	log.Printf("[TestRuns] Deleted run %d", id)
	h.hub.Broadcast(EventTestRunsDeleted, fiber.Map{"test_run_id": id})
	return c.JSON(fiber.Map{"message": "Test run deleted successfully"})
}

package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/store"
)

// TimeSeriesHandlers serves the monitoring views: server inventory,
// chronological samples, and per-host trend analysis.
type TimeSeriesHandlers struct {
	store *store.Store
}

// NewTimeSeriesHandlers creates handlers over the given store.
func NewTimeSeriesHandlers(st *store.Store) *TimeSeriesHandlers {
	return &TimeSeriesHandlers{store: st}
}

// Servers lists hosts with recorded runs, grouped by protocol and drive.
func (h *TimeSeriesHandlers) Servers(c *fiber.Ctx) error {
	servers, err := h.store.Servers()
	if err != nil {
		log.Printf("[TimeSeries] Servers failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve servers")
	}
	if servers == nil {
		servers = []models.ServerInfo{}
	}
	return c.JSON(servers)
}

// Latest returns the newest runs from the latest table, newest first.
func (h *TimeSeriesHandlers) Latest(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 1000 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 1000")
	}

	points, err := h.store.LatestSeries(csvParam(c, "hostnames"), limit)
	if err != nil {
		log.Printf("[TimeSeries] Latest failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve latest time series data")
	}
	if points == nil {
		points = []models.TimeSeriesPoint{}
	}
	return c.JSON(fiber.Map{"data": points})
}

// History returns runs from the history table inside an optional date
// window, newest first.
func (h *TimeSeriesHandlers) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 1000)
	if limit < 1 || limit > 10000 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 10000")
	}

	start, err := parseDateParam(c.Query("start_date"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid start_date")
	}
	end, err := parseDateParam(c.Query("end_date"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid end_date")
	}

	points, err := h.store.HistorySeries(csvParam(c, "hostnames"), start, end, limit)
	if err != nil {
		log.Printf("[TimeSeries] History failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve historical time series data")
	}
	if points == nil {
		points = []models.TimeSeriesPoint{}
	}
	return c.JSON(fiber.Map{"data": points})
}

// Trends analyzes one metric for one host over a trailing day window.
func (h *TimeSeriesHandlers) Trends(c *fiber.Ctx) error {
	hostname := c.Query("hostname")
	if hostname == "" {
		return fiber.NewError(fiber.StatusBadRequest, "hostname is required")
	}
	metric := c.Query("metric", "iops")
	days := c.QueryInt("days", 30)
	if days < 1 || days > 365 {
		return fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 365")
	}

	points, summary, err := h.store.Trends(hostname, metric, days)
	if err != nil {
		if errors.Is(err, store.ErrUnsupportedMetric) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		log.Printf("[TimeSeries] Trends for %s/%s failed: %v", hostname, metric, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve trend analysis")
	}
	if len(points) == 0 {
		return c.JSON(fiber.Map{
			"data":           []models.TrendPoint{},
			"trend_analysis": fiber.Map{"message": "No data found for the specified period"},
		})
	}
	return c.JSON(fiber.Map{"data": points, "trend_analysis": summary})
}

// parseDateParam accepts RFC3339 or plain dates; nil when absent.
func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fiber.ErrBadRequest
}

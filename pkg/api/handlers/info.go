package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const apiVersion = "1.0.0"

// InfoHandlers serves the unauthenticated service descriptors.
type InfoHandlers struct{}

// NewInfoHandlers creates the info handlers.
func NewInfoHandlers() *InfoHandlers {
	return &InfoHandlers{}
}

// Health reports liveness for load balancers and uptime probes.
func (h *InfoHandlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   apiVersion,
	})
}

// Info describes the API surface for discovery clients.
func (h *InfoHandlers) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        "FIO Analyzer API",
		"version":     apiVersion,
		"description": "API for FIO (Flexible I/O Tester) performance analysis and time-series monitoring",
		"endpoints":   29,
		"features": []string{
			"FIO result import (single and bulk)",
			"Test run filtering and pagination",
			"Grid aggregation (heatmap, matrix, stacked)",
			"Time-series history and trend analysis",
			"Excel export",
			"Live updates over SSE and WebSocket",
			"Htpasswd account management",
		},
	})
}

package handlers

import (
	"log"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/store"
)

// SystemHandlers reports host and service health to administrators.
type SystemHandlers struct {
	store     *store.Store
	dbPath    string
	uploadDir string
	startedAt time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(st *store.Store, dbPath, uploadDir string) *SystemHandlers {
	return &SystemHandlers{store: st, dbPath: dbPath, uploadDir: uploadDir, startedAt: time.Now()}
}

// System returns a snapshot of the host and the service's own footprint.
// Probes degrade independently: a section that cannot be read is omitted
// rather than failing the whole response.
func (h *SystemHandlers) System(c *fiber.Ctx) error {
	resp := fiber.Map{
		"service": fiber.Map{
			"version":        apiVersion,
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		},
	}

	if info, err := host.Info(); err == nil {
		resp["host"] = fiber.Map{
			"hostname":       info.Hostname,
			"os":             info.OS,
			"platform":       info.Platform,
			"kernel_version": info.KernelVersion,
			"uptime_seconds": info.Uptime,
		}
	} else {
		log.Printf("[System] Host probe failed: %v", err)
	}

	cpuInfo := fiber.Map{}
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuInfo["usage_percent"] = percentages[0]
	} else if err != nil {
		log.Printf("[System] CPU probe failed: %v", err)
	}
	if cores, err := cpu.Counts(true); err == nil {
		cpuInfo["core_count"] = cores
	}
	if len(cpuInfo) > 0 {
		resp["cpu"] = cpuInfo
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory"] = fiber.Map{
			"total_bytes":     vm.Total,
			"used_bytes":      vm.Used,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	} else {
		log.Printf("[System] Memory probe failed: %v", err)
	}

	if usage, err := disk.Usage(h.uploadDir); err == nil {
		resp["disk"] = fiber.Map{
			"path":         h.uploadDir,
			"total_bytes":  usage.Total,
			"used_bytes":   usage.Used,
			"free_bytes":   usage.Free,
			"used_percent": usage.UsedPercent,
		}
	} else {
		log.Printf("[System] Disk probe failed for %s: %v", h.uploadDir, err)
	}

	database := fiber.Map{
		"path":            h.dbPath,
		"dataset_version": h.store.Version(),
	}
	if stat, err := os.Stat(h.dbPath); err == nil {
		database["size_bytes"] = stat.Size()
	}
	if _, total, err := h.store.List(models.TestRunFilter{Limit: 1}); err == nil {
		database["test_runs"] = total
	}
	resp["database"] = database

	return c.JSON(resp)
}

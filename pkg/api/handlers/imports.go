package handlers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fio-analyzer/server/pkg/api/middleware"
	"github.com/fio-analyzer/server/pkg/fio"
	"github.com/fio-analyzer/server/pkg/models"
	"github.com/fio-analyzer/server/pkg/store"
)

var importedRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fio_analyzer_imported_runs_total",
	Help: "Test runs imported, by source.",
}, []string{"source"})

// ImportHandlers ingests FIO JSON documents, either one multipart upload
// at a time or by scanning a server-side directory.
type ImportHandlers struct {
	store         *store.Store
	hub           *Hub
	uploadDir     string
	maxUploadSize int64
}

// NewImportHandlers creates the import handlers.
func NewImportHandlers(st *store.Store, hub *Hub, uploadDir string, maxUploadSize int64) *ImportHandlers {
	return &ImportHandlers{store: st, hub: hub, uploadDir: uploadDir, maxUploadSize: maxUploadSize}
}

// Import parses one uploaded FIO JSON file, archives the original under
// the upload directory, and records the extracted run.
func (h *ImportHandlers) Import(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "File upload is required")
	}
	if !strings.HasSuffix(fh.Filename, ".json") {
		return fiber.NewError(fiber.StatusBadRequest, "Only JSON files are supported")
	}
	if fh.Size > h.maxUploadSize {
		return fiber.NewError(fiber.StatusBadRequest, "File too large")
	}

	src, err := fh.Open()
	if err != nil {
		log.Printf("[Import] Opening upload %s failed: %v", fh.Filename, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read uploaded file")
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		log.Printf("[Import] Reading upload %s failed: %v", fh.Filename, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read uploaded file")
	}

	run, err := h.parseRun(content, fh.Filename)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	path, err := h.saveUpload(content, fh.Filename, run)
	if err != nil {
		log.Printf("[Import] Saving upload %s failed: %v", fh.Filename, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to save uploaded file")
	}
	run.UploadedFilePath = path

	id, err := h.store.Insert(run)
	if err != nil {
		log.Printf("[Import] Inserting run from %s failed: %v", fh.Filename, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to import FIO data")
	}

	log.Printf("[Import] %s imported %s as test run %d (host=%s test=%s)",
		middleware.GetUsername(c), fh.Filename, id, run.Hostname, run.TestName)
	importedRuns.WithLabelValues("upload").Inc()
	h.hub.Broadcast(EventTestRunImported, fiber.Map{
		"test_run_id": id,
		"hostname":    run.Hostname,
		"test_name":   run.TestName,
	})
	return c.JSON(fiber.Map{
		"message":     "FIO data imported successfully",
		"test_run_id": id,
		"filename":    fh.Filename,
	})
}

type bulkImportRequest struct {
	Directory string `json:"directory"`
	DryRun    bool   `json:"dryRun"`
}

// BulkImport walks a server-side directory for FIO JSON files and imports
// every parseable run. With dryRun set it only reports what would be
// imported.
func (h *ImportHandlers) BulkImport(c *fiber.Ctx) error {
	req := bulkImportRequest{Directory: h.uploadDir}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.Directory == "" {
			req.Directory = h.uploadDir
		}
	}
	if info, err := os.Stat(req.Directory); err != nil || !info.IsDir() {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Directory %q not found", req.Directory))
	}

	var totalFiles, processedFiles, totalTestRuns, skippedFiles, errorFiles int
	dryRunResults := make([]fiber.Map, 0)

	walkErr := filepath.WalkDir(req.Directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		totalFiles++

		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[Import] Bulk read %s failed: %v", path, err)
			errorFiles++
			return nil
		}
		run, err := h.parseRun(content, d.Name())
		if errors.Is(err, fio.ErrNoJobs) {
			skippedFiles++
			return nil
		}
		if err != nil {
			errorFiles++
			return nil
		}

		if req.DryRun {
			processedFiles++
			dryRunResults = append(dryRunResults, fiber.Map{
				"path": path,
				"metadata": fiber.Map{
					"hostname":           run.Hostname,
					"protocol":           run.Protocol,
					"drive_type":         run.DriveType,
					"test_name":          run.TestName,
					"block_size":         run.BlockSize,
					"read_write_pattern": run.ReadWritePattern,
				},
			})
			return nil
		}

		run.UploadedFilePath = path
		if _, err := h.store.Insert(run); err != nil {
			log.Printf("[Import] Bulk insert from %s failed: %v", path, err)
			errorFiles++
			return nil
		}
		processedFiles++
		totalTestRuns++
		return nil
	})
	if walkErr != nil {
		log.Printf("[Import] Bulk scan of %s failed: %v", req.Directory, walkErr)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to scan import directory")
	}

	message := fmt.Sprintf("Bulk import completed: %d files processed, %d test runs imported",
		processedFiles, totalTestRuns)
	if req.DryRun {
		message = fmt.Sprintf("Dry run completed: %d of %d files importable", processedFiles, totalFiles)
	}
	log.Printf("[Import] %s (dir=%s dryRun=%t errors=%d skipped=%d)",
		message, req.Directory, req.DryRun, errorFiles, skippedFiles)

	resp := fiber.Map{
		"message": message,
		"statistics": fiber.Map{
			"totalFiles":     totalFiles,
			"processedFiles": processedFiles,
			"totalTestRuns":  totalTestRuns,
			"skippedFiles":   skippedFiles,
			"errorFiles":     errorFiles,
		},
	}
	if req.DryRun {
		resp["dryRunResults"] = dryRunResults
	} else if totalTestRuns > 0 {
		importedRuns.WithLabelValues("bulk").Add(float64(totalTestRuns))
		h.hub.Broadcast(EventTestRunImported, fiber.Map{"imported": totalTestRuns, "source": "bulk"})
	}
	return c.JSON(resp)
}

func (h *ImportHandlers) parseRun(content []byte, filename string) (models.TestRun, error) {
	report, err := fio.Parse(content)
	if err != nil {
		return models.TestRun{}, err
	}
	return report.TestRun(filename, time.Now())
}

// saveUpload archives the raw upload under
// <uploadDir>/<host>/<protocol>/<date>/<time>/<uuid>_<name>.
func (h *ImportHandlers) saveUpload(content []byte, filename string, run models.TestRun) (string, error) {
	now := time.Now()
	dir := filepath.Join(h.uploadDir, run.Hostname, run.Protocol,
		now.Format("2006-01-02"), now.Format("15-04"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filepath.Base(filename)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

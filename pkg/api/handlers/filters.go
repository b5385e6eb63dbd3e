package handlers

import (
	"log"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/fio-analyzer/server/pkg/pivot"
	"github.com/fio-analyzer/server/pkg/store"
)

// FilterHandlers serves the distinct values behind the dashboard's filter
// controls.
type FilterHandlers struct {
	store *store.Store
}

// NewFilterHandlers creates handlers over the given store.
func NewFilterHandlers(st *store.Store) *FilterHandlers {
	return &FilterHandlers{store: st}
}

// Options lists the filterable values present in the latest runs. Block
// sizes come back in byte order rather than the store's lexicographic
// order, so "8K" sorts before "64K".
func (h *FilterHandlers) Options(c *fiber.Ctx) error {
	opts, err := h.store.FilterOptions()
	if err != nil {
		log.Printf("[Filters] Options failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve filter options")
	}

	sort.SliceStable(opts.BlockSizes, func(i, j int) bool {
		bi, bj := pivot.ParseBlockSize(opts.BlockSizes[i]), pivot.ParseBlockSize(opts.BlockSizes[j])
		if bi != bj {
			return bi < bj
		}
		return opts.BlockSizes[i] < opts.BlockSizes[j]
	})
	sort.SliceStable(opts.TestSizes, func(i, j int) bool {
		bi, bj := pivot.ParseBlockSize(opts.TestSizes[i]), pivot.ParseBlockSize(opts.TestSizes[j])
		if bi != bj {
			return bi < bj
		}
		return opts.TestSizes[i] < opts.TestSizes[j]
	})
	return c.JSON(opts)
}

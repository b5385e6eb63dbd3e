package handlers

import (
	"bytes"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"github.com/fio-analyzer/server/pkg/pivot"
)

const (
	xlsxValuesSheet    = "Values"
	xlsxIntensitySheet = "Intensity"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Export renders the selected grid as an Excel workbook: one sheet with
// the metric values, one with the normalized intensities.
func (h *GridHandlers) Export(c *fiber.Ctx) error {
	view := c.Query("view", viewHeatmap)
	switch view {
	case viewHeatmap, viewMatrix, viewStacked:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Unknown view "+view)
	}

	resp, err := h.build(c, view)
	if err != nil {
		return err
	}
	out, err := renderGridWorkbook(resp)
	if err != nil {
		log.Printf("[Grid] Export failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render workbook")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="fio-%s-%s.xlsx"`, view, resp.Metric))
	return c.Send(out)
}

func cellName(col, row int) string {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return ""
	}
	name, err := excelize.JoinCellName(columnName, row)
	if err != nil {
		return ""
	}
	return name
}

func renderGridWorkbook(resp *gridResponse) ([]byte, error) {
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", xlsxValuesSheet)
	_, _ = f.NewSheet(xlsxIntensitySheet)

	valuesTitle := fmt.Sprintf("%s (%s), %s view", resp.Metric, resp.Unit, resp.View)
	writeGridSheet(f, xlsxValuesSheet, resp, valuesTitle, func(cell pivot.Cell) (any, bool) {
		v, ok := cell.CellValue()
		return v, ok
	})
	intensityTitle := fmt.Sprintf("%s intensity (0-100), %s view", resp.Metric, resp.View)
	writeGridSheet(f, xlsxIntensitySheet, resp, intensityTitle, func(cell pivot.Cell) (any, bool) {
		return cell.IntensityPercent, cell.HasData
	})

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write xlsx workbook to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeGridSheet lays one grid out as a matrix: row keys down column A,
// column keys across the header row, empty cells left blank.
func writeGridSheet(f *excelize.File, sheet string, resp *gridResponse, title string, value func(pivot.Cell) (any, bool)) {
	bold, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "Z", 14)

	_ = f.SetCellValue(sheet, cellName(1, 1), title)
	_ = f.SetCellStyle(sheet, cellName(1, 1), cellName(1, 1), bold)

	header := 3
	_ = f.SetCellValue(sheet, cellName(1, header), fmt.Sprintf("%s \\ %s", resp.RowDimension, resp.ColDimension))
	_ = f.SetCellStyle(sheet, cellName(1, header), cellName(1, header), bold)
	for j, colKey := range resp.ColKeys {
		_ = f.SetCellValue(sheet, cellName(j+2, header), colKey)
		_ = f.SetCellStyle(sheet, cellName(j+2, header), cellName(j+2, header), bold)
	}

	for i, rowKey := range resp.RowKeys {
		row := header + 1 + i
		_ = f.SetCellValue(sheet, cellName(1, row), rowKey)
		for j := range resp.ColKeys {
			if v, ok := value(resp.Cells[i][j]); ok {
				_ = f.SetCellValue(sheet, cellName(j+2, row), v)
			}
		}
	}
}

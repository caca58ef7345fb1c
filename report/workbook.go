/*
Package report turns an analysis into a downloadable order report.

PURPOSE:
  The representative downloads the reconciled order of a client/vendor
  to send it to purchasing. The report is always built as an XLSX
  workbook; a PDF is produced by posting that workbook to an external
  renderer. Either can be archived to object storage.

COMPONENTS:
  - workbook.go: XLSX layout ("Order" and "Added" sheets)
  - renderer.go: HTTP client for the external PDF renderer
  - archive.go:  Object-storage archive (MinIO / S3 API)
  - exporter.go: Export operation tying the three together

ERRORS:
  Renderer and archive failures are engine.UpstreamError. Analysis
  errors (not found, schema) pass through unchanged.
*/
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/warp/order-engine/engine"
)

// Sheet names.
const (
	SheetOrder = "Order"
	SheetAdded = "Added"
)

var orderHeaders = []string{
	"Category", "Material", "Description", "Presentation", "Factor", "Unit",
	"Current", "Comparison", "Order 1", "Order 2", "Total",
}

var addedHeaders = []string{
	"Category", "Material", "Description", "Presentation", "Factor", "Unit", "Quantity", "Updated",
}

// BuildWorkbook lays out the analysis as an XLSX workbook and returns its
// bytes.
func BuildWorkbook(res *engine.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOrder); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetAdded); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, err
	}

	// Header block
	info := [][]interface{}{
		{"Client", res.Header.ClientID, res.Header.ClientName},
		{"Vendor", res.Header.VendorID},
		{"Period", res.Periods.CurrentColumn, res.Periods.ComparisonColumn},
	}
	if res.SnapshotID != "" {
		saved := ""
		if res.SavedAt != nil {
			saved = res.SavedAt.UTC().Format("2006-01-02 15:04")
		}
		info = append(info, []interface{}{"Saved order", res.SnapshotID, saved})
	}
	for i, r := range info {
		if err := setRow(f, SheetOrder, i+1, r); err != nil {
			return nil, err
		}
	}

	start := len(info) + 2
	if err := writeHeader(f, SheetOrder, start, orderHeaders, bold); err != nil {
		return nil, err
	}
	row := start + 1
	for _, g := range res.Groups {
		for _, it := range g.Items {
			current, _ := it.Current.Float64()
			comparison, _ := it.Comparison.Float64()
			if err := setRow(f, SheetOrder, row, []interface{}{
				g.Category, it.MaterialCode, it.Description, it.Presentation,
				it.PackagingFactor, it.PackagingUnit, current, comparison,
				it.Slot1, it.Slot2, it.Total,
			}); err != nil {
				return nil, err
			}
			row++
		}
	}

	if err := writeHeader(f, SheetAdded, 1, addedHeaders, bold); err != nil {
		return nil, err
	}
	for i, a := range res.AddedProducts {
		if err := setRow(f, SheetAdded, i+2, []interface{}{
			a.Category, a.MaterialCode, a.Description, a.Presentation,
			a.PackagingFactor, a.PackagingUnit, a.Quantity, a.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		}); err != nil {
			return nil, err
		}
	}

	widths := []float64{16, 12, 32, 14, 8, 8, 10, 12, 10, 10, 10}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetOrder, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, row int, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

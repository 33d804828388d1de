// Package report renders aggregated document data to files consumers can
// open outside the bridge, currently xlsx bill-of-materials workbooks.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

const bomSheet = "BOM"

// headerRow is the first spreadsheet row holding column titles; the rows
// above it carry the document summary block.
const headerRow = 5

var bomColumns = []interface{}{"Position", "File Name", "Path", "Configuration", "Type", "Quantity", "Status"}

type ExcelExporter struct {
	log *slog.Logger
}

func NewExcelExporter(log *slog.Logger) *ExcelExporter {
	if log == nil {
		log = slog.Default()
	}
	return &ExcelExporter{log: log}
}

// Export writes one workbook with a summary block and one row per BOM line.
// The output directory is created when missing.
func (e *ExcelExporter) Export(ctx context.Context, output, document, configuration string, items []domain.BOMItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), bomSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	scope := configuration
	if scope == "" {
		scope = "active"
	}
	summary := [][]interface{}{
		{"Document", document},
		{"Configuration", scope},
		{"Generated", time.Now().Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell: %w", err)
		}
		if err := f.SetSheetRow(bomSheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	headerCell, err := excelize.CoordinatesToCellName(1, headerRow)
	if err != nil {
		return fmt.Errorf("header cell: %w", err)
	}
	if err := f.SetSheetRow(bomSheet, headerCell, &bomColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := e.styleHeader(f); err != nil {
		return err
	}

	for i, item := range items {
		status := "ok"
		if item.Broken {
			status = "missing"
		}
		row := []interface{}{
			i + 1,
			item.FileName,
			item.FilePath,
			item.Configuration,
			string(item.Type),
			item.Quantity,
			status,
		}
		cell, err := excelize.CoordinatesToCellName(1, headerRow+1+i)
		if err != nil {
			return fmt.Errorf("item cell: %w", err)
		}
		if err := f.SetSheetRow(bomSheet, cell, &row); err != nil {
			return fmt.Errorf("write item row: %w", err)
		}
	}

	if err := f.SaveAs(output); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	e.log.Info("bom_workbook_written",
		"output", output, "document", document, "rows", len(items))
	return nil
}

func (e *ExcelExporter) styleHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(bomColumns), headerRow)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	first, err := excelize.CoordinatesToCellName(1, headerRow)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(bomSheet, first, last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetColWidth(bomSheet, "A", "A", 10); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(bomSheet, "B", "E", 28); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	return nil
}

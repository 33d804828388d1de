package report

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

func testExporter() *ExcelExporter {
	return NewExcelExporter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExcelExporterWritesWorkbook(t *testing.T) {
	output := filepath.Join(t.TempDir(), "bom.xlsx")
	items := []domain.BOMItem{
		{FileName: "bolt.sldprt", FilePath: `C:\vault\bolt.sldprt`, Configuration: "Default", Type: domain.DocTypePart, Quantity: 3},
		{FileName: "lost.sldprt", FilePath: `C:\vault\lost.sldprt`, Configuration: "Default", Type: domain.DocTypePart, Quantity: 1, Broken: true},
	}

	err := testExporter().Export(context.Background(), output, `C:\vault\gearbox.sldasm`, "Default", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	document, err := f.GetCellValue(bomSheet, "B1")
	if err != nil || document != `C:\vault\gearbox.sldasm` {
		t.Fatalf("expected document summary, got %q err=%v", document, err)
	}
	header, err := f.GetCellValue(bomSheet, "A5")
	if err != nil || header != "Position" {
		t.Fatalf("expected header row at 5, got %q err=%v", header, err)
	}
	name, _ := f.GetCellValue(bomSheet, "B6")
	if name != "bolt.sldprt" {
		t.Fatalf("expected first item row, got %q", name)
	}
	quantity, _ := f.GetCellValue(bomSheet, "F6")
	if quantity != "3" {
		t.Fatalf("expected quantity 3, got %q", quantity)
	}
	status, _ := f.GetCellValue(bomSheet, "G7")
	if status != "missing" {
		t.Fatalf("expected broken component flagged, got %q", status)
	}
}

func TestExcelExporterCreatesOutputDir(t *testing.T) {
	output := filepath.Join(t.TempDir(), "reports", "2026", "bom.xlsx")

	err := testExporter().Export(context.Background(), output, "top.sldasm", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected workbook on disk: %v", err)
	}
}

func TestExcelExporterEmptyBOMKeepsHeader(t *testing.T) {
	output := filepath.Join(t.TempDir(), "bom.xlsx")

	if err := testExporter().Export(context.Background(), output, "top.sldasm", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	scope, _ := f.GetCellValue(bomSheet, "B2")
	if scope != "active" {
		t.Fatalf("expected active configuration marker, got %q", scope)
	}
	header, _ := f.GetCellValue(bomSheet, "G5")
	if header != "Status" {
		t.Fatalf("expected full header row, got %q", header)
	}
}

func TestExcelExporterRequiresOutput(t *testing.T) {
	if err := testExporter().Export(context.Background(), "", "top.sldasm", "", nil); err == nil {
		t.Fatal("expected error for empty output path")
	}
}

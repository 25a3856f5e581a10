package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements Writer by saving a workbook to a local file.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer that replaces path on every Write.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write saves plan as a workbook with PLAN and SUMMARY sheets.
func (w *XLSXWriter) Write(_ context.Context, plan Plan) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", w.path, err)
	}
	if err := WriteWorkbook(f, plan); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	return nil
}

// WriteWorkbook encodes plan as an XLSX workbook onto out.
func WriteWorkbook(out io.Writer, plan Plan) error {
	f, err := buildWorkbook(plan)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func buildWorkbook(plan Plan) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", PlanSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("renaming default sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating %s sheet: %w", SummarySheet, err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for sheet, rows := range map[string][][]any{
		PlanSheet:    BuildPlanRows(plan),
		SummarySheet: BuildSummaryRows(plan),
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetRowStyle(sheet, 1, 1, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("styling %s header: %w", sheet, err)
		}
	}

	if err := f.SetColWidth(PlanSheet, "A", "A", 24); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s columns: %w", PlanSheet, err)
	}
	if err := f.SetColWidth(PlanSheet, "M", "M", 72); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s columns: %w", PlanSheet, err)
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("addressing %s row %d: %w", sheet, i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

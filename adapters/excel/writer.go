package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"tabflow/domain/table"
)

// TableWriter renders a result table to xlsx or csv, chosen by the
// output file extension
type TableWriter struct {
	// SheetName names the output sheet for xlsx files
	SheetName string
}

// NewTableWriter creates a writer with the default output sheet
func NewTableWriter() *TableWriter {
	return &TableWriter{SheetName: "Processed_Data"}
}

// WriteTable writes the table with its final column order. Number and
// boolean cells keep their native types in xlsx output.
func (w *TableWriter) WriteTable(ctx context.Context, tbl *table.Table, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return w.writeCSV(tbl, path)
	case ".xlsx":
		return w.writeExcel(tbl, path)
	default:
		return fmt.Errorf("unsupported output type: %s", filepath.Ext(path))
	}
}

func (w *TableWriter) writeCSV(tbl *table.Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(tbl.RenderRows()); err != nil {
		return fmt.Errorf("failed to write CSV file %s: %w", path, err)
	}
	writer.Flush()
	return writer.Error()
}

func (w *TableWriter) writeExcel(tbl *table.Table, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if w.SheetName != "" {
		f.SetSheetName(sheet, w.SheetName)
		sheet = w.SheetName
	}

	for colIdx, name := range tbl.Columns {
		cell, err := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for rowIdx, row := range tbl.Rows {
		for colIdx, name := range tbl.Columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			v := row.Cell(name)
			if v.IsMissing {
				continue
			}
			var err2 error
			switch {
			case v.IsNumber():
				err2 = f.SetCellValue(sheet, cell, v.AsFloat64())
			case v.IsBoolean():
				err2 = f.SetCellValue(sheet, cell, v.AsBoolean())
			case v.IsTimestamp():
				err2 = f.SetCellValue(sheet, cell, v.AsTime())
			default:
				err2 = f.SetCellValue(sheet, cell, v.Render())
			}
			if err2 != nil {
				return err2
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file %s: %w", path, err)
	}
	return nil
}

package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files into raw string rows.
// One instance is safe for concurrent use; it holds no file state.
type DataReader struct{}

// NewDataReader creates a data reader that handles both Excel and CSV
// files
func NewDataReader() *DataReader {
	return &DataReader{}
}

// ReadTable reads one sheet of one file, honoring the header position.
// headerRow and headerCol are zero-based: the header cells start at
// that offset and data rows follow directly below.
func (r *DataReader) ReadTable(ctx context.Context, path, sheet string, headerRow, headerCol int) ([]string, [][]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("input file not found: %s", path)
	}
	if headerRow < 0 || headerCol < 0 {
		return nil, nil, fmt.Errorf("header offsets cannot be negative")
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = r.readCSV(path)
	case ".xlsx", ".xls", ".xlsm":
		rows, err = r.readExcel(path, sheet)
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	return sliceAtHeader(path, rows, headerRow, headerCol)
}

func (r *DataReader) readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, path, err)
	}
	return rows, nil
}

func (r *DataReader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file %s: %w", path, err)
	}
	return rows, nil
}

// sliceAtHeader extracts the header cells and the data rows beneath
// them. Header cells are trimmed; ragged data rows are padded with
// empty cells so every row matches the header width.
func sliceAtHeader(path string, rows [][]string, headerRow, headerCol int) ([]string, [][]string, error) {
	if headerRow >= len(rows) {
		return nil, nil, fmt.Errorf("%s has no header row at offset %d (%d rows)", path, headerRow, len(rows))
	}

	rawHeader := rows[headerRow]
	if headerCol >= len(rawHeader) {
		return nil, nil, fmt.Errorf("%s header row has no column at offset %d", path, headerCol)
	}
	headers := make([]string, 0, len(rawHeader)-headerCol)
	for _, cell := range rawHeader[headerCol:] {
		headers = append(headers, strings.TrimSpace(cell))
	}
	// drop trailing unnamed columns, common in hand-edited sheets
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("%s header row at offset %d is empty", path, headerRow)
	}

	var data [][]string
	for _, row := range rows[headerRow+1:] {
		cells := make([]string, len(headers))
		for i := range headers {
			src := headerCol + i
			if src < len(row) {
				cells[i] = strings.TrimSpace(row[src])
			}
		}
		data = append(data, cells)
	}
	return headers, data, nil
}

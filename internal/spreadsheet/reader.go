// Package spreadsheet loads uploaded contact sheets into a uniform
// in-memory table. Workbooks (.xlsx and friends) are parsed with
// excelize, plain .csv files with encoding/csv; callers never see the
// difference.
package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable reports that the upload could not be parsed as a
// spreadsheet at all, as opposed to parsing fine but missing columns.
var ErrUnreadable = errors.New("spreadsheet unreadable")

// Table is a parsed sheet: one header row plus data rows. Every row is
// padded to the header width so column indexes are always in range.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Read parses the first sheet of the upload. The filename only selects
// the parser; content is read from r.
func Read(filename string, r io.Reader) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		records, err = readCSV(r)
	} else {
		records, err = readWorkbook(r)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return records, nil
}

func readWorkbook(r io.Reader) ([][]string, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadable)
	}
	records, err := file.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return records, nil
}

func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadable)
	}

	headers := trimRow(records[0])
	if !hasContent(headers) {
		return nil, fmt.Errorf("%w: header row is empty", ErrUnreadable)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := padRow(trimRow(record), len(headers))
		if hasContent(row) {
			rows = append(rows, row)
		}
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

func trimRow(record []string) []string {
	row := make([]string, len(record))
	for i, cell := range record {
		row[i] = strings.TrimSpace(cell)
	}
	return row
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row[:width]
}

func hasContent(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return true
		}
	}
	return false
}

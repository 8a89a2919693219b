package transcode

import (
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"listingqty/internal/cleaner"
)

// ReadXLSX reads every sheet of a workbook. Each sheet's first non-empty row
// is its header.
func ReadXLSX(r io.Reader) ([]cleaner.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []cleaner.Record
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}

		var header []string
		for _, row := range rows {
			if isBlank(row) {
				continue
			}
			if header == nil {
				header = make([]string, len(row))
				for i, cell := range row {
					header[i] = strings.TrimSpace(cell)
				}
				continue
			}
			out = append(out, cleaner.FromRow(header, row))
		}
	}
	return out, nil
}

// WriteXLSX writes rows to the first sheet of a new workbook under
// Header(rows).
func WriteXLSX(path string, rows []cleaner.Record) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := Header(rows)
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for c, value := range row.Row(header) {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}

package transcode

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"listingqty/internal/cleaner"
)

// ReadCSV reads rows under the first line's header. Short rows are padded
// and blank lines skipped.
func ReadCSV(r io.Reader, comma rune) ([]cleaner.Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out []cleaner.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(row) {
			continue
		}
		out = append(out, cleaner.FromRow(header, row))
	}
	return out, nil
}

func WriteCSV(w io.Writer, rows []cleaner.Record, comma rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma

	header := Header(rows)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.Row(header)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

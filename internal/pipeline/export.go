package pipeline

import (
	"os"
	"path/filepath"
	"strconv"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/transcode"
)

// exportRecords lays rows out as listing_id, source, ref, line_no, the
// cleaned fields, quantity, quantity_phrase, candidates.
func exportRecords(rows []internal.ExportRow) []cleaner.Record {
	out := make([]cleaner.Record, 0, len(rows))
	for _, row := range rows {
		rec := cleaner.NewRecord(
			"listing_id", strconv.Itoa(row.ListingID),
			"source", row.Source,
			"ref", row.Ref,
			"line_no", strconv.Itoa(row.LineNo),
		)
		for _, key := range row.Record.Keys() {
			rec.Set(key, row.Record.Value(key))
		}
		rec.Set(cleaner.QuantityColumn, derefInt(row.Quantity))
		rec.Set("quantity_phrase", derefString(row.Phrase))
		rec.Set("candidates", strconv.Itoa(row.Candidates))
		out = append(out, rec)
	}
	return out
}

func ExportRowsToXLSX(rows []internal.ExportRow, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return transcode.WriteXLSX(outputPath, exportRecords(rows))
}

func ExportRowsToCSV(rows []internal.ExportRow, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := transcode.WriteCSV(f, exportRecords(rows), ','); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ExportRows picks the writer from the output extension.
func ExportRows(rows []internal.ExportRow, outputPath string) error {
	format, err := transcode.FormatOf(outputPath)
	if err != nil {
		return err
	}
	if format == transcode.FormatXLSX {
		return ExportRowsToXLSX(rows, outputPath)
	}
	return ExportRowsToCSV(rows, outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

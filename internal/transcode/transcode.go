// Package transcode moves listing records between csv and xlsx files,
// cleaning each row on the way through.
package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"listingqty/internal/cleaner"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported table format: %s", path)
	}
}

// Header is the widest record's key order followed by any key only seen in
// other records. Among equally wide records the first one wins.
func Header(rows []cleaner.Record) []string {
	widest := -1
	for i, row := range rows {
		if widest < 0 || row.Len() > rows[widest].Len() {
			widest = i
		}
	}
	if widest < 0 {
		return nil
	}

	header := rows[widest].Keys()
	seen := make(map[string]struct{}, len(header))
	for _, key := range header {
		seen[key] = struct{}{}
	}
	for _, row := range rows {
		for _, key := range row.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			header = append(header, key)
		}
	}
	return header
}

// Options tune delimited input and output. The zero value is plain csv.
type Options struct {
	Comma rune
}

func (o Options) comma(path string) rune {
	if o.Comma != 0 {
		return o.Comma
	}
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// ReadFile loads every record from a csv or xlsx file.
func ReadFile(path string, opts Options) ([]cleaner.Record, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch format {
	case FormatXLSX:
		return ReadXLSX(f)
	default:
		return ReadCSV(f, opts.comma(path))
	}
}

// WriteFile writes rows under Header(rows), creating parent directories.
func WriteFile(path string, rows []cleaner.Record, opts Options) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	switch format {
	case FormatXLSX:
		return WriteXLSX(path, rows)
	default:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteCSV(f, rows, opts.comma(path)); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
}

// Transcode reads in, cleans every record with c, and writes the result to
// out. It returns the number of records written.
func Transcode(in, out string, c *cleaner.Cleaner, opts Options) (int, error) {
	rows, err := ReadFile(in, opts)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", in, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no rows in %s", in)
	}

	cleaned := make([]cleaner.Record, 0, len(rows))
	for _, row := range rows {
		cleaned = append(cleaned, c.Clean(row))
	}
	if err := WriteFile(out, cleaned, opts); err != nil {
		return 0, fmt.Errorf("write %s: %w", out, err)
	}
	return len(cleaned), nil
}

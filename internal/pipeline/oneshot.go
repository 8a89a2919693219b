package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"listingqty/internal"
)

// InputTypeOf maps a file extension to an input type.
func InputTypeOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return "email", nil
	case ".pdf":
		return "pdf", nil
	case ".xlsx", ".xlsm":
		return "xlsx", nil
	case ".tsv":
		return "tsv", nil
	case ".csv", ".txt":
		return "csv", nil
	case ".html", ".htm":
		return "email_table", nil
	default:
		return "", fmt.Errorf("cannot infer input type of %s", path)
	}
}

// ExtractItemsFromInput reads listings from input. For email_text and
// email_table input is the content itself; every other type takes a path.
// An empty type is inferred from the path.
func ExtractItemsFromInput(inputType string, input string) ([]internal.ListingItem, error) {
	if inputType == "" || inputType == "auto" {
		t, err := InputTypeOf(input)
		if err != nil {
			return nil, err
		}
		if t == "email_table" {
			blob, err := os.ReadFile(input)
			if err != nil {
				return nil, err
			}
			return parseEmailHTMLTable(string(blob)), nil
		}
		inputType = t
	}

	switch inputType {
	case "email_text":
		return parseEmailText(input), nil
	case "email_table":
		return parseEmailHTMLTable(input), nil
	}

	blob, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	ref := filepath.Base(input)

	var items []internal.ListingItem
	switch inputType {
	case "email":
		extracted, err := ExtractItemsFromEmailRaw(blob)
		if err != nil {
			return nil, err
		}
		return extracted.Items, nil
	case "csv":
		items, err = parseCSV(blob, ',')
	case "tsv":
		items, err = parseCSV(blob, '\t')
	case "xlsx":
		items, err = parseXLSX(blob)
	case "pdf":
		items, err = parsePDF(blob)
	default:
		return nil, fmt.Errorf("unsupported input type: %s", inputType)
	}
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Ref == "" {
			items[i].Ref = ref
		} else {
			items[i].Ref = ref + " " + items[i].Ref
		}
	}
	return items, nil
}

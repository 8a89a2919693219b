package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/transcode"
)

func TestExportRecords(t *testing.T) {
	n := 24
	phrase := "Box of 2 doz"
	rows := []internal.ExportRow{
		{ListingID: 7, Source: "csv", Ref: "in.csv", LineNo: 1, Record: cleaner.NewRecord("title", "Glasses", "quantity", "24"), Quantity: &n, Phrase: &phrase, Candidates: 2},
		{ListingID: 8, Source: "csv", Ref: "in.csv", LineNo: 2, Record: cleaner.NewRecord("title", "Mystery")},
	}

	got := exportRecords(rows)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"listing_id", "source", "ref", "line_no", "title", "quantity", "quantity_phrase", "candidates"}, got[0].Keys())
	assert.Equal(t, []string{"7", "csv", "in.csv", "1", "Glasses", "24", "Box of 2 doz", "2"}, got[0].Row(got[0].Keys()))
	assert.Equal(t, "", got[1].Value("quantity"))
	assert.Equal(t, "0", got[1].Value("candidates"))
}

func TestExportRows(t *testing.T) {
	dir := t.TempDir()
	rows := []internal.ExportRow{{ListingID: 1, Source: "feed", Ref: "sku", Record: cleaner.NewRecord("title", "Pens")}}

	csvPath := filepath.Join(dir, "a", "rows.csv")
	require.NoError(t, ExportRows(rows, csvPath))
	blob, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "listing_id,source,ref,line_no,title,quantity,quantity_phrase,candidates\n1,feed,sku,0,Pens,,,0\n", string(blob))

	xlsxPath := filepath.Join(dir, "b", "rows.xlsx")
	require.NoError(t, ExportRows(rows, xlsxPath))
	back, err := transcode.ReadFile(xlsxPath, transcode.Options{})
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "Pens", back[0].Value("title"))

	assert.Error(t, ExportRows(rows, filepath.Join(dir, "rows.json")))
}

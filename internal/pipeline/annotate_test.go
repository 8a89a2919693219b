package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/qty"
	"listingqty/internal/transcode"
)

var defaultFields = []string{"title", "desc", "description", "details"}

func TestAnnotate(t *testing.T) {
	a := NewAnnotator(qty.New(), defaultFields)
	cleaned, guess := a.Annotate(cleaner.NewRecord("title", "Glasses", "desc", "<b>Box of 2 doz</b>", "price", "$30.00"))

	assert.Equal(t, []string{"title", "desc", "price", "quantity"}, cleaned.Keys())
	assert.Equal(t, "Box of 2 doz", cleaned.Value("desc"))
	assert.Equal(t, "30.00", cleaned.Value("price"))
	assert.Equal(t, "24", cleaned.Value("quantity"))

	require.NotNil(t, guess.Quantity)
	assert.Equal(t, 24, *guess.Quantity)
	require.NotNil(t, guess.Phrase)
	assert.Equal(t, "Box of 2 doz", *guess.Phrase)
	require.Len(t, guess.Candidates, 2)
	assert.Equal(t, "container_of", guess.Candidates[0].Kind)
}

func TestAnnotateNoQuantity(t *testing.T) {
	a := NewAnnotator(qty.New(), defaultFields)
	cleaned, guess := a.Annotate(cleaner.NewRecord("title", "Mystery item"))
	assert.Equal(t, "", cleaned.Value("quantity"))
	assert.Nil(t, guess.Quantity)
	assert.Nil(t, guess.Phrase)
	assert.Empty(t, guess.Candidates)
}

func TestAnnotateFallsBackToAllFields(t *testing.T) {
	a := NewAnnotator(qty.New(), []string{" Title "})
	_, guess := a.Annotate(cleaner.NewRecord("Name", "Pens 10pk"))
	require.NotNil(t, guess.Quantity)
	assert.Equal(t, 10, *guess.Quantity)

	_, guess = a.Annotate(cleaner.NewRecord("TITLE", "Plates", "Name", "Pens 10pk"))
	assert.Nil(t, guess.Quantity, "named fields win when present")
}

func TestAnnotateRestatedQuantity(t *testing.T) {
	a := NewAnnotator(qty.New(), defaultFields)
	_, guess := a.Annotate(cleaner.NewRecord(
		"title", "Napkins 12-pack",
		"desc", "Each pack contains 12 napkins, 12 per pack.",
	))
	require.NotNil(t, guess.Quantity)
	assert.Equal(t, 12, *guess.Quantity)
}

func TestAnnotateFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "listings.csv")
	require.NoError(t, os.WriteFile(in, []byte("title,desc,price\nGlasses,Box of 2 doz,$30.00\nMystery,,1\n"), 0o644))

	a := NewAnnotator(qty.New(), defaultFields)
	out := filepath.Join(dir, "out", "listings.xlsx")
	res, err := a.AnnotateFile("", in, out, transcode.Options{})
	require.NoError(t, err)
	assert.Equal(t, AnnotateResult{Records: 2, Guessed: 1}, res)

	rows, err := transcode.ReadFile(out, transcode.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "24", rows[0].Value("quantity"))
	assert.Equal(t, "", rows[1].Value("quantity"))
}

func TestAnnotateItemsKeepsItem(t *testing.T) {
	a := NewAnnotator(qty.New(), defaultFields)
	items := []internal.ListingItem{{LineNo: 3, Source: internal.SourcePDF, Ref: "page 1", Record: cleaner.NewRecord("title", "Cups 6pk")}}
	got := a.AnnotateItems(items)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Item.LineNo)
	assert.Equal(t, "6", got[0].Cleaned.Value("quantity"))
}

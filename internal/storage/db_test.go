package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal"
	"listingqty/internal/cleaner"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestUpsertEmail(t *testing.T) {
	db := openTestDB(t)

	first, err := db.UpsertEmail("imap", "INBOX:1", "Offer", "a@b.c", "2026-01-02T00:00:00Z", "h1", "/raw/1.eml", "fetched")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "fetched", first.Status)

	require.NoError(t, db.UpdateEmailStatus(first.ID, "processed"))

	again, err := db.UpsertEmail("imap", "INBOX:1", "Offer v2", "a@b.c", "2026-01-02T00:00:00Z", "h2", "/raw/1.eml", "fetched")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Offer v2", again.Subject)
	assert.Equal(t, "processed", again.Status, "status survives a re-fetch")

	byID, err := db.EmailByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", byID.Hash)

	_, err = db.EmailByProviderMessageID("imap", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.EmailByID(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEmailsByStatus(t *testing.T) {
	db := openTestDB(t)
	_, err := db.UpsertEmail("imap", "2", "", "", "2026-01-03", "h", "r2", "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("imap", "1", "", "", "2026-01-01", "h", "r1", "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("imap", "3", "", "", "2026-01-02", "h", "r3", "failed")
	require.NoError(t, err)

	rows, err := db.ListEmailsByStatus("fetched", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].MessageID)
	assert.Equal(t, "2", rows[1].MessageID)
}

func TestListingsAndExport(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("gmail", "m1", "", "", "", "h", "r", "fetched")
	require.NoError(t, err)

	raw := cleaner.NewRecord("title", "Glasses", "desc", "Box of 2 doz")
	cleaned := raw.Clone()
	cleaned.Set("quantity", "24")

	guessed, err := db.InsertListing(&email.ID, internal.ListingItem{LineNo: 2, Source: internal.SourceEmailText, Ref: "body", Record: raw}, cleaned)
	require.NoError(t, err)
	require.NoError(t, db.UpsertGuess(guessed, internal.QuantityGuess{
		Quantity:   intPtr(24),
		Phrase:     strPtr("Box of 2 doz"),
		Candidates: []internal.GuessCandidate{{Kind: "container_of", Phrase: "Box of 2 doz", Value: 24}},
	}))

	bare := cleaner.NewRecord("title", "Spoon")
	unguessed, err := db.InsertListing(&email.ID, internal.ListingItem{LineNo: 1, Source: internal.SourceEmailText, Ref: "body", Record: bare}, bare)
	require.NoError(t, err)
	require.NoError(t, db.UpsertGuess(unguessed, internal.QuantityGuess{}))

	rows, err := db.GetExportRows(ExportFilter{EmailID: email.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int(guessed), rows[0].ListingID, "guessed rows sort first")
	require.NotNil(t, rows[0].Quantity)
	assert.Equal(t, 24, *rows[0].Quantity)
	assert.Equal(t, 1, rows[0].Candidates)
	assert.Equal(t, []string{"title", "desc", "quantity"}, rows[0].Record.Keys())

	assert.Nil(t, rows[1].Quantity)
	assert.Nil(t, rows[1].Phrase)
	assert.Equal(t, 0, rows[1].Candidates)

	require.NoError(t, db.ClearEmailListings(email.ID))
	rows, err = db.GetExportRows(ExportFilter{EmailID: email.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpsertFeedListing(t *testing.T) {
	db := openTestDB(t)
	updated := "2026-02-01T10:00:00Z"
	listing := internal.FeedListing{
		ExternalID: "sku-1",
		Title:      "Pens 10pk",
		Record:     cleaner.NewRecord("title", "Pens 10pk"),
		UpdatedAt:  &updated,
		RawJSON:    `{"id":"sku-1"}`,
	}

	id1, err := db.UpsertFeedListing(listing, listing.Record)
	require.NoError(t, err)
	listing.Title = "Pens 12pk"
	id2, err := db.UpsertFeedListing(listing, listing.Record)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, db.UpsertGuess(id1, internal.QuantityGuess{Quantity: intPtr(10)}))
	require.NoError(t, db.UpsertGuess(id1, internal.QuantityGuess{Quantity: intPtr(12)}))

	rows, err := db.GetExportRows(ExportFilter{Source: internal.SourceFeed})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12, *rows[0].Quantity)
	assert.Equal(t, "sku-1", rows[0].Ref)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, []QuantityStats{{Source: "feed", Listings: 1, WithGuess: 1}}, stats)
}

func TestMetadataAndRuns(t *testing.T) {
	db := openTestDB(t)

	value, err := db.GetMetadata("feed.lastSyncAt")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, db.SetMetadata("feed.lastSyncAt", "a"))
	require.NoError(t, db.SetMetadata("feed.lastSyncAt", "b"))
	value, err = db.GetMetadata("feed.lastSyncAt")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "b", *value)

	require.NoError(t, db.InsertRun("trace-1", "file", nil, map[string]float64{"extract": 1.5}, map[string]int{"items": 3}))
}

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/config"
	"listingqty/internal/qty"
	"listingqty/internal/storage"
)

func newTestService(t *testing.T) (*ProcessingService, *storage.DB, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{QtyTextFields: defaultFields}
	return NewProcessingService(db, cfg, qty.New(), zaptest.NewLogger(t)), db, tmp
}

func copyFixture(t *testing.T, dir string) string {
	t.Helper()
	blob, err := os.ReadFile(filepath.Join("testdata", "sample_listing.eml"))
	require.NoError(t, err)
	path := filepath.Join(dir, "fixture.eml")
	require.NoError(t, os.WriteFile(path, blob, 0o644))
	return path
}

func TestSmokeEmailToXLSX(t *testing.T) {
	proc, db, tmp := newTestService(t)
	rawPath := copyFixture(t, tmp)

	email, err := db.UpsertEmail("imap", "INBOX:1", "Weekly stock offer", "desk@supplier.example", "2026-02-09T09:30:00Z", "hash", rawPath, "fetched")
	require.NoError(t, err)

	res, err := proc.ProcessEmail(email)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{EmailID: email.ID, Processed: 5, Guessed: 4}, res)

	// Reprocessing replaces the listings.
	_, err = proc.ProcessByProviderMessageID("imap", "INBOX:1")
	require.NoError(t, err)

	rows, err := db.GetExportRows(storage.ExportFilter{EmailID: email.ID})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	quantities := map[string]*int{}
	for _, row := range rows {
		quantities[row.Record.Value("title")] = row.Quantity
	}
	assert.Equal(t, 24, *quantities["Glasses"])
	assert.Equal(t, 12, *quantities["Napkins 12-pack"])
	assert.Equal(t, 10, *quantities["Pens 10pk"])
	assert.Equal(t, 6, *quantities["Plates"])
	assert.Nil(t, quantities["Mystery item"])
	assert.Equal(t, "Mystery item", rows[4].Record.Value("title"), "unguessed rows sort last")

	stored, err := db.EmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", stored.Status)

	out := filepath.Join(tmp, "out", "result.xlsx")
	require.NoError(t, ExportRowsToXLSX(rows, out))
	_, err = os.Stat(out)
	require.NoError(t, err)
}

func TestProcessPendingMarksFailures(t *testing.T) {
	proc, db, tmp := newTestService(t)
	rawPath := copyFixture(t, tmp)

	_, err := db.UpsertEmail("imap", "missing", "", "", "2026-02-01", "h", filepath.Join(tmp, "gone.eml"), "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("imap", "ok", "", "", "2026-02-02", "h", rawPath, "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("gmail", "other", "", "", "2026-02-03", "h", rawPath, "fetched")
	require.NoError(t, err)

	emails, lines, err := proc.ProcessPending(10, "imap")
	require.NoError(t, err)
	assert.Equal(t, 1, emails)
	assert.Equal(t, 5, lines)

	failed, err := db.EmailByProviderMessageID("imap", "missing")
	require.NoError(t, err)
	assert.Equal(t, "failed", failed.Status)

	untouched, err := db.EmailByProviderMessageID("gmail", "other")
	require.NoError(t, err)
	assert.Equal(t, "fetched", untouched.Status)
}

func TestProcessEmailSkipsNonListings(t *testing.T) {
	proc, db, tmp := newTestService(t)
	rawPath := filepath.Join(tmp, "chat.eml")
	raw := "From: a@example.com\nTo: b@example.com\nSubject: Lunch tomorrow?\nContent-Type: text/plain\n\nSee you at noon.\n"
	require.NoError(t, os.WriteFile(rawPath, []byte(raw), 0o644))

	email, err := db.UpsertEmail("imap", "chat", "", "", "", "h", rawPath, "fetched")
	require.NoError(t, err)

	res, err := proc.ProcessEmail(email)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	stored, err := db.EmailByID(email.ID)
	require.NoError(t, err)
	assert.Equal(t, "skipped", stored.Status)
}

func TestStoreFeedListings(t *testing.T) {
	proc, db, _ := newTestService(t)
	listings := []internal.FeedListing{
		{ExternalID: "a", Title: "Pens 10pk", Record: cleaner.NewRecord("title", "Pens 10pk"), RawJSON: "{}"},
		{ExternalID: "b", Title: "Plates", Record: cleaner.NewRecord("title", "Plates"), RawJSON: "{}"},
	}
	guessed, err := proc.StoreFeedListings(listings)
	require.NoError(t, err)
	assert.Equal(t, 1, guessed)

	rows, err := db.GetExportRows(storage.ExportFilter{Source: internal.SourceFeed})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestProcessItems(t *testing.T) {
	proc, db, _ := newTestService(t)
	items := parseEmailText("Cups 6pk\nForks set of 12")
	res, err := proc.ProcessItems("file", items)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Guessed)

	rows, err := db.GetExportRows(storage.ExportFilter{Source: internal.SourceEmailText})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

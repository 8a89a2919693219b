package connectors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal"
	"listingqty/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
	got      FetchQuery
}

func (f *fakeConnector) Provider() string { return "fake" }

func (f *fakeConnector) FetchInbox(_ context.Context, q FetchQuery) ([]internal.FetchedMailMessage, error) {
	f.got = q
	return f.messages, f.err
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMailStoreService(t *testing.T) {
	db := openDB(t)
	dir := t.TempDir()
	store := NewMailStoreService(db, dir)

	msg := internal.FetchedMailMessage{Provider: "fake", MessageID: "<1@x>", Subject: "Offer", Raw: []byte("Subject: Offer\r\n\r\nPens 10pk\r\n")}
	row, created, err := store.Store(msg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.RawPath(row.Hash), row.RawRef)
	assert.Equal(t, row.Hash[:2], filepath.Base(filepath.Dir(row.RawRef)))

	blob, err := os.ReadFile(row.RawRef)
	require.NoError(t, err)
	assert.Equal(t, msg.Raw, blob)

	again, created, err := store.Store(msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, row.ID, again.ID)

	_, _, err = store.Store(internal.FetchedMailMessage{Provider: "fake", MessageID: "<2@x>"})
	assert.Error(t, err)
}

func TestFetchAndStore(t *testing.T) {
	db := openDB(t)
	conn := &fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "fake", MessageID: "a", Raw: []byte("a")},
		{Provider: "fake", MessageID: "b", Raw: []byte("b")},
	}}
	svc := NewFetchService(db, t.TempDir(), conn, nil)

	res, err := svc.FetchAndStore(context.Background(), FetchQuery{Label: "INBOX", Max: 5})
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, Stored: 2, New: 2}, res)
	assert.Equal(t, FetchQuery{Label: "INBOX", Max: 5}, conn.got)

	res, err = svc.FetchAndStore(context.Background(), FetchQuery{Label: "INBOX", Max: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)

	pending, err := db.ListEmailsByStatus("fetched", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	conn.err = errors.New("mailbox gone")
	_, err = svc.FetchAndStore(context.Background(), FetchQuery{Label: "INBOX", Max: 5})
	assert.EqualError(t, err, "mailbox gone")
}

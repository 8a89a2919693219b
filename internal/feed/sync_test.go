package feed

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal"
	"listingqty/internal/storage"
)

type recordingStore struct {
	batches [][]internal.FeedListing
}

func (s *recordingStore) StoreFeedListings(listings []internal.FeedListing) (int, error) {
	s.batches = append(s.batches, listings)
	return len(listings), nil
}

func TestIncrementalSyncLookback(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	defer db.Close()

	var asked []string
	store := &recordingStore{}
	svc := NewSyncService(db, store, testConfig(), nil)
	svc.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			asked = append(asked, r.URL.Query().Get("updatedSinceHours"))
			return jsonResponse(http.StatusOK, map[string]any{"success": true, "data": map[string]any{
				"listings": []map[string]any{{"id": "a", "title": "Cups 6pk"}},
			}}), nil
		}),
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	res, err := svc.IncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Listings: 1, Guessed: 1, LookbackHours: 24}, res)

	now = now.Add(90 * time.Minute)
	res, err = svc.IncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.LookbackHours)

	assert.Equal(t, []string{"24", "3"}, asked)
	assert.Len(t, store.batches, 2)

	last, err := db.GetMetadata(keyLastIncrementalSync)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T13:30:00Z", *last)
}

func TestInitialSync(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	defer db.Close()

	store := &recordingStore{}
	svc := NewSyncService(db, store, testConfig(), nil)
	svc.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Empty(t, r.URL.Query().Get("updatedSinceHours"))
			return jsonResponse(http.StatusOK, map[string]any{"success": true, "data": map[string]any{
				"listings": []map[string]any{{"id": "a", "title": "Cups 6pk"}, {"id": "b", "title": "Forks"}},
			}}), nil
		}),
	}

	res, err := svc.InitialSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Listings)

	stamp, err := db.GetMetadata(keyLastInitialSync)
	require.NoError(t, err)
	assert.NotNil(t, stamp)
}

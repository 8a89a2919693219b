package feed

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"listingqty/internal"
	"listingqty/internal/config"
	"listingqty/internal/logging"
	"listingqty/internal/storage"
)

const (
	keyLastInitialSync     = "feed.last_initial_sync"
	keyLastIncrementalSync = "feed.last_incremental_sync"
)

// Store persists feed listings along with their quantity guesses and reports
// how many were guessed.
type Store interface {
	StoreFeedListings(listings []internal.FeedListing) (int, error)
}

type SyncService struct {
	db     *storage.DB
	store  Store
	client *Client
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

type SyncResult struct {
	Listings int
	Guessed  int
	// LookbackHours is the window an incremental sync asked for.
	LookbackHours int
}

func NewSyncService(db *storage.DB, store Store, cfg config.Config, logger *zap.Logger) *SyncService {
	logger = logging.OrNop(logger)
	return &SyncService{
		db:     db,
		store:  store,
		client: NewClient(cfg, logger),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *SyncService) InitialSync(ctx context.Context) (SyncResult, error) {
	listings, err := s.client.ScrollAll(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	guessed, err := s.store.StoreFeedListings(listings)
	if err != nil {
		return SyncResult{}, err
	}
	stamp := s.now().UTC().Format(time.RFC3339)
	if err := s.db.SetMetadata(keyLastInitialSync, stamp); err != nil {
		return SyncResult{}, err
	}
	_ = s.db.SetMetadata(keyLastIncrementalSync, stamp)

	s.logger.Info("feed initial sync done", zap.Int("listings", len(listings)), zap.Int("guessed", guessed))
	return SyncResult{Listings: len(listings), Guessed: guessed}, nil
}

// IncrementalSync fetches listings updated since the last sync, or within
// the configured lookback when there is no usable record of one.
func (s *SyncService) IncrementalSync(ctx context.Context) (SyncResult, error) {
	hours, err := s.lookbackHours()
	if err != nil {
		return SyncResult{}, err
	}

	listings, err := s.client.ScrollUpdated(ctx, hours)
	if err != nil {
		return SyncResult{}, err
	}
	guessed := 0
	if len(listings) > 0 {
		if guessed, err = s.store.StoreFeedListings(listings); err != nil {
			return SyncResult{}, err
		}
	}
	if err := s.db.SetMetadata(keyLastIncrementalSync, s.now().UTC().Format(time.RFC3339)); err != nil {
		return SyncResult{}, err
	}

	s.logger.Info("feed incremental sync done",
		zap.Int("lookbackHours", hours),
		zap.Int("listings", len(listings)),
		zap.Int("guessed", guessed))
	return SyncResult{Listings: len(listings), Guessed: guessed, LookbackHours: hours}, nil
}

func (s *SyncService) lookbackHours() (int, error) {
	fallback := s.cfg.FeedLookbackHours
	if fallback <= 0 {
		fallback = 24
	}

	last, err := s.db.GetMetadata(keyLastIncrementalSync)
	if err != nil || last == nil {
		return fallback, err
	}
	parsed, err := time.Parse(time.RFC3339, *last)
	if err != nil {
		return fallback, nil
	}
	// One extra hour covers clock skew with the feed.
	hours := int(math.Ceil(s.now().Sub(parsed).Hours())) + 1
	if hours < 1 {
		hours = 1
	}
	return hours, nil
}

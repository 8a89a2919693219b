package connectors

import (
	"context"

	"go.uber.org/zap"

	"listingqty/internal/logging"
	"listingqty/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	// New counts messages the database had not seen before.
	New int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    logging.OrNop(logger),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, q FetchQuery) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, q)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, created, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		res.Stored++
		if created {
			res.New++
			s.logger.Debug("mail stored",
				zap.String("provider", row.Provider),
				zap.String("messageId", row.MessageID),
				zap.String("rawRef", row.RawRef))
		}
	}

	s.logger.Info("mail fetched",
		zap.String("provider", s.connector.Provider()),
		zap.String("label", q.Label),
		zap.Int("fetched", res.Fetched),
		zap.Int("new", res.New))
	return res, nil
}

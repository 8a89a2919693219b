package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"listingqty/internal"
	"listingqty/internal/config"
	"listingqty/internal/logging"
	"listingqty/internal/qty"
	"listingqty/internal/storage"
)

type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	guesser   *qty.Guesser
	annotator *Annotator
	logger    *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, g *qty.Guesser, logger *zap.Logger) *ProcessingService {
	return &ProcessingService{
		db:        db,
		cfg:       cfg,
		guesser:   g,
		annotator: NewAnnotator(g, cfg.QtyTextFields),
		logger:    logging.OrNop(logger),
	}
}

func (s *ProcessingService) Annotator() *Annotator {
	return s.annotator
}

type ProcessResult struct {
	EmailID   int
	Processed int
	Guessed   int
	Skipped   bool
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.EmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email)
}

// ProcessPending handles up to limit fetched emails, optionally of a single
// provider. A failing email is marked failed and does not stop the batch.
func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedLines := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			s.logger.Error("process email failed",
				zap.Int("emailId", email.ID),
				zap.String("messageId", email.MessageID),
				zap.Error(err))
			if statusErr := s.db.UpdateEmailStatus(email.ID, "failed"); statusErr != nil {
				return processedEmails, processedLines, statusErr
			}
			continue
		}
		processedEmails++
		processedLines += res.Processed
	}
	return processedEmails, processedLines, nil
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	trace := traceID()
	log := s.logger.With(zap.String("traceId", trace), zap.Int("emailId", email.ID))

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("read raw email: %w", err)
	}

	extracted, err := ExtractItemsFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, err
	}
	extractMs := msSince(start)

	detect := DetectListingEmail(s.guesser, firstNonEmpty(extracted.Subject, email.Subject), extracted.Text, extracted.HTML, extracted.Attachments)
	if err := s.db.ClearEmailListings(email.ID); err != nil {
		return ProcessResult{}, err
	}

	if !detect.IsListing {
		log.Info("email skipped", zap.Float64("score", detect.Score), zap.String("reason", detect.Reason))
		if err := s.db.UpdateEmailStatus(email.ID, "skipped"); err != nil {
			return ProcessResult{}, err
		}
		_ = s.db.InsertRun(trace, "email", &email.ID, map[string]float64{"extractMs": extractMs, "totalMs": msSince(start)}, map[string]int{"extracted": len(extracted.Items), "stored": 0, "guessed": 0})
		return ProcessResult{EmailID: email.ID, Skipped: true}, nil
	}

	stored, err := s.storeItems(&email.ID, extracted.Items)
	if err != nil {
		return ProcessResult{}, err
	}

	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(trace, "email", &email.ID, map[string]float64{"extractMs": extractMs, "totalMs": msSince(start)}, map[string]int{"extracted": len(extracted.Items), "stored": stored.Processed, "guessed": stored.Guessed})
	log.Info("email processed",
		zap.Int("listings", stored.Processed),
		zap.Int("guessed", stored.Guessed),
		zap.Float64("score", detect.Score))

	stored.EmailID = email.ID
	return stored, nil
}

// ProcessItems annotates and stores listings that did not come from an email,
// such as a file run.
func (s *ProcessingService) ProcessItems(scope string, items []internal.ListingItem) (ProcessResult, error) {
	start := time.Now()
	res, err := s.storeItems(nil, items)
	if err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(traceID(), scope, nil, map[string]float64{"totalMs": msSince(start)}, map[string]int{"extracted": len(items), "stored": res.Processed, "guessed": res.Guessed})
	return res, nil
}

func (s *ProcessingService) storeItems(emailID *int, items []internal.ListingItem) (ProcessResult, error) {
	res := ProcessResult{}
	for _, annotated := range s.annotator.AnnotateItems(items) {
		listingID, err := s.db.InsertListing(emailID, annotated.Item, annotated.Cleaned)
		if err != nil {
			return ProcessResult{}, err
		}
		if err := s.db.UpsertGuess(listingID, annotated.Guess); err != nil {
			return ProcessResult{}, err
		}
		res.Processed++
		if annotated.Guess.Quantity != nil {
			res.Guessed++
		}
	}
	return res, nil
}

// StoreFeedListings upserts feed listings with fresh guesses and returns how
// many got a quantity.
func (s *ProcessingService) StoreFeedListings(listings []internal.FeedListing) (int, error) {
	guessed := 0
	for _, listing := range listings {
		cleaned, guess := s.annotator.Annotate(listing.Record)
		listingID, err := s.db.UpsertFeedListing(listing, cleaned)
		if err != nil {
			return guessed, fmt.Errorf("feed listing %s: %w", listing.ExternalID, err)
		}
		if err := s.db.UpsertGuess(listingID, guess); err != nil {
			return guessed, err
		}
		if guess.Quantity != nil {
			guessed++
		}
	}
	return guessed, nil
}

func traceID() string {
	return uuid.NewString()
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

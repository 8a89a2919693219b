// Package listener polls a mailbox and turns new supplier mail into guessed
// listings.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"listingqty/internal/config"
	"listingqty/internal/connectors"
	gmailconnector "listingqty/internal/connectors/gmail"
	imapconnector "listingqty/internal/connectors/imap"
	"listingqty/internal/logging"
	"listingqty/internal/pipeline"
	"listingqty/internal/storage"
)

// ConnectorFactory builds the mailbox connector for a provider name.
type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

type Service struct {
	db           *storage.DB
	cfg          config.Config
	processor    *pipeline.ProcessingService
	newConnector ConnectorFactory
	logger       *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, logger *zap.Logger) *Service {
	s := &Service{db: db, cfg: cfg, processor: processor, logger: logging.OrNop(logger)}
	s.newConnector = s.makeConnector
	return s
}

type CycleResult struct {
	Fetched   int
	New       int
	Processed int
	Listings  int
	Exported  int
}

// Run repeats cycles every MailListenerIntervalSec until ctx is done. A
// failed cycle is logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.newConnector(ctx, provider)
	if err != nil {
		return CycleResult{}, err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, connectors.FetchQuery{Label: s.cfg.MailListenerLabel, Max: s.cfg.MailListenerFetchMax})
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch: %w", err)
	}

	processedEmails, listings, err := s.processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return CycleResult{}, fmt.Errorf("process: %w", err)
	}

	res := CycleResult{Fetched: fetchResult.Fetched, New: fetchResult.New, Processed: processedEmails, Listings: listings}
	if s.cfg.MailListenerAutoExport {
		if res.Exported, err = s.exportProcessed(provider); err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", res.Fetched),
		zap.Int("new", res.New),
		zap.Int("processed", res.Processed),
		zap.Int("listings", res.Listings),
		zap.Int("exported", res.Exported))
	return res, nil
}

// exportProcessed writes one xlsx per processed email under
// OutputDir/listener and marks the email exported.
func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		rows, err := s.db.GetExportRows(storage.ExportFilter{EmailID: email.ID})
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportRowsToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, "exported"); err != nil {
			return exported, err
		}
		exported++
		s.logger.Debug("listings exported", zap.Int("emailId", email.ID), zap.String("path", outputPath))
	}
	return exported, nil
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

// MakeConnector is the connector factory the binaries share.
func MakeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	s := &Service{cfg: cfg}
	return s.makeConnector(ctx, strings.ToLower(strings.TrimSpace(provider)))
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "", ">", "", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_at_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}

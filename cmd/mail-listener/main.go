package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"listingqty/internal/config"
	"listingqty/internal/listener"
	"listingqty/internal/logging"
	"listingqty/internal/pipeline"
	"listingqty/internal/qty"
	"listingqty/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	g := qty.New(
		qty.WithMaxInput(cfg.QtyMaxInput),
		qty.WithMatchTimeout(cfg.QtyMatchTimeout),
		qty.WithLogger(logger),
	)
	g.SetPairsSingular(cfg.QtyPairsSingular)

	proc := pipeline.NewProcessingService(db, cfg, g, logger)
	svc := listener.NewService(db, cfg, proc, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("mail listener started",
		zap.String("provider", cfg.MailListenerProvider),
		zap.String("label", cfg.MailListenerLabel),
		zap.Int("intervalSec", cfg.MailListenerIntervalSec))
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

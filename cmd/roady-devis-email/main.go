package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roady-devis/roady-devis-email/internal/attach"
	"github.com/roady-devis/roady-devis-email/internal/config"
	"github.com/roady-devis/roady-devis-email/internal/dedup"
	"github.com/roady-devis/roady-devis-email/internal/handler"
	"github.com/roady-devis/roady-devis-email/internal/ingest"
	"github.com/roady-devis/roady-devis-email/internal/mailbox"
	"github.com/roady-devis/roady-devis-email/internal/scheduler"
	"github.com/roady-devis/roady-devis-email/internal/sender"
	"github.com/roady-devis/roady-devis-email/internal/service"
	"github.com/roady-devis/roady-devis-email/internal/store"
	"github.com/roady-devis/roady-devis-email/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("roady-devis-email starting",
		"mailbox", cfg.Mailbox.Host,
		"protocol", cfg.Mailbox.GetProtocol(),
		"interval", cfg.Mailbox.CheckInterval(),
	)

	dbPath := cfg.Storage.GetDatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	attachments := attach.NewStore(cfg.Storage.GetAttachmentsDir())

	smtp := sender.New(cfg.Sender, logger)
	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 15*time.Second)
	if err := smtp.Verify(verifyCtx); err != nil {
		logger.Warn("smtp relay verification failed", "host", cfg.Sender.Host, "error", err)
	} else {
		logger.Info("smtp relay verified", "host", cfg.Sender.Host)
	}
	cancelVerify()

	notifier := webhook.New(cfg.Webhook.URL, cfg.Webhook.APIKey, logger)
	gate := dedup.NewGate(db, logger)

	ingestor := ingest.New(
		cfg.Mailbox,
		func() mailbox.Session { return mailbox.NewSession(cfg.Mailbox, logger) },
		attachments,
		db,
		gate,
		notifier,
		logger,
	)

	sched := scheduler.New(cfg.Mailbox.CheckInterval(), func(ctx context.Context) {
		if _, err := ingestor.Cycle(ctx); err != nil {
			logger.Error("ingestion cycle failed", "error", err)
		}
	}, logger)

	remover := mailbox.NewRemover(cfg.Mailbox, logger)
	svc := service.New(db, attachments, remover, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, handler.NewEmailHandler(svc, smtp, sched, logger), cfg.HTTP.APIKey)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx)

	go func() {
		addr := cfg.HTTP.GetListenAddr()
		logger.Info("http api listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	// Force exit on second signal.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	sched.Stop()
	if err := app.Shutdown(); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("roady-devis-email stopped")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

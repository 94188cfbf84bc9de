package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-bot/internal/bot"
	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/invoice"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/notify"
	"github.com/dvloznov/expense-bot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(false)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.Debug)

	if err := cfg.ValidateBot(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// Currency normalizer: seeded with the default rate, refreshed once from
	// the remote source (failure keeps the default).
	rateSource := currency.NewFreeCurrencyAPI(cfg.FreeCurrencyAPIKey)
	normalizer := currency.NewNormalizer(ctx, rateSource, cfg.DefaultCOPPerUSD, log)

	validator := invoice.NewValidator(normalizer, cfg.CurrencyGuessThreshold, log)

	extractor, err := invoice.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create invoice extractor")
	}

	store, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.AccountingSpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets store")
	}

	// Verify both ledger tabs exist. Non-fatal: the poster reports failures
	// per posting anyway.
	if err := store.CheckSheets(ctx, cfg.ExpensesSheetName, cfg.MovementsSheetName); err != nil {
		log.Error().Err(err).Msg("Could not verify accounting sheets, postings may fail")
	}

	poster := ledger.NewPoster(store, normalizer, cfg.ExpensesSheetName, cfg.MovementsSheetName, cfg.LedgerNumericCells, log)

	// All postings go through the single-writer queue so concurrent captures
	// cannot race on the probed next-free-row position.
	queue := ledger.NewPostingQueue(poster, 100, log)
	queue.Start(ctx)

	notifier := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.SenderEmail, cfg.NotificationEmail, normalizer, log)

	engine := bot.NewEngine(
		session.NewStore(),
		normalizer,
		validator,
		extractor,
		extractor,
		queue,
		notifier,
		cfg.Location(),
		log,
	)

	tg, err := bot.NewTelegram(cfg.TelegramToken, engine, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start Telegram bot")
	}

	go func() {
		log.Info().Msg("Starting expense bot")
		if err := tg.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Bot stopped with error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down expense bot...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping posting queue")
	}

	log.Info().Msg("Expense bot exited")
}

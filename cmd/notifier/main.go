package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/notify"
	"github.com/dvloznov/expense-bot/internal/subscriptions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(false)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.Debug)

	if err := cfg.ValidateNotifier(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	spec, err := cfg.CronSpec()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid notification schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	loc := cfg.Location()

	rateSource := currency.NewFreeCurrencyAPI(cfg.FreeCurrencyAPIKey)
	normalizer := currency.NewNormalizer(ctx, rateSource, cfg.DefaultCOPPerUSD, log)

	// Subscriptions live in their own spreadsheet, separate from the ledgers.
	subsStore, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.SubscriptionsSpreadsheet)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create subscriptions sheets store")
	}
	reader := subscriptions.NewReader(subsStore, cfg.SubscriptionsSheetName, normalizer, log)

	ledgerStore, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.AccountingSpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create accounting sheets store")
	}
	if err := ledgerStore.CheckSheets(ctx, cfg.ExpensesSheetName, cfg.MovementsSheetName); err != nil {
		log.Error().Err(err).Msg("Could not verify accounting sheets, postings may fail")
	}

	poster := ledger.NewPoster(ledgerStore, normalizer, cfg.ExpensesSheetName, cfg.MovementsSheetName, cfg.LedgerNumericCells, log)
	queue := ledger.NewPostingQueue(poster, 100, log)
	queue.Start(ctx)

	notifier := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.SenderEmail, cfg.NotificationEmail, normalizer, log)

	checker := subscriptions.NewChecker(reader, normalizer, queue, notifier, loc, log)

	// One immediate pass so a restart mid-day never silently skips the check,
	// then the daily schedule takes over.
	checker.Run(ctx)

	scheduler := cron.New(cron.WithLocation(loc))
	if _, err := scheduler.AddFunc(spec, func() { checker.Run(ctx) }); err != nil {
		log.Fatal().Err(err).Str("spec", spec).Msg("Failed to schedule subscription check")
	}
	scheduler.Start()
	log.Info().Str("spec", spec).Str("timezone", cfg.Timezone).Msg("Subscription notifier scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down notifier...")
	<-scheduler.Stop().Done()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping posting queue")
	}

	log.Info().Msg("Notifier exited")
}
